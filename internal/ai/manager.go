package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
	// DefaultDims is used when the startup probe cannot reach the
	// embedding service; zero means no fallback.
	DefaultDims int
}

// Manager fronts one generation and one embedding backend, applying the
// configured timeout to every call. The embedding dimensionality is probed
// once and then immutable for the process lifetime.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig

	dimsMu sync.Mutex
	dims   int
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, ErrUnavailable
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.embedder.Embed(ctx, text, taskType)
}

// DetectDims issues a probe embedding request and memoizes the vector length.
// When the probe fails the configured default is used; with no default the
// error is fatal to index bootstrap.
func (m *Manager) DetectDims(ctx context.Context) (int, error) {
	m.dimsMu.Lock()
	defer m.dimsMu.Unlock()
	if m.dims > 0 {
		return m.dims, nil
	}
	vec, err := m.Embed(ctx, "ping", "RETRIEVAL_DOCUMENT")
	if err == nil && len(vec) > 0 {
		m.dims = len(vec)
		return m.dims, nil
	}
	if m.cfg.DefaultDims > 0 {
		logutil.GetLogger(ctx).Warn("embedding probe failed, using default dims",
			zap.Int("default_dims", m.cfg.DefaultDims), zap.Error(err))
		m.dims = m.cfg.DefaultDims
		return m.dims, nil
	}
	if err == nil {
		err = fmt.Errorf("probe returned empty vector")
	}
	return 0, fmt.Errorf("detect embedding dims: %w", err)
}

// Dims returns the detected dimensionality, zero before DetectDims succeeds.
func (m *Manager) Dims() int {
	m.dimsMu.Lock()
	defer m.dimsMu.Unlock()
	return m.dims
}

func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	if m.generator == nil {
		return "", ErrUnavailable
	}
	if m.cfg.MaxInputChars > 0 && len(prompt) > m.cfg.MaxInputChars {
		prompt = prompt[:m.cfg.MaxInputChars]
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	resp, err := m.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

// Answer asks the generator to synthesize a short answer from the numbered
// source snippets.
func (m *Manager) Answer(ctx context.Context, question string, sources []string) (string, error) {
	numbered := make([]string, 0, len(sources))
	for i, src := range sources {
		numbered = append(numbered, fmt.Sprintf("[Source %d]\n%s", i+1, src))
	}
	prompt := fmt.Sprintf(`You are a documentation assistant.
Use only the provided sources to answer the user's question.
- Summarize concisely, use bullet points when helpful.
- Cite sources as [Source N].
- If the sources do not answer the question, say so explicitly.

QUESTION:
%s

SOURCES:
%s`, question, strings.Join(numbered, "\n\n"))
	return m.Generate(ctx, prompt)
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
}
