package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/xxxsen/docsearch/internal/model"
)

// DocMeta carries the document-level fields copied onto every fragment.
type DocMeta struct {
	DocID   string
	Source  string
	URL     string
	HPath   []string
	Version string
}

type Chunker struct {
	targetSize int
	overlap    int
}

// New creates a chunker emitting windows of targetSize whitespace tokens,
// each window advancing by targetSize-overlap so consecutive fragments share
// overlap tokens of context.
func New(targetSize, overlap int) *Chunker {
	if targetSize <= 0 {
		targetSize = 750
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = 80
	}
	return &Chunker{targetSize: targetSize, overlap: overlap}
}

// Split turns normalized text into fragments. Empty text yields nil; text
// shorter than the window yields exactly one fragment.
func (c *Chunker) Split(text string, meta DocMeta) []model.Fragment {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	step := c.targetSize - c.overlap
	now := time.Now().Unix()
	var frags []model.Fragment
	index := 0
	for start := 0; start < len(tokens); start += step {
		end := start + c.targetSize
		if end > len(tokens) {
			end = len(tokens)
		}
		content := strings.Join(tokens[start:end], " ")
		frags = append(frags, model.Fragment{
			DocKey:      model.BuildDocKey(meta.DocID, index),
			DocID:       meta.DocID,
			ChunkIndex:  index,
			Content:     content,
			ContentHash: HashContent(content),
			Source:      meta.Source,
			URL:         meta.URL,
			HPath:       meta.HPath,
			Version:     meta.Version,
			TokenStart:  start,
			TokenEnd:    end,
			LastSeenAt:  now,
		})
		index++
		if end >= len(tokens) {
			break
		}
	}
	return frags
}

// HashContent is the change-detection digest used for idempotent re-indexing.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
