package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownFile reads and normalizes the Markdown file at path. The returned
// HPath is the heading breadcrumb (level 1 and 2 headings in document order).
func MarkdownFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	normalized, hPath := NormalizeMarkdown(string(content))
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Document{
		DocID:  "md::" + abs,
		Source: "markdown",
		URL:    abs,
		HPath:  hPath,
		Text:   normalized,
	}, nil
}

// NormalizeMarkdown walks the goldmark AST, collecting plain text block by
// block and recording the heading breadcrumb.
func NormalizeMarkdown(markdown string) (string, []string) {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var blocks []string
	var hPath []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			heading := string(n.Text(reader.Source()))
			if heading == "" {
				continue
			}
			if n.Level <= 2 {
				hPath = append(hPath, heading)
			}
			blocks = append(blocks, heading)
		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			if code.Len() > 0 {
				blocks = append(blocks, strings.TrimRight(code.String(), "\n"))
			}
		default:
			txt := extractText(node, reader.Source())
			if txt != "" {
				blocks = append(blocks, txt)
			}
		}
	}
	return strings.Join(blocks, "\n\n"), hPath
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
