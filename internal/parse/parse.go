// Package parse turns raw PDF, Markdown and HTML inputs into normalized
// plain text plus lightweight metadata. Parsers never panic on malformed
// input; a per-document error is returned so the caller can skip the
// document and continue the batch.
package parse

// Document is one parsed unit of content from a source.
type Document struct {
	DocID  string
	Source string
	URL    string
	HPath  []string
	Text   string
}
