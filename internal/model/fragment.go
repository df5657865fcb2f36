package model

import "fmt"

// BuildDocKey derives the stable fragment identity from the document id and
// the chunk position.
func BuildDocKey(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s::%d", docID, chunkIndex)
}

// Fragment is the atomic indexed unit: one token window of a parsed document.
type Fragment struct {
	DocKey      string    `json:"doc_key"`
	DocID       string    `json:"doc_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	Vector      []float32 `json:"-"`
	ContentHash string    `json:"content_hash"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	HPath       []string  `json:"h_path,omitempty"`
	Version     string    `json:"version,omitempty"`
	TokenStart  int       `json:"token_start"`
	TokenEnd    int       `json:"token_end"`
	LastSeenAt  int64     `json:"last_seen_at"`
}

// Candidate is one lexical search hit, carrying its stored vector for reranking.
type Candidate struct {
	DocKey   string
	Content  string
	Source   string
	URL      string
	HPath    []string
	Version  string
	Vector   []float32
	LexScore float64
}
