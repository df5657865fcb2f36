package model

type QueryRequest struct {
	Q            string   `json:"q"`
	TopK         int      `json:"top_k,omitempty"`
	DomainFilter []string `json:"domain_filter,omitempty"`
	Version      string   `json:"version,omitempty"`
}

type Citation struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet"`
}

type QueryDiagnostics struct {
	EmbeddingMs int64 `json:"embedding_ms"`
	RetrievalMs int64 `json:"retrieval_ms"`
	RerankMs    int64 `json:"rerank_ms"`
	TotalMs     int64 `json:"total_ms"`
	TopK        int   `json:"top_k"`
	BM25TopN    int   `json:"bm25_top_n"`
	RRFK        int   `json:"rrf_k"`
}

type QueryResponse struct {
	Answer      string           `json:"answer"`
	Citations   []Citation       `json:"citations"`
	Diagnostics QueryDiagnostics `json:"diagnostics"`
}

// Source is a logical origin of indexed content, derived from fragments.
type Source struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DocumentCount int    `json:"document_count"`
}
