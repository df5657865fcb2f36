package model

const (
	JobStatusPending = "pending"
	JobStatusStarted = "started"
	JobStatusSuccess = "success"
	JobStatusFailure = "failure"
)

// IsTerminalJobStatus reports whether status allows no further transitions.
func IsTerminalJobStatus(status string) bool {
	return status == JobStatusSuccess || status == JobStatusFailure
}

type CrawlOptions struct {
	MaxDepth        *int     `json:"max_depth,omitempty"`
	MaxPages        *int     `json:"max_pages,omitempty"`
	SameDomainOnly  *bool    `json:"same_domain_only,omitempty"`
	AllowSubdomains *bool    `json:"allow_subdomains,omitempty"`
	RateLimitPerSec *float64 `json:"rate_limit_per_sec,omitempty"`
	IncludePaths    []string `json:"include_paths,omitempty"`
	ExcludePaths    []string `json:"exclude_paths,omitempty"`
}

type IngestRequest struct {
	PdfPaths []string      `json:"pdf_paths,omitempty"`
	MdPaths  []string      `json:"md_paths,omitempty"`
	URLs     []string      `json:"urls,omitempty"`
	Crawl    *CrawlOptions `json:"crawl,omitempty"`
	Version  string        `json:"version,omitempty"`
}

func (r *IngestRequest) Empty() bool {
	return len(r.PdfPaths) == 0 && len(r.MdPaths) == 0 && len(r.URLs) == 0
}

// SourceReport describes one input handled (or attempted) by an ingestion run.
type SourceReport struct {
	Kind  string `json:"kind"`
	Path  string `json:"path,omitempty"`
	URL   string `json:"url,omitempty"`
	Bytes int    `json:"bytes"`
	Error string `json:"error,omitempty"`
}

type IngestResult struct {
	Sources       []SourceReport `json:"sources"`
	CrawlPlan     []string       `json:"crawl_plan"`
	FetchedPages  []string       `json:"fetched_pages"`
	ChunkCount    int            `json:"chunk_count"`
	IndexedChunks int            `json:"indexed_chunks"`
	SkippedChunks []string       `json:"skipped_chunks"`
}

type IngestJob struct {
	ID      string         `json:"job_id"`
	Status  string         `json:"state"`
	Payload *IngestRequest `json:"-"`
	Result  *IngestResult  `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Ctime   int64          `json:"-"`
	Mtime   int64          `json:"-"`
}
