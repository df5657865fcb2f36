package handler

import (
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsearch/internal/pkg/response"
	"github.com/xxxsen/docsearch/internal/worker"
)

const (
	componentOK          = "ok"
	componentUnavailable = "unavailable"
)

// EmbeddingProbe reports the detected embedding dimensionality; zero means
// the embedding backend was never reachable.
type EmbeddingProbe interface {
	Dims() int
}

type StatusHandler struct {
	db        *sql.DB
	pool      *worker.Pool
	embedding EmbeddingProbe
	started   time.Time
}

func NewStatusHandler(db *sql.DB, pool *worker.Pool, embedding EmbeddingProbe) *StatusHandler {
	return &StatusHandler{db: db, pool: pool, embedding: embedding, started: time.Now()}
}

// Health reports each component's state independently; the overall status is
// degraded when any component is down.
func (h *StatusHandler) Health(c *gin.Context) {
	store := componentOK
	if h.db == nil {
		store = componentUnavailable
	} else if err := h.db.PingContext(c.Request.Context()); err != nil {
		store = componentUnavailable
	}
	workerState := componentOK
	if h.pool == nil {
		workerState = componentUnavailable
	}
	embedding := componentOK
	if h.embedding == nil || h.embedding.Dims() <= 0 {
		embedding = componentUnavailable
	}
	status := componentOK
	if store != componentOK || workerState != componentOK || embedding != componentOK {
		status = "degraded"
	}
	body := gin.H{
		"status":     status,
		"store":      store,
		"worker":     workerState,
		"embedding":  embedding,
		"uptime_sec": int64(time.Since(h.started).Seconds()),
	}
	if h.pool != nil {
		body["workers_busy"] = h.pool.Running()
		body["workers_free"] = h.pool.Free()
	}
	response.Success(c, body)
}
