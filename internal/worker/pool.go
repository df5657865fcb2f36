package worker

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Pool runs background ingestion tasks on a bounded goroutine pool.
type Pool struct {
	pool *ants.Pool
}

func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}
	p, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pool{pool: p}, nil
}

// Submit schedules fn on the pool. The task context is detached from the
// caller so an aborted HTTP request does not cancel an in-flight job.
func (p *Pool) Submit(ctx context.Context, name string, fn func(ctx context.Context)) error {
	taskCtx := context.WithoutCancel(ctx)
	return p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				logutil.GetLogger(taskCtx).Error("worker task panicked",
					zap.String("task", name), zap.Any("panic", r))
			}
		}()
		fn(taskCtx)
	})
}

// Running reports the number of tasks currently executing.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free reports remaining capacity.
func (p *Pool) Free() int {
	return p.pool.Free()
}

func (p *Pool) Release() {
	p.pool.Release()
}
