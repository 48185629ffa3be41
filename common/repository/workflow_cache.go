package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aiwf/engine/common/cache"
	"github.com/aiwf/engine/common/models"
)

// WorkflowReader is the read side of workflow storage.
type WorkflowReader interface {
	GetByID(ctx context.Context, workflowID string) (*models.Workflow, error)
}

// CachedWorkflowReader is a read-through cache over workflow lookups.
// Workflow definitions are immutable once a run starts, so the worker
// can serve repeated completion fan-outs from cache instead of hitting
// Postgres per message.
type CachedWorkflowReader struct {
	inner WorkflowReader
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedWorkflowReader(inner WorkflowReader, c cache.Cache, ttl time.Duration) *CachedWorkflowReader {
	return &CachedWorkflowReader{inner: inner, cache: c, ttl: ttl}
}

func (r *CachedWorkflowReader) GetByID(ctx context.Context, workflowID string) (*models.Workflow, error) {
	key := "workflow:" + workflowID

	if raw, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		var wf models.Workflow
		if err := json.Unmarshal(raw, &wf); err == nil {
			return &wf, nil
		}
		// A corrupt entry falls through to the source of truth.
	}

	wf, err := r.inner.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(wf); err == nil {
		_ = r.cache.Set(ctx, key, raw, r.ttl)
	}
	return wf, nil
}
