package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwf/engine/common/cache"
	"github.com/aiwf/engine/common/models"
)

type countingWorkflowReader struct {
	wf    *models.Workflow
	err   error
	calls int
}

func (r *countingWorkflowReader) GetByID(context.Context, string) (*models.Workflow, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.wf, nil
}

func TestCachedWorkflowReader_SecondReadServedFromCache(t *testing.T) {
	inner := &countingWorkflowReader{wf: &models.Workflow{
		WorkflowID: "wf1",
		Name:       "pipeline",
		Nodes:      []models.Node{{ID: "a", Type: "ingest.url", Config: map[string]any{"url": "https://example.com"}}},
	}}
	c := cache.NewMemoryCache()
	defer c.Close()
	r := NewCachedWorkflowReader(inner, c, time.Minute)
	ctx := context.Background()

	first, err := r.GetByID(ctx, "wf1")
	require.NoError(t, err)
	second, err := r.GetByID(ctx, "wf1")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Nodes, second.Nodes)
}

func TestCachedWorkflowReader_ErrorsAreNotCached(t *testing.T) {
	inner := &countingWorkflowReader{err: errors.New("db down")}
	c := cache.NewMemoryCache()
	defer c.Close()
	r := NewCachedWorkflowReader(inner, c, time.Minute)
	ctx := context.Background()

	_, err := r.GetByID(ctx, "wf1")
	require.Error(t, err)
	_, err = r.GetByID(ctx, "wf1")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedWorkflowReader_ExpiredEntryRefetches(t *testing.T) {
	inner := &countingWorkflowReader{wf: &models.Workflow{WorkflowID: "wf1"}}
	c := cache.NewMemoryCache()
	defer c.Close()
	r := NewCachedWorkflowReader(inner, c, 10*time.Millisecond)
	ctx := context.Background()

	_, err := r.GetByID(ctx, "wf1")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = r.GetByID(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
