package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwf/engine/common/logger"
	"github.com/aiwf/engine/common/models"
)

func limiterFixture(t *testing.T) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, logger.New("error", "json"))
}

func TestCheckRunStart_AllowsWithinBudget(t *testing.T) {
	l := limiterFixture(t)
	ctx := context.Background()

	for i := int64(1); i <= TierHeavy.Config().Limit; i++ {
		res, err := l.CheckRunStart(ctx, "u1", TierHeavy)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, i, res.CurrentCount)
	}
}

func TestCheckRunStart_RejectsOverBudget(t *testing.T) {
	l := limiterFixture(t)
	ctx := context.Background()

	limit := TierHeavy.Config().Limit
	for i := int64(0); i < limit; i++ {
		_, err := l.CheckRunStart(ctx, "u1", TierHeavy)
		require.NoError(t, err)
	}

	res, err := l.CheckRunStart(ctx, "u1", TierHeavy)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterSeconds, int64(0))
}

func TestCheckRunStart_TiersAndUsersAreIsolated(t *testing.T) {
	l := limiterFixture(t)
	ctx := context.Background()

	for i := int64(0); i < TierHeavy.Config().Limit; i++ {
		_, err := l.CheckRunStart(ctx, "u1", TierHeavy)
		require.NoError(t, err)
	}

	// Exhausting u1's heavy budget leaves its basic budget and other
	// users untouched.
	res, err := l.CheckRunStart(ctx, "u1", TierBasic)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.CheckRunStart(ctx, "u2", TierHeavy)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckGlobal_SharedAcrossUsers(t *testing.T) {
	l := limiterFixture(t)
	ctx := context.Background()

	res, err := l.CheckGlobal(ctx)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentCount)

	// The global counter has no user in its key, so a second check from
	// anywhere continues the same window.
	res, err = l.CheckGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.CurrentCount)
}

func TestReset_ReopensBudget(t *testing.T) {
	l := limiterFixture(t)
	ctx := context.Background()

	for i := int64(0); i < TierHeavy.Config().Limit; i++ {
		_, err := l.CheckRunStart(ctx, "u1", TierHeavy)
		require.NoError(t, err)
	}
	res, err := l.CheckRunStart(ctx, "u1", TierHeavy)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "rate_limit:user:u1:tier:heavy"))
	res, err = l.CheckRunStart(ctx, "u1", TierHeavy)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentCount)
}

func TestClassifyWorkflow(t *testing.T) {
	nodes := func(types ...string) []models.Node {
		out := make([]models.Node, len(types))
		for i, typ := range types {
			out[i] = models.Node{ID: string(rune('a' + i)), Type: typ}
		}
		return out
	}

	assert.Equal(t, TierBasic, ClassifyWorkflow(nil))
	assert.Equal(t, TierBasic, ClassifyWorkflow(nodes("ingest.url", "text.transform", "act.slack")))
	assert.Equal(t, TierStandard, ClassifyWorkflow(nodes("ingest.url", "ai.summarize")))
	assert.Equal(t, TierStandard, ClassifyWorkflow(nodes("ai.summarize", "ai.classify")))
	assert.Equal(t, TierHeavy, ClassifyWorkflow(nodes("ai.summarize", "ai.classify", "ai.rag_qa")))
}

func TestTierConfigFallback(t *testing.T) {
	assert.Equal(t, TierHeavy.Config(), Tier("bogus").Config())
}
