package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votecore/internal/model"
)

func newTestCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache, err := NewResultCacheWithClient(context.Background(), client, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func sampleResults() *model.ElectionResults {
	return &model.ElectionResults{
		ElectionID:   "E1",
		Pairs:        []model.PairResult{{MayorID: "1", MayorVotes: 3, DeputyMayorID: "2", DeputyMayorVotes: 3}},
		TotalBallots: 3,
	}
}

func TestResultCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	got, gen, err := cache.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(0), gen)

	ok, err := cache.SetIfGeneration(ctx, "E1", gen, sampleResults())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(ResultsKey+"E1"))

	got, _, err = cache.Get(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.TotalBallots)
	assert.Equal(t, "1", got.Pairs[0].MayorID)
}

func TestResultCacheRejectsStaleGeneration(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	_, gen, err := cache.Get(ctx, "E1")
	require.NoError(t, err)

	// 读者加载期间有新选票写入
	require.NoError(t, cache.Invalidate(ctx, "E1"))

	ok, err := cache.SetIfGeneration(ctx, "E1", gen, sampleResults())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(ResultsKey+"E1"))

	got, newGen, err := cache.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, gen+1, newGen)
}

func TestResultCacheInvalidateDropsPayload(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	ok, err := cache.SetIfGeneration(ctx, "E1", 0, sampleResults())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, cache.Invalidate(ctx, "E1"))
	got, _, err := cache.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResultCacheReloadsFlushedScript(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	require.NoError(t, cache.client.ScriptFlush(ctx).Err())

	ok, err := cache.SetIfGeneration(ctx, "E1", 0, sampleResults())
	require.NoError(t, err)
	assert.True(t, ok)
}
