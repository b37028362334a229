package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votecore/internal/apperr"
)

func newRedLock(t *testing.T, nodes int) (*RedLock, []*miniredis.Miniredis) {
	t.Helper()
	var (
		clients []*redis.Client
		addrs   []string
		servers []*miniredis.Miniredis
	)
	for i := 0; i < nodes; i++ {
		mr := miniredis.RunT(t)
		servers = append(servers, mr)
		addrs = append(addrs, mr.Addr())
		clients = append(clients, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	}
	rl, err := NewRedLockWithClients(clients, addrs)
	require.NoError(t, err)
	t.Cleanup(func() { rl.Close() })
	return rl, servers
}

func TestRedLockAcquireRelease(t *testing.T) {
	ctx := context.Background()
	rl, servers := newRedLock(t, 3)

	ok, err := rl.Acquire(ctx, "schedule", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	for _, mr := range servers {
		assert.True(t, mr.Exists("schedule"))
	}

	ok, err = rl.Acquire(ctx, "schedule", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "re-entrant acquire must fail")

	require.NoError(t, rl.Release(ctx, "schedule"))
	for _, mr := range servers {
		assert.False(t, mr.Exists("schedule"))
	}

	assert.Error(t, rl.Release(ctx, "schedule"))
}

func TestRedLockNeedsQuorum(t *testing.T) {
	ctx := context.Background()
	rl, servers := newRedLock(t, 3)

	// 另一个持有者占据了两个节点
	require.NoError(t, servers[0].Set("schedule", "other"))
	require.NoError(t, servers[1].Set("schedule", "other"))

	ok, err := rl.Acquire(ctx, "schedule", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// 失败后不能在第三个节点上残留自己的令牌
	assert.False(t, servers[2].Exists("schedule"))
	got, err := servers[0].Get("schedule")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}

func TestHoldSerializesHolders(t *testing.T) {
	ctx := context.Background()
	rl, _ := newRedLock(t, 1)

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := Hold(ctx, rl, "schedule", time.Second, 100)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestHoldGivesUpWhenBusy(t *testing.T) {
	ctx := context.Background()
	rl, servers := newRedLock(t, 1)
	require.NoError(t, servers[0].Set("schedule", "other"))

	_, err := Hold(ctx, rl, "schedule", time.Second, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockBusy))
	assert.False(t, errors.Is(err, apperr.ErrConflict), "busy lock is not an overlapping schedule")
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}
