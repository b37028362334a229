// Package testutil 为各包测试提供嵌入式存储与缓存
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votecore/internal/repository"
)

// NewSQLiteRepository 每个测试一个独立的SQLite文件，单连接避免写锁竞争
func NewSQLiteRepository(t *testing.T) *repository.SQLRepository {
	t.Helper()
	db, err := sql.Open(repository.SQLite.DriverName, filepath.Join(t.TempDir(), "votecore.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	return setupRepository(t, db)
}

// NewPooledSQLiteRepository 多连接的SQLite，事务以 BEGIN IMMEDIATE 开始并等待写锁，
// 并发测试中各事务真正在不同连接上竞争
func NewPooledSQLiteRepository(t *testing.T, conns int) *repository.SQLRepository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "votecore.db") +
		"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open(repository.SQLite.DriverName, dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	return setupRepository(t, db)
}

func setupRepository(t *testing.T, db *sql.DB) *repository.SQLRepository {
	repo := repository.NewSQLRepository(db, repository.SQLite)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })
	return repo
}

// NewResultCache 基于miniredis的结果缓存
func NewResultCache(t *testing.T) (*repository.ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache, err := repository.NewResultCacheWithClient(context.Background(), client, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

// Clock 可手动推进的时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
