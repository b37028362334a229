package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/logging"
)

// ErrLockBusy 重试次数用尽仍未拿到锁，调用方可稍后重试
var ErrLockBusy = errors.New("锁正被其他操作持有")

const (
	retryInterval  = 100 * time.Millisecond
	releaseTimeout = 5 * time.Second
)

// Lock 分布式锁接口
type Lock interface {
	// Acquire 尝试获取锁，被他人持有时返回 false
	Acquire(ctx context.Context, lockName string, ttl time.Duration) (bool, error)

	// Release 释放当前实例持有的锁
	Release(ctx context.Context, lockName string) error

	// Close 释放所有持有的锁并关闭客户端
	Close() error
}

// New 按配置创建锁，backend 为 none 时返回 nil
func New(cfg *config.Config) (Lock, error) {
	switch cfg.Lock.Backend {
	case "etcd":
		return NewETCDLock(cfg.ETCD)
	case "redis":
		return NewRedLock(cfg.Redis)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("不支持的锁后端: %s", cfg.Lock.Backend)
	}
}

// Hold 重试获取锁直到成功或次数用尽，返回释放函数。
// 多次重试仍失败时返回包装了 ErrLockBusy 的错误，由调用方稍后重试。
func Hold(ctx context.Context, l Lock, lockName string, ttl time.Duration, retries int) (func(), error) {
	if retries <= 0 {
		retries = 1
	}

	for i := 0; i < retries; i++ {
		ok, err := l.Acquire(ctx, lockName, ttl)
		if err != nil {
			return nil, fmt.Errorf("获取锁 %s 失败: %w", lockName, err)
		}
		if ok {
			return func() {
				// 调用方的 ctx 可能已取消，释放使用独立的 ctx
				releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
				defer cancel()
				if err := l.Release(releaseCtx, lockName); err != nil {
					logging.Log.Errorf("释放锁 %s 失败: %v", lockName, err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	return nil, fmt.Errorf("获取锁 %s 失败，已重试 %d 次: %w", lockName, retries, ErrLockBusy)
}
