package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/logging"
)

// 只释放自己持有的锁
const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// RedLock 在多个独立Redis节点上实现的Redlock
type RedLock struct {
	clients []*redis.Client
	addrs   []string

	mu    sync.Mutex
	locks map[string]string // key是锁名，value是token值
}

// NewRedLock 连接所有锁节点
func NewRedLock(cfg config.RedisConfig) (*RedLock, error) {
	ctx := context.Background()

	var clients []*redis.Client
	for _, addr := range cfg.LockAddresses {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("Redis锁节点 %s 连接测试失败: %w", addr, err)
		}
		clients = append(clients, client)
	}

	return NewRedLockWithClients(clients, cfg.LockAddresses)
}

// NewRedLockWithClients 使用已有客户端创建锁
func NewRedLockWithClients(clients []*redis.Client, addrs []string) (*RedLock, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("Redlock至少需要一个Redis节点")
	}
	return &RedLock{
		clients: clients,
		addrs:   addrs,
		locks:   make(map[string]string),
	}, nil
}

func (r *RedLock) quorum() int {
	return len(r.clients)/2 + 1
}

func (r *RedLock) addr(i int) string {
	if i < len(r.addrs) {
		return r.addrs[i]
	}
	return fmt.Sprintf("#%d", i)
}

// Acquire 在多数节点上 SET NX 成功且仍在有效期内才算获得锁
func (r *RedLock) Acquire(ctx context.Context, lockName string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.locks[lockName]; held {
		return false, nil
	}

	token := uuid.NewString()
	start := time.Now()
	success := 0
	for i, client := range r.clients {
		ok, err := client.SetNX(ctx, lockName, token, ttl).Result()
		if err != nil {
			logging.Log.Warnf("在节点 %s 获取锁 %s 失败: %v", r.addr(i), lockName, err)
			continue
		}
		if ok {
			success++
		}
	}

	if success >= r.quorum() && ttl-time.Since(start) > 0 {
		r.locks[lockName] = token
		logging.Log.Debugf("获取锁 %s 成功", lockName)
		return true, nil
	}

	// 未达多数，撤销已写入的节点
	r.unlockAll(ctx, lockName, token)
	return false, nil
}

// Release 释放分布式锁
func (r *RedLock) Release(ctx context.Context, lockName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.locks[lockName]
	if !exists {
		return fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	r.unlockAll(ctx, lockName, token)
	delete(r.locks, lockName)
	return nil
}

// unlockAll 在所有节点上释放锁
func (r *RedLock) unlockAll(ctx context.Context, lockName, token string) {
	for i, client := range r.clients {
		if err := client.Eval(ctx, unlockScript, []string{lockName}, token).Err(); err != nil {
			logging.Log.Warnf("在节点 %s 释放锁 %s 失败: %v", r.addr(i), lockName, err)
		}
	}
}

// Close 释放所有持有的锁并关闭客户端
func (r *RedLock) Close() error {
	r.mu.Lock()
	for name, token := range r.locks {
		r.unlockAll(context.Background(), name, token)
	}
	r.locks = make(map[string]string)
	r.mu.Unlock()

	for _, client := range r.clients {
		if err := client.Close(); err != nil {
			logging.Log.Warnf("关闭Redis客户端失败: %v", err)
		}
	}
	return nil
}
