package lock

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/logging"
)

const (
	etcdKeyPrefix = "/votecore/locks"
	minLeaseTTL   = 5 * time.Second
)

// EtcdLock 基于etcd租约的分布式锁：键仅在不存在时写入，并绑定到自动续约的租约上
type EtcdLock struct {
	client   *clientv3.Client
	holderID string

	mu   sync.Mutex
	held map[string]heldLease
}

type heldLease struct {
	key     string
	leaseID clientv3.LeaseID
	stop    context.CancelFunc
}

func NewETCDLock(cfg config.ETCDConfig) (*EtcdLock, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("创建etcd客户端失败: %w", err)
	}
	return &EtcdLock{
		client:   cli,
		holderID: uuid.NewString(),
		held:     make(map[string]heldLease),
	}, nil
}

// Acquire 本实例已持有同名锁时也返回 false，由 Hold 负责重试
func (el *EtcdLock) Acquire(ctx context.Context, lockName string, ttl time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	if _, ok := el.held[lockName]; ok {
		return false, nil
	}
	if ttl < minLeaseTTL {
		ttl = minLeaseTTL
	}

	grant, err := el.client.Grant(ctx, int64(ttl/time.Second))
	if err != nil {
		return false, fmt.Errorf("申请etcd租约失败: %w", err)
	}

	key := path.Join(etcdKeyPrefix, lockName)
	resp, err := el.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, el.holderID, clientv3.WithLease(grant.ID))).
		Commit()
	if err != nil || !resp.Succeeded {
		el.revoke(grant.ID)
		if err != nil {
			return false, fmt.Errorf("写入锁 %s 失败: %w", key, err)
		}
		return false, nil
	}

	renewCtx, stop := context.WithCancel(context.Background())
	go el.renew(renewCtx, grant.ID, ttl/2)

	el.held[lockName] = heldLease{key: key, leaseID: grant.ID, stop: stop}
	return true, nil
}

func (el *EtcdLock) Release(ctx context.Context, lockName string) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.release(ctx, lockName)
}

func (el *EtcdLock) Close() error {
	el.mu.Lock()
	for name := range el.held {
		if err := el.release(context.Background(), name); err != nil {
			logging.Log.Warnf("关闭时释放锁 %s 失败: %v", name, err)
		}
	}
	el.mu.Unlock()
	return el.client.Close()
}

// renew 定期续约，直到锁被释放
func (el *EtcdLock) renew(ctx context.Context, leaseID clientv3.LeaseID, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := el.client.KeepAliveOnce(ctx, leaseID); err != nil {
				if !errors.Is(err, context.Canceled) {
					logging.Log.Warnf("etcd租约 %x 续约失败: %v", leaseID, err)
				}
				return
			}
		}
	}
}

func (el *EtcdLock) revoke(leaseID clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if _, err := el.client.Revoke(ctx, leaseID); err != nil {
		logging.Log.Warnf("撤销etcd租约 %x 失败: %v", leaseID, err)
	}
}

// release 调用方须持有 el.mu
func (el *EtcdLock) release(ctx context.Context, lockName string) error {
	lease, ok := el.held[lockName]
	if !ok {
		return nil
	}
	delete(el.held, lockName)
	lease.stop()

	if _, err := el.client.Delete(ctx, lease.key); err != nil {
		return fmt.Errorf("删除锁 %s 失败: %w", lease.key, err)
	}
	// 租约可能已过期
	if _, err := el.client.Revoke(ctx, lease.leaseID); err != nil && !errors.Is(err, rpctypes.ErrLeaseNotFound) {
		return fmt.Errorf("撤销etcd租约失败: %w", err)
	}
	return nil
}
