package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/model"
)

const (
	// Redis键前缀
	ResultsKey    = "results:data:"
	ResultsGenKey = "results:gen:"

	// 仅当代数未变化时写入缓存，避免慢读者用旧数据覆盖新一代缓存
	SetIfGenerationScript = `
		local current = redis.call('GET', KEYS[1])
		if not current then
			current = '0'
		end
		if current ~= ARGV[1] then
			return 0
		end

		local ttl = tonumber(ARGV[3])
		if ttl and ttl > 0 then
			redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
		else
			redis.call('SET', KEYS[2], ARGV[2])
		end
		return 1
	`

	scriptSetIfGeneration = "setIfGeneration"
)

// ResultCache 选举结果缓存，以代数号区分新旧数据
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration

	mu           sync.RWMutex
	scriptHashes map[string]string // 存储脚本SHA1哈希值
}

// NewResultCache 按配置连接Redis并预加载脚本
func NewResultCache(ctx context.Context, cfg config.RedisConfig) (*ResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.DataAddress,
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
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	return NewResultCacheWithClient(ctx, client, cfg.ResultsTTL)
}

// NewResultCacheWithClient 使用已有客户端创建缓存
func NewResultCacheWithClient(ctx context.Context, client *redis.Client, ttl time.Duration) (*ResultCache, error) {
	c := &ResultCache{
		client:       client,
		ttl:          ttl,
		scriptHashes: make(map[string]string),
	}
	if err := c.preloadScripts(ctx); err != nil {
		return nil, fmt.Errorf("预加载Lua脚本失败: %w", err)
	}
	return c, nil
}

func (c *ResultCache) preloadScripts(ctx context.Context) error {
	sha1, err := c.client.ScriptLoad(ctx, SetIfGenerationScript).Result()
	if err != nil {
		return fmt.Errorf("加载结果缓存脚本失败: %w", err)
	}
	c.mu.Lock()
	c.scriptHashes[scriptSetIfGeneration] = sha1
	c.mu.Unlock()
	return nil
}

// Get 返回当前代数及缓存的结果，未命中时 results 为 nil
func (c *ResultCache) Get(ctx context.Context, electionID string) (*model.ElectionResults, int64, error) {
	values, err := c.client.MGet(ctx, ResultsGenKey+electionID, ResultsKey+electionID).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("读取结果缓存失败: %w", err)
	}

	var gen int64
	if s, ok := values[0].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("解析结果缓存代数失败: %w", err)
		}
	}

	data, ok := values[1].(string)
	if !ok {
		return nil, gen, nil
	}

	var results model.ElectionResults
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		return nil, gen, fmt.Errorf("解析结果缓存失败: %w", err)
	}
	return &results, gen, nil
}

// SetIfGeneration 代数未变化时写入缓存，返回是否写入
func (c *ResultCache) SetIfGeneration(ctx context.Context, electionID string, gen int64, results *model.ElectionResults) (bool, error) {
	data, err := json.Marshal(results)
	if err != nil {
		return false, fmt.Errorf("序列化选举结果失败: %w", err)
	}

	keys := []string{ResultsGenKey + electionID, ResultsKey + electionID}
	args := []interface{}{strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()}

	c.mu.RLock()
	sha1, ok := c.scriptHashes[scriptSetIfGeneration]
	c.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("脚本未预加载")
	}

	result, err := c.client.EvalSha(ctx, sha1, keys, args...).Int64()
	if err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT") {
		// Redis重启后脚本缓存丢失，重新加载后再试一次
		if err := c.preloadScripts(ctx); err != nil {
			return false, err
		}
		c.mu.RLock()
		sha1 = c.scriptHashes[scriptSetIfGeneration]
		c.mu.RUnlock()
		result, err = c.client.EvalSha(ctx, sha1, keys, args...).Int64()
	}
	if err != nil {
		return false, fmt.Errorf("执行结果缓存脚本失败: %w", err)
	}
	return result == 1, nil
}

// Invalidate 使选举的缓存失效：代数加一并删除旧数据
func (c *ResultCache) Invalidate(ctx context.Context, electionID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, ResultsGenKey+electionID)
		pipe.Del(ctx, ResultsKey+electionID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("清除结果缓存失败: %w", err)
	}
	return nil
}

// Ping 健康检查
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (c *ResultCache) Close() error {
	return c.client.Close()
}
