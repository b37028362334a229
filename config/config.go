package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	ETCD    ETCDConfig    `mapstructure:"etcd"`
	Lock    LockConfig    `mapstructure:"lock"`
	Ballot  BallotConfig  `mapstructure:"ballot"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	AdminToken string `mapstructure:"admin_token"`
	GinMode    string `mapstructure:"gin_mode"`
}

// StorageConfig 关系型存储配置，Driver 取值 mysql / postgres / sqlite
type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// 结果缓存使用的Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ResultsTTL  time.Duration `mapstructure:"results_ttl"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
	Workers int      `mapstructure:"workers"`
}

type ETCDConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// LockConfig 选举排期写操作使用的分布式锁，Backend 取值 etcd / redis / none
type LockConfig struct {
	Backend    string        `mapstructure:"backend"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// BallotConfig 选票编码参数，密钥在带外分发
type BallotConfig struct {
	Key    uint64 `mapstructure:"key"`
	Rounds int    `mapstructure:"rounds"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("storage.max_open_conns", 50)
	v.SetDefault("storage.max_idle_conns", 10)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.timeout", 3*time.Second)
	v.SetDefault("redis.results_ttl", 30*time.Second)
	v.SetDefault("kafka.topic", "votecore.ballots")
	v.SetDefault("kafka.group_id", "votecore-results")
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("lock.backend", "etcd")
	v.SetDefault("lock.timeout", 10*time.Second)
	v.SetDefault("lock.retry_count", 20)
	v.SetDefault("ballot.key", 5)
	v.SetDefault("ballot.rounds", 4)
	v.SetDefault("graphql.path", "/graphql")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.prefix", "results")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate 校验启动所必需的配置项
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的存储驱动: %s", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn 不能为空")
	}
	if c.Ballot.Rounds <= 0 || c.Ballot.Rounds%3 == 0 {
		return fmt.Errorf("ballot.rounds 必须为正数且不能是3的倍数: %d", c.Ballot.Rounds)
	}
	switch c.Lock.Backend {
	case "etcd", "redis", "none":
	default:
		return fmt.Errorf("不支持的锁后端: %s", c.Lock.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("启用Kafka时 kafka.brokers 不能为空")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("启用归档时 archive.bucket 不能为空")
	}
	return nil
}
