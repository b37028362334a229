package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "file:votecore.db"
lock:
  backend: none
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, uint64(5), cfg.Ballot.Key)
	assert.Equal(t, 4, cfg.Ballot.Rounds)
	assert.Equal(t, 30*time.Second, cfg.Redis.ResultsTTL)
	assert.Equal(t, "/graphql", cfg.GraphQL.Path)
	assert.Equal(t, "votecore.ballots", cfg.Kafka.Topic)
}

func TestLoadConfigRejectsDegenerateRounds(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "file:votecore.db"
ballot:
  rounds: 6
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage: StorageConfig{Driver: "mysql", DSN: "dsn"},
			Lock:    LockConfig{Backend: "etcd"},
			Ballot:  BallotConfig{Key: 5, Rounds: 4},
		}
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Driver = "mongo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("kafka without brokers", func(t *testing.T) {
		cfg := base()
		cfg.Kafka.Enabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("archive without bucket", func(t *testing.T) {
		cfg := base()
		cfg.Archive.Enabled = true
		assert.Error(t, cfg.Validate())
	})
}
