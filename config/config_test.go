package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigurationDefaults(t *testing.T) {
	cfg, err := ReadConfiguration("", nil)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "buntdb", cfg.PersistenceConfig.Type)
	assert.Equal(t, ":memory:", cfg.PersistenceConfig.DSN)
	assert.Equal(t, 2*time.Minute, cfg.ConnectionConfig.PongWait)
	assert.Equal(t, "@every 5s", cfg.TypingConfig.SweepSpec)
	assert.Equal(t, 1024, cfg.UserCacheSize)
	assert.False(t, cfg.GuestUsers)
}

func TestReadConfigurationDirectory(t *testing.T) {
	dir := t.TempDir()
	err := ioutil.WriteFile(filepath.Join(dir, "a.toml"), []byte(`
log_level = "DEBUG"
message_policy = "len(Body) < 10"

[persistence]
type = "sqlite"
dsn = "messenger.db"
`), 0o644)
	require.NoError(t, err)
	err = ioutil.WriteFile(filepath.Join(dir, "b.toml"), []byte(`
[typing]
ttl = "3s"

[connection]
pong_wait = "30s"
`), 0o644)
	require.NoError(t, err)

	flagSet := GetFlagSet()
	require.NoError(t, flagSet.Parse([]string{"--guest-users", "--addr", "0.0.0.0:9000"}))

	cfg, err := ReadConfiguration(dir, flagSet)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.PersistenceConfig.Type)
	assert.Equal(t, "messenger.db", cfg.PersistenceConfig.DSN)
	assert.Equal(t, "len(Body) < 10", cfg.MessagePolicy)
	assert.Equal(t, 3*time.Second, cfg.TypingConfig.TTL)
	assert.Equal(t, 30*time.Second, cfg.ConnectionConfig.PongWait)
	assert.Equal(t, time.Minute, cfg.ConnectionConfig.PingPeriod)
	assert.True(t, cfg.GuestUsers)
}

func TestReadConfigurationMissingPath(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}
