package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-messenger/globals"
)

const (
	defaultLogLevel        = "INFO"
	defaultAddr            = "localhost:8000"
	defaultPersistenceType = "buntdb"
	defaultPersistenceDSN  = ":memory:"
	defaultPongWait        = 2 * time.Minute
	defaultPingPeriod      = time.Minute
	defaultWriteWait       = 10 * time.Second
	defaultMaxMessageSize  = 1 << 20
	defaultSendBufferSize  = 256
	defaultTypingTTL       = 10 * time.Second
	defaultTypingSweepSpec = "@every 5s"
	defaultUserCacheSize   = 1024
	defaultRedisKey        = "presence:online"
)

// Config is the global configuration object which is filled via the configuration file, the environment and the
// command line flags (in that order of increasing precedence).
type Config struct {
	LogLevel          string            `mapstructure:"log_level"`
	Addr              string            `mapstructure:"addr"`
	SSLCert           string            `mapstructure:"ssl_cert"`
	SSLKey            string            `mapstructure:"ssl_key"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	ConnectionConfig  ConnectionConfig  `mapstructure:"connection"`
	TypingConfig      TypingConfig      `mapstructure:"typing"`
	RedisConfig       RedisConfig       `mapstructure:"redis"`
	MessagePolicy     string            `mapstructure:"message_policy"`
	UserCacheSize     int               `mapstructure:"user_cache_size"`
	GuestUsers        bool              `mapstructure:"guest_users"`
}

// PersistenceConfig selects the store. Type is one of "buntdb", "sqlite" or "postgres". For buntdb the DSN is the
// file name (":memory:" keeps everything in memory). FlockPath, if set, is locked exclusively while the store is open.
type PersistenceConfig struct {
	Type      string `mapstructure:"type"`
	DSN       string `mapstructure:"dsn"`
	FlockPath string `mapstructure:"flock_path"`
}

// ConnectionConfig configures the websocket heartbeat and buffers.
type ConnectionConfig struct {
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
}

// TypingConfig controls the expiry of typing indicators. A TTL of 0 disables the sweep.
type TypingConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	SweepSpec string        `mapstructure:"sweep_spec"`
}

// RedisConfig enables mirroring the set of online users into a redis set (Addr empty = disabled).
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	Key  string `mapstructure:"key"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flagSet.String("addr", "", "ws service address (including port)")
	flagSet.String("ssl-cert", "", "SSL cert for websocket (optional)")
	flagSet.String("ssl-key", "", "SSL key for websocket (optional)")
	flagSet.Bool("guest-users", false, "create unknown users on announce")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("addr", defaultAddr)
	v.SetDefault("persistence.type", defaultPersistenceType)
	v.SetDefault("persistence.dsn", defaultPersistenceDSN)
	v.SetDefault("connection.pong_wait", defaultPongWait)
	v.SetDefault("connection.ping_period", defaultPingPeriod)
	v.SetDefault("connection.write_wait", defaultWriteWait)
	v.SetDefault("connection.max_message_size", defaultMaxMessageSize)
	v.SetDefault("connection.send_buffer_size", defaultSendBufferSize)
	v.SetDefault("typing.ttl", defaultTypingTTL)
	v.SetDefault("typing.sweep_spec", defaultTypingSweepSpec)
	v.SetDefault("user_cache_size", defaultUserCacheSize)
	v.SetDefault("redis.key", defaultRedisKey)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object. An empty configPath yields the defaults (plus environment and flags).
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	v := viper.New()
	setDefaults(v)
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		err := v.BindPFlags(flagSet)
		if err != nil {
			globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
		}
	}
	v.SetEnvPrefix("LSMSG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		err = v.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			return nil, err
		}
	}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
