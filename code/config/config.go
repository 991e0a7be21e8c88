// Package config loads session settings from a JSON or YAML file with QUACK_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "QUACK"

// Source kinds
const (
	SourceHTTP = "http"
	SourceS3   = "s3"
	SourceDir  = "dir"
)

type Config struct {
	LogLevel  string       `mapstructure:"log_level"`
	LogFormat string       `mapstructure:"log_format"`
	Source    SourceConfig `mapstructure:"source"`
	Cache     CacheConfig  `mapstructure:"cache"`
	Engine    EngineConfig `mapstructure:"engine"`
	Sync      SyncConfig   `mapstructure:"sync"`
	Live      LiveConfig   `mapstructure:"live"`
	API       APIConfig    `mapstructure:"api"`
}

type SourceConfig struct {
	Kind  string   `mapstructure:"kind"`
	URL   string   `mapstructure:"url"`
	Token string   `mapstructure:"token"`
	Dir   string   `mapstructure:"dir"`
	S3    S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type CacheConfig struct {
	// Path of the SQLite blob store; "" disables persistence
	Path string `mapstructure:"path"`
}

type EngineConfig struct {
	Path          string        `mapstructure:"path"`
	Threads       int           `mapstructure:"threads"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	ScratchDir    string        `mapstructure:"scratch_dir"`
}

type SyncConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	EventType   string        `mapstructure:"event_type"`
	Interval    time.Duration `mapstructure:"interval"`
}

type LiveConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

type APIConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// Addr is the listen address of the local API
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Address, a.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("source.kind", SourceHTTP)
	v.SetDefault("source.url", "http://localhost:8080")
	v.SetDefault("source.token", "")
	v.SetDefault("source.dir", "")
	v.SetDefault("source.s3.bucket", "")
	v.SetDefault("source.s3.prefix", "")
	v.SetDefault("source.s3.region", "us-east-1")
	v.SetDefault("source.s3.endpoint", "")
	v.SetDefault("source.s3.use_path_style", false)
	v.SetDefault("source.s3.access_key_id", "")
	v.SetDefault("source.s3.secret_access_key", "")

	v.SetDefault("cache.path", "quacklytics-cache.db")

	v.SetDefault("engine.path", "")
	v.SetDefault("engine.threads", 0)
	v.SetDefault("engine.batch_size", 1000)
	v.SetDefault("engine.flush_interval", 2*time.Second)
	v.SetDefault("engine.scratch_dir", "")

	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.event_type", "")
	v.SetDefault("sync.interval", 5*time.Minute)

	v.SetDefault("live.enabled", false)
	v.SetDefault("live.interval", 10*time.Second)
	v.SetDefault("live.max_backoff", 5*time.Minute)

	v.SetDefault("api.address", "127.0.0.1")
	v.SetDefault("api.port", 8765)
}

// Default returns the configuration used when no file or environment overrides exist
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path (JSON or YAML by extension) over the defaults. An empty path uses the
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail later and further from their cause
func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case SourceHTTP:
		if c.Source.URL == "" {
			errs = append(errs, errors.New("source.url is required for the http source"))
		}
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			errs = append(errs, errors.New("source.s3.bucket is required for the s3 source"))
		}
	case SourceDir:
		if c.Source.Dir == "" {
			errs = append(errs, errors.New("source.dir is required for the dir source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.kind %q", c.Source.Kind))
	}
	if c.Engine.BatchSize <= 0 {
		errs = append(errs, errors.New("engine.batch_size must be positive"))
	}
	if c.Engine.Threads < 0 {
		errs = append(errs, errors.New("engine.threads must not be negative"))
	}
	if c.Live.Enabled && c.Source.Kind != SourceHTTP {
		errs = append(errs, errors.New("live polling needs the http source"))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	return errors.Join(errs...)
}
