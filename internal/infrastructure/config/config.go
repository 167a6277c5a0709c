package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Mastodon    MastodonConfig `mapstructure:"mastodon"`
	Nano        NanoConfig     `mapstructure:"nano"`
	Workers     WorkerConfig   `mapstructure:"workers"`
}

// ServerConfig configures the operational HTTP surface (health, metrics)
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MastodonConfig configures the social network collaborator
type MastodonConfig struct {
	RestBaseURL      string `mapstructure:"rest_base_url"`
	StreamingBaseURL string `mapstructure:"streaming_base_url"`
	AccessToken      string `mapstructure:"access_token"`
	TriggerHashtag   string `mapstructure:"trigger_hashtag"`
	// Silent suppresses outcome replies for parse failures and
	// acknowledges with a favourite instead.
	Silent bool `mapstructure:"silent"`
}

// NanoConfig configures the ledger node, work service and custodial seed
type NanoConfig struct {
	RPCURL         string `mapstructure:"rpc_url"`
	WorkURL        string `mapstructure:"work_url"`
	Seed           string `mapstructure:"seed"`
	Representative string `mapstructure:"representative"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

type WorkerConfig struct {
	SweepSchedule  string `mapstructure:"sweep_schedule"`
	HandlerTimeout int    `mapstructure:"handler_timeout"`
	SeenStatusTTL  int    `mapstructure:"seen_status_ttl"`
}

// HandlerTimeoutDuration returns the per-event handler deadline
func (w WorkerConfig) HandlerTimeoutDuration() time.Duration {
	return time.Duration(w.HandlerTimeout) * time.Second
}

// Load reads configuration from config.yaml and the environment
func Load() (*Config, error) {
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("mastodon.trigger_hashtag", "xnotip")
	viper.SetDefault("mastodon.silent", false)
	viper.SetDefault("nano.work_url", "https://nano.to")
	viper.SetDefault("nano.request_timeout", 30)
	viper.SetDefault("workers.sweep_schedule", "@every 10m")
	viper.SetDefault("workers.handler_timeout", 60)
	viper.SetDefault("workers.seen_status_ttl", 86400)
}

// Validate checks that configuration the process cannot run without is present
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.Mastodon.RestBaseURL == "" {
		missing = append(missing, "mastodon.rest_base_url")
	}
	if c.Mastodon.StreamingBaseURL == "" {
		missing = append(missing, "mastodon.streaming_base_url")
	}
	if c.Mastodon.AccessToken == "" {
		missing = append(missing, "mastodon.access_token")
	}
	if c.Nano.RPCURL == "" {
		missing = append(missing, "nano.rpc_url")
	}
	if c.Nano.Seed == "" {
		missing = append(missing, "nano.seed")
	}
	if c.Nano.Representative == "" {
		missing = append(missing, "nano.representative")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(c.Nano.Seed) != 64 {
		return fmt.Errorf("nano.seed must be 64 hex characters")
	}
	return nil
}
