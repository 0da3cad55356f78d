// Package config loads ecoroute settings from a YAML file, ECOROUTE_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ECOROUTE_SERVER_ADDR
const EnvPrefix = "ECOROUTE"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	City     CityConfig     `mapstructure:"city"`
	Noise    NoiseConfig    `mapstructure:"noise"`
	Server   ServerConfig   `mapstructure:"server"`
	Cache    CacheConfig    `mapstructure:"cache"`
	OSRM     OSRMConfig     `mapstructure:"osrm"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Export   ExportConfig   `mapstructure:"export"`
}

// CityConfig selects the city model. An empty ModelPath uses the embedded Almaty model.
type CityConfig struct {
	ModelPath string `mapstructure:"model_path"`
	Timezone  string `mapstructure:"timezone"`
}

// NoiseConfig selects the estimator jitter: uniform, daily or none
type NoiseConfig struct {
	Kind      string  `mapstructure:"kind"`
	Seed      int64   `mapstructure:"seed"`
	Amplitude float64 `mapstructure:"amplitude"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// CacheConfig controls the route response cache. Departures further than
// Horizon in the future are kept for LongTTL instead of TTL.
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TTL             time.Duration `mapstructure:"ttl"`
	LongTTL         time.Duration `mapstructure:"long_ttl"`
	Horizon         time.Duration `mapstructure:"horizon"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type OSRMConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// ExportConfig is the S3 destination of heatmap exports
type ExportConfig struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// FlagBinding ties a config key to a command-line flag
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "")

	v.SetDefault("city.model_path", "")
	v.SetDefault("city.timezone", "Asia/Almaty")

	v.SetDefault("noise.kind", "uniform")
	v.SetDefault("noise.seed", 0)
	v.SetDefault("noise.amplitude", 5.0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.long_ttl", "15m")
	v.SetDefault("cache.horizon", "3h")
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("osrm.enabled", false)
	v.SetDefault("osrm.base_url", "https://router.project-osrm.org/route/v1/driving")
	v.SetDefault("osrm.timeout", "6s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "routes.computed")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "ecoroute")

	v.SetDefault("export.bucket", "")
	v.SetDefault("export.region", "eu-central-1")
	v.SetDefault("export.prefix", "heatmaps/")
}

// Load reads the configuration. With an empty cfgFile it looks for
// ecoroute.yaml in the working directory and in $HOME/.ecoroute, and a
// missing file is not an error.
func Load(cfgFile string, flags ...FlagBinding) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ecoroute")
		v.SetConfigName("ecoroute")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range flags {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", b.Flag.Name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be caught by decoding
func (c *Config) Validate() error {
	var problems []string

	switch c.Noise.Kind {
	case "uniform", "daily", "none":
	default:
		problems = append(problems, fmt.Sprintf("noise.kind %q is not one of uniform, daily, none", c.Noise.Kind))
	}
	if c.Noise.Amplitude < 0 {
		problems = append(problems, "noise.amplitude must not be negative")
	}
	if _, err := time.LoadLocation(c.City.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("city.timezone: %v", err))
	}
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is empty")
	}
	if c.Cache.Enabled && (c.Cache.TTL <= 0 || c.Cache.LongTTL <= 0) {
		problems = append(problems, "cache ttls must be positive")
	}
	if c.OSRM.Enabled && (c.OSRM.BaseURL == "" || c.OSRM.Timeout <= 0) {
		problems = append(problems, "osrm needs a base_url and a positive timeout")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		problems = append(problems, "kafka needs brokers and a topic")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves the configured city timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.City.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
