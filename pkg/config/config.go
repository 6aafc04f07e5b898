package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LongPollTimeout is how long a getUpdates request waits for updates.
const LongPollTimeout = 60 * time.Second

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Admins    AdminsConfig    `mapstructure:"admins"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	// RateLimit is the maximum number of outbound messages per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// HTTPTimeout bounds every Bot API request, long polls included.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

type WeatherConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AdminsConfig struct {
	Backend string  `mapstructure:"backend"`
	Seed    []int64 `mapstructure:"seed"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

type SchedulerConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type BroadcastConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Location resolves the scheduler timezone; empty means process local time.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadConfig reads an optional YAML file at path, then applies a .env file and
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	v := viper.New()

	// Set default values
	v.SetDefault("telegram.rate_limit", 25)
	v.SetDefault("telegram.http_timeout", 90*time.Second)
	v.SetDefault("weather.base_url", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("weather.timeout", 10*time.Second)
	v.SetDefault("openai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openai.model", "openai/gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 0)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.timeout", 60*time.Second)
	v.SetDefault("admins.backend", BackendMemory)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.key", "herald:admins")
	v.SetDefault("broadcast.concurrency", 8)
	v.SetDefault("broadcast.send_timeout", 15*time.Second)

	// Enable environment variable support
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if token := firstNonEmpty(v.GetString("TELEGRAM_BOT_TOKEN"), v.GetString("TELEGRAM_TOKEN")); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("WEATHER_API_KEY"); apiKey != "" {
		config.Weather.APIKey = apiKey
	}

	if apiKey := firstNonEmpty(v.GetString("OPENROUTER_API_KEY"), v.GetString("OPENAI_API_KEY")); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}

	if raw := v.GetString("ADMIN_IDS"); raw != "" {
		ids, err := parseAdminIDs(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ADMIN_IDS: %w", err)
		}
		config.Admins.Seed = append(config.Admins.Seed, ids...)
	}

	return &config, nil
}

// Validate checks the settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram token is required"))
	}
	if c.Telegram.HTTPTimeout <= LongPollTimeout {
		errs = append(errs, fmt.Errorf("telegram http_timeout %s must exceed the %s long-poll timeout", c.Telegram.HTTPTimeout, LongPollTimeout))
	}

	switch c.Admins.Backend {
	case BackendMemory, BackendPostgres:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis url is required for the redis admin backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown admins backend %q", c.Admins.Backend))
	}

	if _, err := c.Scheduler.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid scheduler timezone: %w", err))
	}

	return errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
