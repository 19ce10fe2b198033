package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Static      StaticConfig      `yaml:"static"`
	Realtime    RealtimeConfig    `yaml:"realtime"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    DatabaseConfig    `yaml:"database"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StaticConfig locates the static GTFS snapshot the schedule index is built from.
type StaticConfig struct {
	URL           string `yaml:"url" validate:"omitempty,url"`
	APIKey        string `yaml:"api_key"`
	Path          string `yaml:"path" validate:"required"`
	NestedArchive string `yaml:"nested_archive"`
	Refresh       bool   `yaml:"refresh"`
}

type RealtimeConfig struct {
	APIKey         string        `yaml:"api_key" validate:"required"`
	APIKeyHeader   string        `yaml:"api_key_header" validate:"required"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	Positions      FeedConfig    `yaml:"positions"`
	Adherence      FeedConfig    `yaml:"adherence"`
}

type FeedConfig struct {
	URL          string        `yaml:"url" validate:"required,url"`
	Interval     time.Duration `yaml:"interval" validate:"gt=0"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address" validate:"required_if=Enabled true"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
	Channel   string `yaml:"channel"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" validate:"required_if=Enabled true"`
	Port     string `yaml:"port" validate:"required_if=Enabled true"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname" validate:"required_if=Enabled true"`
	SSLMode  string `yaml:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	Table    string `yaml:"table" validate:"required_if=Enabled true"`
}

type MaintenanceConfig struct {
	CleanupInterval  time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
	VehicleRetention time.Duration `yaml:"vehicle_retention" validate:"gt=0"`
}

// MetricsConfig controls the Prometheus endpoint; an empty address disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	FilePath   string `yaml:"file"`
	DiscordURL string `yaml:"discord_url" validate:"omitempty,url"`
}

// Default returns the settings used when neither a file nor the environment
// says otherwise.
func Default() *Config {
	return &Config{
		Static: StaticConfig{
			URL:  "https://api.wmata.com/gtfs/rail-gtfs-static.zip",
			Path: "data/rail-gtfs-static.zip",
		},
		Realtime: RealtimeConfig{
			APIKeyHeader:   "api_key",
			RequestTimeout: 30 * time.Second,
			Positions: FeedConfig{
				URL:          "https://api.wmata.com/gtfs/rail-gtfsrt-vehiclepositions.pb",
				Interval:     10 * time.Second,
				InitialDelay: 100 * time.Millisecond,
			},
			Adherence: FeedConfig{
				URL:          "https://api.wmata.com/gtfs/rail-gtfsrt-tripupdates.pb",
				Interval:     25 * time.Second,
				InitialDelay: 3 * time.Second,
			},
		},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			KeyPrefix: "traintracker",
			Channel:   "traintracker:observations",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "traintracker",
			SSLMode: "disable",
			Table:   "train_observations",
		},
		Maintenance: MaintenanceConfig{
			CleanupInterval:  5 * time.Minute,
			VehicleRetention: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			FilePath: "traintracker.log",
		},
	}
}

// Load layers an optional YAML file and then the environment over Default.
// The result is not validated; see Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	apiKey := getEnv("GTFS_API_KEY", "")

	c.Static.URL = getEnv("GTFS_STATIC_URL", c.Static.URL)
	c.Static.Path = getEnv("GTFS_STATIC_PATH", c.Static.Path)
	c.Static.NestedArchive = getEnv("GTFS_STATIC_NESTED_ARCHIVE", c.Static.NestedArchive)

	c.Realtime.APIKey = getEnv("GTFS_RT_API_KEY", firstNonEmpty(apiKey, c.Realtime.APIKey))
	c.Realtime.APIKeyHeader = getEnv("GTFS_API_KEY_HEADER", c.Realtime.APIKeyHeader)
	// the static download falls back to the realtime key
	c.Static.APIKey = getEnv("GTFS_STATIC_API_KEY", firstNonEmpty(c.Static.APIKey, c.Realtime.APIKey))
	c.Realtime.RequestTimeout = getDurationEnv("GTFS_RT_REQUEST_TIMEOUT", c.Realtime.RequestTimeout)
	c.Realtime.Positions.URL = getEnv("GTFS_RT_POSITIONS_URL", c.Realtime.Positions.URL)
	c.Realtime.Positions.Interval = getDurationEnv("GTFS_RT_POSITIONS_INTERVAL", c.Realtime.Positions.Interval)
	c.Realtime.Positions.InitialDelay = getDurationEnv("GTFS_RT_POSITIONS_INITIAL_DELAY", c.Realtime.Positions.InitialDelay)
	c.Realtime.Adherence.URL = getEnv("GTFS_RT_ADHERENCE_URL", c.Realtime.Adherence.URL)
	c.Realtime.Adherence.Interval = getDurationEnv("GTFS_RT_ADHERENCE_INTERVAL", c.Realtime.Adherence.Interval)
	c.Realtime.Adherence.InitialDelay = getDurationEnv("GTFS_RT_ADHERENCE_INITIAL_DELAY", c.Realtime.Adherence.InitialDelay)

	c.Redis.Address = getEnv("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)
	c.Redis.Channel = getEnv("REDIS_CHANNEL", c.Redis.Channel)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Table = getEnv("DB_TABLE", c.Database.Table)

	c.Maintenance.CleanupInterval = getDurationEnv("CLEANUP_INTERVAL", c.Maintenance.CleanupInterval)
	c.Maintenance.VehicleRetention = getDurationEnv("VEHICLE_RETENTION", c.Maintenance.VehicleRetention)

	c.Metrics.Address = getEnv("METRICS_ADDRESS", c.Metrics.Address)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.FilePath = getEnv("LOG_FILE", c.Logging.FilePath)
	c.Logging.DiscordURL = getEnv("DISCORD_WEBHOOK_URL", c.Logging.DiscordURL)

	var err error
	if c.Static.Refresh, err = getBoolEnv("GTFS_STATIC_REFRESH", c.Static.Refresh); err != nil {
		return err
	}
	if c.Redis.Enabled, err = getBoolEnv("REDIS_ENABLED", c.Redis.Enabled); err != nil {
		return err
	}
	if c.Redis.DB, err = getIntEnv("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Database.Enabled, err = getBoolEnv("DB_ENABLED", c.Database.Enabled); err != nil {
		return err
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	return Check(c)
}

// Check validates a single section, for commands that only need part of the
// configuration.
func Check(section interface{}) error {
	err := validate.Struct(section)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %w", errors.Join(msgs...))
	}
	return fmt.Errorf("invalid configuration: %w", err)
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
