package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Mongo       Mongo       `yaml:"mongo"`
	Redis       Redis       `yaml:"redis"`
	CDN         CDN         `yaml:"cdn"`
	Storage     Storage     `yaml:"storage"`
	Migration   Migration   `yaml:"migration"`
	Server      Server      `yaml:"server"`
	Maintenance Maintenance `yaml:"maintenance"`
	LogLevel    string      `yaml:"log_level"`
}

// Mongo represents the document database configuration
type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Redis represents the queue / lock store configuration
type Redis struct {
	URL string `yaml:"url"`
}

// CDN represents the image-transform CDN configuration
type CDN struct {
	CloudName     string   `yaml:"cloud_name"`
	APIKey        string   `yaml:"api_key"`
	APISecret     string   `yaml:"api_secret"`
	AllowedClouds []string `yaml:"allowed_clouds"`
	// The admin API budget is shared with production traffic, so the
	// metadata fallback is throttled hard.
	AdminRatePerSec float64 `yaml:"admin_rate_per_sec"`
}

// Storage represents the S3-compatible destination configuration
type Storage struct {
	AccessKey         string            `yaml:"access_key"`
	SecretKey         string            `yaml:"secret_key"`
	Endpoint          string            `yaml:"endpoint"` // optional override, mainly for local stacks
	Secure            bool              `yaml:"secure"`
	DefaultRegion     string            `yaml:"default_region"`
	BucketRegions     map[string]string `yaml:"bucket_regions"`
	TransformedBucket string            `yaml:"transformed_bucket"`
	FilestackBucket   string            `yaml:"filestack_bucket"`
	ArchiveBucket     string            `yaml:"archive_bucket"`
}

// Migration represents migration-specific configuration
type Migration struct {
	BatchSize        int           `yaml:"batch_size"`
	MaxRecordsPerDay int64         `yaml:"max_records_per_day"`
	DryRun           bool          `yaml:"dry_run"`
	Concurrency      int           `yaml:"concurrency"`
	MaxActiveJobs    int           `yaml:"max_active_jobs"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	HandleIndex      string        `yaml:"handle_index"`
}

// Server represents the job API and metrics listeners
type Server struct {
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Maintenance represents the one-shot archive/purge worker configuration
type Maintenance struct {
	BatchSize int `yaml:"batch_size"`
	MaxItems  int `yaml:"max_items"`
}

// Load loads configuration from file, environment and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		CDN: CDN{
			AdminRatePerSec: 1,
		},
		Storage: Storage{
			Secure:        true,
			DefaultRegion: "us-west-2",
		},
		Migration: Migration{
			BatchSize:        25,
			MaxRecordsPerDay: 20000,
			DryRun:           true,
			Concurrency:      4,
			MaxActiveJobs:    8,
			HandleIndex:      "./filestack_handle_to_path.csv",
		},
		Server: Server{
			Port:        5000,
			MetricsAddr: ":9090",
		},
		Maintenance: Maintenance{
			BatchSize: 50,
			MaxItems:  5000,
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv picks up secrets that are injected by the platform rather
// than committed to a config file.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DB_NAME"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CDN_API_KEY"); v != "" {
		cfg.CDN.APIKey = v
	}
	if v := os.Getenv("CDN_API_SECRET"); v != "" {
		cfg.CDN.APISecret = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("batch-size") {
		cfg.Migration.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("max-records-per-day") {
		cfg.Migration.MaxRecordsPerDay, _ = flags.GetInt64("max-records-per-day")
	}
	if flags.Changed("dry-run") {
		cfg.Migration.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("concurrency") {
		cfg.Migration.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("max-active-jobs") {
		cfg.Migration.MaxActiveJobs, _ = flags.GetInt("max-active-jobs")
	}
	if flags.Changed("lock-ttl") {
		cfg.Migration.LockTTL, _ = flags.GetDuration("lock-ttl")
	}
	if flags.Changed("handle-index") {
		cfg.Migration.HandleIndex, _ = flags.GetString("handle-index")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("metrics-addr") {
		cfg.Server.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func (c *Config) validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo database is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required")
	}
	if c.CDN.CloudName == "" {
		return fmt.Errorf("cdn cloud name is required")
	}
	if c.Storage.TransformedBucket == "" {
		return fmt.Errorf("transformed bucket is required")
	}
	if c.Migration.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Migration.MaxRecordsPerDay <= 0 {
		return fmt.Errorf("max records per day must be positive")
	}
	if c.Migration.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if len(c.CDN.AllowedClouds) == 0 {
		c.CDN.AllowedClouds = []string{c.CDN.CloudName}
	}

	return nil
}
