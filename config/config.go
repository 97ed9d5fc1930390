package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gapflow  GapflowConfig  `yaml:"gapflow"`
	Calendar CalendarConfig `yaml:"calendar"`
	Universe []string       `yaml:"universe"`
	Source   SourceConfig   `yaml:"source"`
	Staging  StagingConfig  `yaml:"staging"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Writer   WriterConfig   `yaml:"writer"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type GapflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Duration decodes yaml values like "10s" via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type CalendarConfig struct {
	// LookbackDays is the default backfill window when no explicit date
	// range is given on the command line.
	LookbackDays int `yaml:"lookback_days"`
}

type SourceConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type StagingConfig struct {
	Dir string `yaml:"dir"`
}

type FetcherConfig struct {
	MaxWorkers        int `yaml:"max_workers"`
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type WriterConfig struct {
	// OutputPath receives the full training dataset; LatestPath receives
	// the single-session refresh produced by -date runs.
	OutputPath string        `yaml:"output_path"`
	LatestPath string        `yaml:"latest_path"`
	Formats    FormatsConfig `yaml:"formats"`
}

type FormatsConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Calendar: CalendarConfig{LookbackDays: 365},
		Source: SourceConfig{
			Timeout:   Duration(10 * time.Second),
			UserAgent: "Mozilla/5.0",
		},
		Fetcher: FetcherConfig{
			MaxWorkers:        4,
			RequestsPerSecond: 2,
			BurstSize:         2,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Gapflow.Name == "" {
		return fmt.Errorf("gapflow.name is required")
	}
	if cfg.Gapflow.Version == "" {
		return fmt.Errorf("gapflow.version is required")
	}

	if len(cfg.Universe) == 0 {
		return fmt.Errorf("universe must list at least one symbol")
	}
	for _, s := range cfg.Universe {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("universe contains an empty symbol")
		}
	}

	if cfg.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be greater than 0")
	}

	if cfg.Staging.Dir == "" {
		return fmt.Errorf("staging.dir is required")
	}

	if cfg.Fetcher.MaxWorkers <= 0 {
		return fmt.Errorf("fetcher.max_workers must be greater than 0")
	}
	if cfg.Fetcher.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetcher.requests_per_second must be greater than 0")
	}

	if cfg.Writer.OutputPath == "" {
		return fmt.Errorf("writer.output_path is required")
	}
	if cfg.Writer.LatestPath == "" {
		return fmt.Errorf("writer.latest_path is required")
	}

	if cfg.Calendar.LookbackDays <= 0 {
		return fmt.Errorf("calendar.lookback_days must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
