// Package config loads the songplay ETL configuration from YAML files and
// SONGPLAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/logging"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/writer"
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Input     SourceConfig    `yaml:"input"`
	Output    StorageConfig   `yaml:"output"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Provision ProvisionConfig `yaml:"provision"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   logging.Config  `yaml:"logging"`

	// CredentialsFile is the INI artifact holding the [STORAGE] keys.
	CredentialsFile string `yaml:"credentials_file" env:"SONGPLAY_CREDENTIALS_FILE"`
}

// SourceConfig locates the raw input root.
type SourceConfig struct {
	Backend  string `yaml:"backend" env:"SONGPLAY_INPUT_BACKEND"` // "local" | "s3" | "gcs" | "mem"
	LocalDir string `yaml:"local_dir" env:"SONGPLAY_INPUT_LOCAL_DIR"`
	Bucket   string `yaml:"bucket" env:"SONGPLAY_INPUT_BUCKET"`
	Prefix   string `yaml:"prefix" env:"SONGPLAY_INPUT_PREFIX"`
	Endpoint string `yaml:"endpoint" env:"SONGPLAY_INPUT_ENDPOINT"`
	Region   string `yaml:"region" env:"SONGPLAY_INPUT_REGION"`
}

// StorageConfig locates the output root.
type StorageConfig struct {
	Backend  string `yaml:"backend" env:"SONGPLAY_OUTPUT_BACKEND"` // "local" | "s3" | "gcs" | "mem"
	LocalDir string `yaml:"local_dir" env:"SONGPLAY_OUTPUT_LOCAL_DIR"`
	Bucket   string `yaml:"bucket" env:"SONGPLAY_OUTPUT_BUCKET"`
	Prefix   string `yaml:"prefix" env:"SONGPLAY_OUTPUT_PREFIX"`
	Endpoint string `yaml:"endpoint" env:"SONGPLAY_OUTPUT_ENDPOINT"`
	Region   string `yaml:"region" env:"SONGPLAY_OUTPUT_REGION"`
}

// PipelineConfig tunes the transformation and write stages.
type PipelineConfig struct {
	TrackGlob   string `yaml:"track_glob" env:"SONGPLAY_TRACK_GLOB"`
	LogGlob     string `yaml:"log_glob" env:"SONGPLAY_LOG_GLOB"`
	PlayPage    string `yaml:"play_page" env:"SONGPLAY_PLAY_PAGE"`
	Timezone    string `yaml:"timezone" env:"SONGPLAY_TIMEZONE"`
	Workers     int    `yaml:"workers" env:"SONGPLAY_WORKERS"`
	RowsPerFile int    `yaml:"rows_per_file" env:"SONGPLAY_ROWS_PER_FILE"`
	Compression string `yaml:"compression" env:"SONGPLAY_COMPRESSION"` // "snappy" | "zstd" | "gzip" | "none", any case
	Validate    bool   `yaml:"validate" env:"SONGPLAY_VALIDATE"`
}

// ProvisionConfig describes the destination bucket for cmd/provision-bucket.
type ProvisionConfig struct {
	Region             string `yaml:"region" env:"SONGPLAY_PROVISION_REGION"`
	Bucket             string `yaml:"bucket" env:"SONGPLAY_PROVISION_BUCKET"`
	LocationConstraint string `yaml:"location_constraint" env:"SONGPLAY_PROVISION_LOCATION"`
	Endpoint           string `yaml:"endpoint" env:"SONGPLAY_PROVISION_ENDPOINT"`
}

// CatalogConfig configures the optional Postgres lineage catalog.
type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn" env:"SONGPLAY_CATALOG_DSN"`
	Strict      bool   `yaml:"strict" env:"SONGPLAY_CATALOG_STRICT"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"SONGPLAY_METRICS_ENABLED"`
	Address   string `yaml:"address" env:"SONGPLAY_METRICS_ADDRESS"`
	Namespace string `yaml:"namespace" env:"SONGPLAY_METRICS_NAMESPACE"`
}

// AuditConfig configures the hash-chained run audit events.
type AuditConfig struct {
	Enabled  bool   `yaml:"enabled" env:"SONGPLAY_AUDIT_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"SONGPLAY_AUDIT_ENDPOINT"`
	StateDir string `yaml:"state_dir" env:"SONGPLAY_AUDIT_STATE_DIR"`
}

// DefaultConfig returns the configuration for a local run.
func DefaultConfig() *Config {
	return &Config{
		Input: SourceConfig{
			Backend:  "local",
			LocalDir: "./data/input",
		},
		Output: StorageConfig{
			Backend:  "local",
			LocalDir: "./data/output",
		},
		Pipeline: PipelineConfig{
			TrackGlob:   "track_data/*/*/*",
			LogGlob:     "log_data/*",
			PlayPage:    "NextSong",
			Timezone:    "UTC",
			Workers:     4,
			RowsPerFile: 0,
			Compression: "snappy",
			Validate:    true,
		},
		Provision: ProvisionConfig{
			Region: "us-west-2",
			Bucket: "datalake-target-s3",
		},
		Metrics: MetricsConfig{
			Address:   ":9090",
			Namespace: "songplay_etl",
		},
		Audit: AuditConfig{
			StateDir: "./state",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
		CredentialsFile: "dl.cfg",
	}
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		// yaml.v3 accepts JSON documents as well.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config file format %q", ErrInvalidConfig, ext)
	}

	return cfg, nil
}

// ApplyEnv overlays SONGPLAY_* environment variables. Unset variables leave
// the existing values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for unusable combinations.
func (c *Config) Validate() error {
	if err := validateBackend("input", c.Input.Backend, c.Input.LocalDir, c.Input.Bucket); err != nil {
		return err
	}
	if err := validateBackend("output", c.Output.Backend, c.Output.LocalDir, c.Output.Bucket); err != nil {
		return err
	}

	if c.Pipeline.TrackGlob == "" || c.Pipeline.LogGlob == "" {
		return fmt.Errorf("%w: pipeline.track_glob and pipeline.log_glob are required", ErrInvalidConfig)
	}
	if c.Pipeline.PlayPage == "" {
		return fmt.Errorf("%w: pipeline.play_page is required", ErrInvalidConfig)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be >= 1, got %d", ErrInvalidConfig, c.Pipeline.Workers)
	}
	if c.Pipeline.RowsPerFile < 0 {
		return fmt.Errorf("%w: pipeline.rows_per_file must be >= 0, got %d", ErrInvalidConfig, c.Pipeline.RowsPerFile)
	}
	if _, err := writer.Codec(c.Pipeline.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("%w: metrics.address is required when metrics are enabled", ErrInvalidConfig)
	}
	if c.Audit.Enabled && c.Audit.StateDir == "" {
		return fmt.Errorf("%w: audit.state_dir is required when audit is enabled", ErrInvalidConfig)
	}

	return nil
}

// Location resolves the pipeline time zone.
func (c *Config) Location() (*time.Location, error) {
	name := c.Pipeline.Timezone
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, name, err)
	}
	return loc, nil
}

func validateBackend(section, backend, localDir, bucket string) error {
	switch backend {
	case "local":
		if localDir == "" {
			return fmt.Errorf("%w: %s.local_dir is required for local backend", ErrInvalidConfig, section)
		}
	case "s3", "gcs":
		if bucket == "" {
			return fmt.Errorf("%w: %s.bucket is required for %s backend", ErrInvalidConfig, section, backend)
		}
	case "mem":
	default:
		return fmt.Errorf("%w: unknown %s backend %q", ErrInvalidConfig, section, backend)
	}
	return nil
}

// Load reads the optional file at path, applies the environment and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load for mains: configuration errors are fatal before any
// processing starts.
func MustLoad(path string) *Config {
	log.Println("[config] loading")

	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

// NeedsCredentials reports whether an input or output backend is S3, whose
// keys come from the credentials artifact.
func (c *Config) NeedsCredentials() bool {
	return c.Input.Backend == "s3" || c.Output.Backend == "s3"
}
