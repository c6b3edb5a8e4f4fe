// Package config loads the usbverifier configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"usbverifier/internal/patcher"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "USBVERIFIER_"

// Config holds all usbverifier configuration.
type Config struct {
	Sources SourcesConfig `yaml:"sources"`
	Export  ExportConfig  `yaml:"export"`
	Store   StoreConfig   `yaml:"store"`
	Blob    BlobConfig    `yaml:"blob"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SourcesConfig locates the HDL sources patched by an export.
type SourcesConfig struct {
	// HDLDir is copied into every export. Empty disables HDL generation.
	HDLDir      string          `yaml:"hdl_dir"`
	ROMTemplate string          `yaml:"rom_template"`
	Wrapper     string          `yaml:"wrapper"`
	Markers     patcher.Markers `yaml:"markers"`
}

// ExportConfig configures the export layout.
type ExportConfig struct {
	Dir string `yaml:"dir"`
	// BackupLayout is the time layout appended to a previous export dir.
	BackupLayout string `yaml:"backup_layout"`
	// Publish uploads exported files to the blob store.
	Publish bool `yaml:"publish"`
}

// StoreConfig selects where the rule set is persisted.
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// BlobConfig selects where export artifacts are published.
type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs, s3, memory
	FSRoot string   `yaml:"fs_root"`
	Prefix string   `yaml:"prefix"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the S3 artifact store.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // console, json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig configures export metrics.
type MetricsConfig struct {
	// Textfile receives the metrics of each export in Prometheus text format.
	Textfile string `yaml:"textfile"`
}

// Store and blob drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	BlobFilesystem = "fs"
	BlobS3         = "s3"
	BlobMemory     = "memory"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			ROMTemplate: "DualPortROM.vhd",
			Wrapper:     "USBVerifierWrapper.vhd",
			Markers:     patcher.DefaultMarkers,
		},
		Export: ExportConfig{
			Dir:          "Export",
			BackupLayout: "2006-01-02-15:04:05",
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
			Path:   "usbverifier.db",
		},
		Blob: BlobConfig{
			Driver: BlobFilesystem,
			FSRoot: "artifacts",
			Prefix: "exports",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	strs := map[string]*string{
		"EXPORT_DIR":         &c.Export.Dir,
		"HDL_DIR":            &c.Sources.HDLDir,
		"STORE_DRIVER":       &c.Store.Driver,
		"STORE_PATH":         &c.Store.Path,
		"STORE_DSN":          &c.Store.DSN,
		"BLOB_DRIVER":        &c.Blob.Driver,
		"BLOB_FS_ROOT":       &c.Blob.FSRoot,
		"BLOB_PREFIX":        &c.Blob.Prefix,
		"BLOB_S3_BUCKET":     &c.Blob.S3.Bucket,
		"BLOB_S3_REGION":     &c.Blob.S3.Region,
		"BLOB_S3_ENDPOINT":   &c.Blob.S3.Endpoint,
		"BLOB_S3_ACCESS_KEY": &c.Blob.S3.AccessKeyID,
		"BLOB_S3_SECRET_KEY": &c.Blob.S3.SecretAccessKey,
		"LOG_LEVEL":          &c.Logging.Level,
		"LOG_FORMAT":         &c.Logging.Format,
		"LOG_FILE":           &c.Logging.File,
		"METRICS_TEXTFILE":   &c.Metrics.Textfile,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"EXPORT_PUBLISH":     &c.Export.Publish,
		"BLOB_S3_PATH_STYLE": &c.Blob.S3.UsePathStyle,
	}
	for name, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
}

// Validate checks driver names and the HDL marker pair.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if strings.EqualFold(c.Store.Driver, StorePostgres) && c.Store.DSN == "" {
		return fmt.Errorf("postgres store requires a dsn")
	}
	switch strings.ToLower(c.Blob.Driver) {
	case BlobFilesystem, BlobS3, BlobMemory:
	default:
		return fmt.Errorf("unsupported blob driver %q", c.Blob.Driver)
	}
	if c.Sources.Markers.Start == "" || c.Sources.Markers.End == "" {
		return fmt.Errorf("rom value markers must not be empty")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export dir must not be empty")
	}
	return nil
}
