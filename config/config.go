// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Category names. They double as keys of SourceConfig.Categories.
const (
	CategoryLodgements = "lodgements"
	CategoryRefunds    = "refunds"
	CategoryHoldings   = "holdings"
)

// Categories lists every category in pipeline order.
var Categories = []string{CategoryHoldings, CategoryLodgements, CategoryRefunds}

type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" validate:"required_if=Enabled true"`
	Port     string `yaml:"port" validate:"required_if=Enabled true"`
	User     string `yaml:"user" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname" validate:"required_if=Enabled true"`
}

// CategoryConfig describes where the documents of one category live on the
// listing page and how their workbooks are laid out.
type CategoryConfig struct {
	Selector         string `yaml:"selector" validate:"required"`
	SkipRows         int    `yaml:"skip_rows" validate:"gte=0"`
	PeriodFromHeader bool   `yaml:"period_from_header"`
	PeriodCell       string `yaml:"period_cell"`
}

type SourceConfig struct {
	ListURL          string                    `yaml:"list_url" validate:"required,url"`
	DocumentPrefix   string                    `yaml:"document_prefix" validate:"required"`
	DisallowedTokens []string                  `yaml:"disallowed_tokens"`
	Categories       map[string]CategoryConfig `yaml:"categories" validate:"required,dive"`
}

type CacheConfig struct {
	Dir       string `yaml:"dir" validate:"required"`
	KeyLength int    `yaml:"key_length" validate:"gte=8,lte=64"`
	Extension string `yaml:"extension" validate:"required,startswith=."`
}

type HTTPConfig struct {
	TimeoutStr string        `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"-"` // Parsed duration
}

type OutputConfig struct {
	Dir             string `yaml:"dir" validate:"required"`
	Compression     string `yaml:"compression" validate:"oneof=zstd snappy gzip none"`
	WriteNormalized bool   `yaml:"write_normalized"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=console json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Cache    CacheConfig    `yaml:"cache"`
	HTTP     HTTPConfig     `yaml:"http"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the configuration for the NSW Fair Trading rental bond data.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Host:   "127.0.0.1",
			Port:   "3306",
			DBName: "bondstats",
		},
		Source: SourceConfig{
			ListURL:          "https://www.fairtrading.nsw.gov.au/about-fair-trading/rental-bond-data",
			DocumentPrefix:   "https://www.fairtrading.nsw.gov.au/__data/assets/excel_doc/",
			DisallowedTokens: []string{"year"},
			Categories: map[string]CategoryConfig{
				CategoryLodgements: {Selector: "#panel1 div table a", SkipRows: 2},
				CategoryRefunds:    {Selector: "#panel2 div table a", SkipRows: 2},
				CategoryHoldings:   {Selector: "#panel3 div ul a", SkipRows: 2, PeriodFromHeader: true, PeriodCell: "A1"},
			},
		},
		Cache: CacheConfig{
			Dir:       "./data/cache",
			KeyLength: 16,
			Extension: ".xlsx",
		},
		HTTP: HTTPConfig{
			TimeoutStr: "60s",
			UserAgent:  "bondstats/1.0",
			Timeout:    60 * time.Second,
		},
		Output: OutputConfig{
			Dir:         "./data/output",
			Compression: "zstd",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig reads the YAML file at configPath on top of Default(), applies
// environment overrides (a .env file next to the working directory is loaded
// first if present) and validates the result. An empty path means defaults only.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnv(cfg)

	// Parse durations
	if cfg.HTTP.TimeoutStr != "" {
		d, err := time.ParseDuration(cfg.HTTP.TimeoutStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse http timeout: %w", err)
		}
		cfg.HTTP.Timeout = d
	} else {
		cfg.HTTP.Timeout = 60 * time.Second // Default
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BONDSTATS_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("BONDSTATS_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("BONDSTATS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("BONDSTATS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, name := range Categories {
		if _, ok := cfg.Source.Categories[name]; !ok {
			return fmt.Errorf("invalid config: source.categories.%s is missing", name)
		}
	}
	if hc := cfg.Source.Categories[CategoryHoldings]; !hc.PeriodFromHeader {
		return fmt.Errorf("invalid config: holdings documents must take their period from the header")
	}
	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("invalid config: http timeout must be positive")
	}
	return nil
}
