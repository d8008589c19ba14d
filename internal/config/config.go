package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// OutputConfig controls where artifacts and the script land.
type OutputConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	ScriptName    string `yaml:"script_name" mapstructure:"script_name"`
	ImportProfile string `yaml:"import_profile" mapstructure:"import_profile"`
}

// ResolvedDir returns Dir with a leading "~" expanded to the home directory.
func (o OutputConfig) ResolvedDir() string {
	return expandHome(o.Dir)
}

// ScriptPath returns the absolute location of the generated script.
func (o OutputConfig) ScriptPath() string {
	return filepath.Join(o.ResolvedDir(), o.ScriptName)
}

// FetchConfig configures layer downloads.
type FetchConfig struct {
	Radius      float64 `yaml:"radius" mapstructure:"radius"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	SRID        int     `yaml:"srid" mapstructure:"srid"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// GeocodeConfig configures address resolution.
type GeocodeConfig struct {
	AddressSuffix string  `yaml:"address_suffix" mapstructure:"address_suffix"`
	CandidatesURL string  `yaml:"candidates_url" mapstructure:"candidates_url"`
	NominatimURL  string  `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheSize     int     `yaml:"cache_size" mapstructure:"cache_size"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SourcesConfig points at an optional locality table override.
type SourcesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITELAYERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("output.dir", "~/Desktop/CAD-IMPORTS")
	v.SetDefault("output.script_name", "circle_layers.scr")
	v.SetDefault("output.import_profile", "gis data.ipf")
	v.SetDefault("fetch.radius", 5000)
	v.SetDefault("fetch.page_size", 2000)
	v.SetDefault("fetch.srid", 2264)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "sitelayers/1.0")
	v.SetDefault("geocode.address_suffix", ", NC")
	v.SetDefault("geocode.candidates_url", "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer/findAddressCandidates")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.cache_size", 256)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("sources.file", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is "script", "serve"
// or "runs"; every problem found is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "script", "serve":
		if c.Fetch.Radius <= 0 {
			errs = append(errs, "fetch.radius must be > 0")
		}
		if c.Fetch.PageSize <= 0 {
			errs = append(errs, "fetch.page_size must be > 0")
		}
		if c.Fetch.MaxRetries < 0 {
			errs = append(errs, "fetch.max_retries must be >= 0")
		}
		if c.Fetch.TimeoutSecs <= 0 {
			errs = append(errs, "fetch.timeout_secs must be > 0")
		}
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must not be none to list runs")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported store driver: %s", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StoreDSN returns the configured DSN, defaulting SQLite to a file in the
// output directory.
func (c *Config) StoreDSN() string {
	if c.Store.DatabaseURL != "" || c.Store.Driver != "sqlite" {
		return c.Store.DatabaseURL
	}
	return filepath.Join(c.Output.ResolvedDir(), "sitelayers.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	// stdout carries progress lines for the calling process
	zapCfg.OutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
