package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geo    GeoConfig    `yaml:"geo" mapstructure:"geo"`
	WFS    WFSConfig    `yaml:"wfs" mapstructure:"wfs"`
	Sirene SireneConfig `yaml:"sirene" mapstructure:"sirene"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// GeoConfig configures the commune lookup API.
type GeoConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the lookup timeout as a duration.
func (c GeoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// WFSConfig configures the IGN Géoplateforme feature service.
type WFSConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxFeatures int    `yaml:"max_features" mapstructure:"max_features"`
}

// SireneConfig configures establishment ingestion.
type SireneConfig struct {
	// Strategy selects the ingestion source: "api" (paginated search,
	// default) or "bulk" (per-department Géo-SIRENE CSV download).
	Strategy        string `yaml:"strategy" mapstructure:"strategy"`
	SearchBaseURL   string `yaml:"search_base_url" mapstructure:"search_base_url"`
	BulkBaseURL     string `yaml:"bulk_base_url" mapstructure:"bulk_base_url"`
	PageSize        int    `yaml:"page_size" mapstructure:"page_size"`
	PageDelayMillis int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	HardCap         int    `yaml:"hard_cap" mapstructure:"hard_cap"`
	BulkTimeoutSecs int    `yaml:"bulk_timeout_secs" mapstructure:"bulk_timeout_secs"`
	TempDir         string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// PageDelay returns the inter-page delay as a duration.
func (c SireneConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMillis) * time.Millisecond
}

// OutputConfig configures composition export.
type OutputConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Format    string `yaml:"format" mapstructure:"format"`
	Workbook  bool   `yaml:"workbook" mapstructure:"workbook"`
	Overwrite bool   `yaml:"overwrite" mapstructure:"overwrite"`
}

// CacheConfig configures the local boundary cache.
type CacheConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("FONDPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("geo.base_url", "https://geo.api.gouv.fr")
	v.SetDefault("geo.timeout_secs", 15)
	v.SetDefault("wfs.base_url", "https://data.geopf.fr/wfs/ows")
	v.SetDefault("wfs.timeout_secs", 60)
	v.SetDefault("wfs.max_features", 10000)
	v.SetDefault("sirene.strategy", "api")
	v.SetDefault("sirene.search_base_url", "https://recherche-entreprises.api.gouv.fr")
	v.SetDefault("sirene.bulk_base_url", "https://files.data.gouv.fr/geo-sirene/last/dep")
	v.SetDefault("sirene.page_size", 25)
	v.SetDefault("sirene.page_delay_ms", 150)
	v.SetDefault("sirene.hard_cap", 10000)
	v.SetDefault("sirene.bulk_timeout_secs", 120)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.format", "geojson")
	v.SetDefault("cache.path", "fondplan-cache.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

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
