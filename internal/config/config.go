package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Grid     GridConfig     `yaml:"grid" mapstructure:"grid"`
	Regions  RegionsConfig  `yaml:"regions" mapstructure:"regions"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Score    ScoreConfig    `yaml:"score" mapstructure:"score"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CensusConfig configures the gridded census data source.
type CensusConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	FTPURL   string `yaml:"ftp_url" mapstructure:"ftp_url"`
	CSVName  string `yaml:"csv_name" mapstructure:"csv_name"`
	TempDir  string `yaml:"temp_dir" mapstructure:"temp_dir"`
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
}

// GridConfig fixes the raster geometry of the census grid.
type GridConfig struct {
	CellSize float64 `yaml:"cell_size" mapstructure:"cell_size"`
	SRID     int     `yaml:"srid" mapstructure:"srid"`
}

// RegionsConfig configures metropolitan region detection.
type RegionsConfig struct {
	AggregateFactor int     `yaml:"aggregate_factor" mapstructure:"aggregate_factor"`
	MinInhabitants  float64 `yaml:"min_inhabitants" mapstructure:"min_inhabitants"`
}

// GeocodeConfig configures the reverse geocoding client.
type GeocodeConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Email         string  `yaml:"email" mapstructure:"email"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// OverpassConfig configures the POI query client.
type OverpassConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Key           string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// ScoreConfig configures map-algebra scoring.
type ScoreConfig struct {
	POIClasses           int     `yaml:"poi_classes" mapstructure:"poi_classes"`
	SuitabilityThreshold float64 `yaml:"suitability_threshold" mapstructure:"suitability_threshold"`
}

// ServerConfig configures the results HTTP server.
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
	v.SetEnvPrefix("GRIDSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gridscout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("census.url", "https://www.zensus2011.de/SharedDocs/Downloads/DE/Pressemitteilung/DemografischeGrunddaten/csv_Zensusatlas_klassierte_Werte_1km_Gitter.zip")
	v.SetDefault("census.csv_name", "Zensus_klassierte_Werte_1km-Gitter.csv")
	v.SetDefault("census.temp_dir", "/tmp/gridscout")
	v.SetDefault("census.encoding", "latin1")
	v.SetDefault("grid.cell_size", 1000.0)
	v.SetDefault("grid.srid", 3035)
	v.SetDefault("regions.aggregate_factor", 20)
	v.SetDefault("regions.min_inhabitants", 500000)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.rate_per_second", 1)
	v.SetDefault("geocode.max_attempts", 3)
	v.SetDefault("geocode.cache_ttl_hours", 720)
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.key", "shop")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("overpass.rate_per_second", 0.5)
	v.SetDefault("overpass.max_attempts", 3)
	v.SetDefault("overpass.cache_ttl_hours", 168)
	v.SetDefault("score.poi_classes", 4)
	v.SetDefault("score.suitability_threshold", 10)

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
