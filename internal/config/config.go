package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataRoot          string
	BoundaryFile      string
	BoundaryNameField string
	BoundaryCacheSize int
	CatalogFile       string
	LoadWorkers       int

	StationStartYear int
	StationEndYear   int
	MODISScaleFactor float64

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Summary sinks. Each is disabled when its location is empty.
	SQLitePath     string
	KafkaBrokers   []string
	KafkaSinkTopic string
	BatchSize      int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("LOAD_WORKERS", 4, 1, 64)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("BOUNDARY_CACHE_SIZE", 4, 1, 1024)
	if err != nil {
		return nil, err
	}
	startYear, err := parseInt("STATION_START_YEAR", 2011, 1800, 2200)
	if err != nil {
		return nil, err
	}
	endYear, err := parseInt("STATION_END_YEAR", 2018, 1800, 2200)
	if err != nil {
		return nil, err
	}

	scale, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MODIS_SCALE_FACTOR", "0.02"), 64)
	if err != nil || scale <= 0 {
		return nil, errors.New("invalid MODIS_SCALE_FACTOR: must be a positive number")
	}

	dataRoot := sharedcfg.EnvOrDefault("DATA_ROOT", "data")

	cfg := &Config{
		DataRoot:          dataRoot,
		BoundaryFile:      sharedcfg.EnvOrDefault("BOUNDARY_FILE", filepath.Join(dataRoot, "shapefiles", "Iller_HGK_6360_Kanun_Sonrasi.shp")),
		BoundaryNameField: sharedcfg.EnvOrDefault("BOUNDARY_NAME_FIELD", "IL"),
		BoundaryCacheSize: cacheSize,
		CatalogFile:       os.Getenv("CATALOG_FILE"),
		LoadWorkers:       workers,
		StationStartYear:  startYear,
		StationEndYear:    endYear,
		MODISScaleFactor:  scale,
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		SQLitePath:        os.Getenv("SQLITE_PATH"),
		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic:    sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "province-summaries"),
		BatchSize:         batchSize,
	}
	if _, set := os.LookupEnv("HTTP_ADDR"); !set {
		cfg.HTTPAddr = ":8080"
	}

	if cfg.StationStartYear > cfg.StationEndYear {
		return nil, fmt.Errorf("STATION_START_YEAR %d is after STATION_END_YEAR %d", cfg.StationStartYear, cfg.StationEndYear)
	}

	return cfg, nil
}

// KafkaEnabled reports whether summaries are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}
