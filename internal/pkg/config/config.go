package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ff-einsatz/hydrantmap/internal/pkg/reproject"
)

// MaxBatchSize is the largest number of clusters committed in one transaction.
const MaxBatchSize = 400

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
	Map       MapConfig       `mapstructure:"map"`
	Import    ImportConfig    `mapstructure:"import"`
	Geohash   GeohashConfig   `mapstructure:"geohash"`
	Viewport  ViewportConfig  `mapstructure:"viewport"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns            int32 `mapstructure:"max_conns"`
	MinConns            int32 `mapstructure:"min_conns"`
	ConnLifetimeMinutes int   `mapstructure:"conn_lifetime_minutes"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MapConfig controls the read side: which collection is served and how long
// range results stay cached.
type MapConfig struct {
	Collection      string `mapstructure:"collection"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

type ImportConfig struct {
	SourceCRS   string `mapstructure:"source_crs"`
	XField      string `mapstructure:"x_field"`
	YField      string `mapstructure:"y_field"`
	NameField   string `mapstructure:"name_field"`
	KindField   string `mapstructure:"kind_field"`
	DefaultKind string `mapstructure:"default_kind"`
	OutputDir   string `mapstructure:"output_dir"`
	BatchSize   int    `mapstructure:"batch_size"`
}

// GeohashConfig fixes the key lengths shared by the importer, which writes
// cluster documents, and the API, which range-scans them.
type GeohashConfig struct {
	ClusterPrecision int `mapstructure:"cluster_precision"`
	RecordPrecision  int `mapstructure:"record_precision"`
}

// ViewportConfig bounds the query radius derived from a client viewport, in metres.
type ViewportConfig struct {
	MinRadius        float64 `mapstructure:"min_radius"`
	MaxRadius        float64 `mapstructure:"max_radius"`
	RadiusHysteresis float64 `mapstructure:"radius_hysteresis"`
}

// LoadDotEnv reads a .env file into the process environment if one exists.
// Variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: HYDRANTMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("HYDRANTMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "hydrantmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "hydrantmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_lifetime_minutes", 30)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "hydrantmap-import")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("map.collection", "hydranten")
	v.SetDefault("map.cache_ttl_seconds", 300)
	v.SetDefault("import.source_crs", reproject.DefaultSource)
	v.SetDefault("import.x_field", "x")
	v.SetDefault("import.y_field", "y")
	v.SetDefault("import.name_field", "name")
	v.SetDefault("import.kind_field", "typ")
	v.SetDefault("import.default_kind", "hydrant")
	v.SetDefault("import.output_dir", "out")
	v.SetDefault("import.batch_size", MaxBatchSize)
	v.SetDefault("geohash.cluster_precision", 6)
	v.SetDefault("geohash.record_precision", 10)
	v.SetDefault("viewport.min_radius", 250.0)
	v.SetDefault("viewport.max_radius", 2500.0)
	v.SetDefault("viewport.radius_hysteresis", 50.0)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Map.Collection == "" {
		errs = append(errs, "map.collection is required")
	}
	if _, err := reproject.Lookup(c.Import.SourceCRS); err != nil {
		errs = append(errs, fmt.Sprintf("import.source_crs %q is not supported", c.Import.SourceCRS))
	}
	if c.Import.XField == "" || c.Import.YField == "" {
		errs = append(errs, "import.x_field and import.y_field are required")
	}
	if c.Import.BatchSize <= 0 || c.Import.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Sprintf("import.batch_size must be 1-%d, got %d", MaxBatchSize, c.Import.BatchSize))
	}
	if c.Geohash.RecordPrecision < 1 || c.Geohash.RecordPrecision > 12 {
		errs = append(errs, fmt.Sprintf("geohash.record_precision must be 1-12, got %d", c.Geohash.RecordPrecision))
	}
	if c.Geohash.ClusterPrecision < 1 || c.Geohash.ClusterPrecision > c.Geohash.RecordPrecision {
		errs = append(errs, fmt.Sprintf("geohash.cluster_precision must be 1-%d, got %d", c.Geohash.RecordPrecision, c.Geohash.ClusterPrecision))
	}
	if c.Viewport.MinRadius <= 0 || c.Viewport.MaxRadius < c.Viewport.MinRadius {
		errs = append(errs, "viewport.min_radius must be positive and not above viewport.max_radius")
	}
	if c.Viewport.RadiusHysteresis < 0 {
		errs = append(errs, "viewport.radius_hysteresis must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
