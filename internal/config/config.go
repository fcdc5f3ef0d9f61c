package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Fetch     FetchConfig     `yaml:"fetch" envconfig:"FETCH"`
	Providers ProvidersConfig `yaml:"providers" envconfig:"PROVIDERS"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Quality   QualityConfig   `yaml:"quality" envconfig:"QUALITY"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// StorageConfig locates the warehouse on disk
type StorageConfig struct {
	Root         string `yaml:"root" envconfig:"ROOT" default:"data" validate:"required"`
	RegistryFile string `yaml:"registry_file" envconfig:"REGISTRY_FILE" default:"registry.yaml" validate:"required"`
	EpochFloor   string `yaml:"epoch_floor" envconfig:"EPOCH_FLOOR" default:"2000-01-01" validate:"required,datetime=2006-01-02"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	Format     string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output     string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath   string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/warehouse.log"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" default:"100" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS" default:"5" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"MAX_AGE_DAYS" default:"30" validate:"gte=0"`
	Compress   bool   `yaml:"compress" envconfig:"COMPRESS" default:"false"`
}

// FetchConfig paces provider fan-out
type FetchConfig struct {
	LaunchInterval time.Duration `yaml:"launch_interval" envconfig:"LAUNCH_INTERVAL" default:"100ms" validate:"gte=0"`
	MaxConcurrency int           `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" default:"16" validate:"gte=1"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	RetryCount     int           `yaml:"retry_count" envconfig:"RETRY_COUNT" default:"2" validate:"gte=0"`
}

// ProvidersConfig names the upstream vendors and where their keys live
type ProvidersConfig struct {
	TokenDir string         `yaml:"token_dir" envconfig:"TOKEN_DIR" default:"tokens"`
	Polygon  ProviderConfig `yaml:"polygon" envconfig:"POLYGON"`
	FRED     ProviderConfig `yaml:"fred" envconfig:"FRED"`
}

// ProviderConfig describes one vendor endpoint. The key itself is never part
// of the config: it is read from KeyEnv or from "<TokenDir>/<Source>.txt".
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	Source  string `yaml:"source" envconfig:"SOURCE"`
	KeyName string `yaml:"key_name" envconfig:"KEY_NAME"`
	KeyEnv  string `yaml:"key_env" envconfig:"KEY_ENV"`
}

// CacheConfig selects the advisory panel cache
type CacheConfig struct {
	Backend string        `yaml:"backend" envconfig:"BACKEND" default:"none" validate:"oneof=none memory redis"`
	TTL     time.Duration `yaml:"ttl" envconfig:"TTL" default:"10m" validate:"gte=0"`
	Redis   RedisConfig   `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR" default:"localhost:6379"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB" default:"0" validate:"gte=0"`
	PoolSize int    `yaml:"pool_size" envconfig:"POOL_SIZE" default:"10" validate:"gte=1"`
}

// QualityConfig holds the thresholds used when promoting raw tables
type QualityConfig struct {
	MaxGapRatio          float64 `yaml:"max_gap_ratio" envconfig:"MAX_GAP_RATIO" default:"0.1" validate:"gt=0,lte=1"`
	MaxZScore            float64 `yaml:"max_zscore" envconfig:"MAX_ZSCORE" default:"5" validate:"gt=0"`
	MaxDividendRatio     float64 `yaml:"max_dividend_ratio" envconfig:"MAX_DIVIDEND_RATIO" default:"0.8" validate:"gt=0"`
	SuspectMoveThreshold float64 `yaml:"suspect_move_threshold" envconfig:"SUSPECT_MOVE_THRESHOLD" default:"0.9" validate:"gt=0"`
	SplitItem            string  `yaml:"split_item" envconfig:"SPLIT_ITEM" default:"stock_splits" validate:"required"`
	PriceItem            string  `yaml:"price_item" envconfig:"PRICE_ITEM" default:"close" validate:"required"`
	CalendarItem         string  `yaml:"calendar_item" envconfig:"CALENDAR_ITEM" default:"trade_date" validate:"required"`
	ReportPrefetch       int     `yaml:"report_prefetch" envconfig:"REPORT_PREFETCH" default:"90" validate:"gte=0"`
}

// TelemetryConfig controls tracing and the metrics textfile
type TelemetryConfig struct {
	Environment   string `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none" validate:"oneof=stdout none"`
	EnableMetrics bool   `yaml:"enable_metrics" envconfig:"ENABLE_METRICS" default:"true"`
	MetricsFile   string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// Load loads configuration from defaults, the config file, .env and the
// environment. Explicitly set environment variables win over the file.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file; an empty path skips the file
func LoadFrom(configFile string) (*Config, error) {
	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		mergeConfigs(reflect.ValueOf(&cfg).Elem(), reflect.ValueOf(fileConfig).Elem(), EnvPrefix)
	}

	cfg.applyProviderDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs copies non-zero file values into dst unless the matching
// environment variable was set explicitly.
func mergeConfigs(dst, file reflect.Value, prefix string) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := prefix + "_" + strings.ToUpper(field.Tag.Get("envconfig"))

		if field.Type.Kind() == reflect.Struct {
			mergeConfigs(dst.Field(i), file.Field(i), key)
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if !file.Field(i).IsZero() {
			dst.Field(i).Set(file.Field(i))
		}
	}
}

// applyProviderDefaults fills vendor endpoints that have no default tag,
// since the same ProviderConfig type serves every vendor.
func (c *Config) applyProviderDefaults() {
	fill := func(p *ProviderConfig, baseURL, source, keyName, keyEnv string) {
		if p.BaseURL == "" {
			p.BaseURL = baseURL
		}
		if p.Source == "" {
			p.Source = source
		}
		if p.KeyName == "" {
			p.KeyName = keyName
		}
		if p.KeyEnv == "" {
			p.KeyEnv = keyEnv
		}
	}
	fill(&c.Providers.Polygon, DefaultPolygonURL, "polygon", "default", "POLYGON_API_KEY")
	fill(&c.Providers.FRED, DefaultFREDURL, "fred", "default", "FRED_API_KEY")
}

// EpochFloorDate returns the parsed epoch floor used when a snapshot
// directory is empty.
func (c *Config) EpochFloorDate() time.Time {
	t, err := time.Parse(DateLayout, c.Storage.EpochFloor)
	if err != nil {
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// validate validates the configuration
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// JSON is the only supported log format
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q requires file_path", c.Logging.Output)
	}

	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("redis cache backend requires an address")
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Root:         "data",
			RegistryFile: "registry.yaml",
			EpochFloor:   "2000-01-01",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "console",
			FilePath:   "logs/warehouse.log",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Fetch: FetchConfig{
			LaunchInterval: DefaultLaunchInterval,
			MaxConcurrency: 16,
			RequestTimeout: DefaultHTTPTimeout,
			RetryCount:     2,
		},
		Providers: ProvidersConfig{TokenDir: "tokens"},
		Cache: CacheConfig{
			Backend: "none",
			TTL:     10 * time.Minute,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Quality: QualityConfig{
			MaxGapRatio:          0.1,
			MaxZScore:            5,
			MaxDividendRatio:     0.8,
			SuspectMoveThreshold: 0.9,
			SplitItem:            "stock_splits",
			PriceItem:            "close",
			CalendarItem:         "trade_date",
			ReportPrefetch:       90,
		},
		Telemetry: TelemetryConfig{
			Environment:   "development",
			TraceExporter: "none",
			EnableMetrics: true,
		},
	}
	cfg.applyProviderDefaults()
	return cfg
}
