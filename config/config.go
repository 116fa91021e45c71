// Package config loads grove application configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// GROVE_* environment variables. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/grove/forest"
	"github.com/jacentio/grove/store"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config is the complete application configuration.
type Config struct {
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"log_level"`
	Server      Server        `yaml:"server"`
	Store       Store         `yaml:"store"`
	Forest      Forest        `yaml:"forest"`
	Breaker     Breaker       `yaml:"breaker"`
	CORS        CORS          `yaml:"cors"`
	Timeout     time.Duration `yaml:"request_timeout"`
}

// Server holds HTTP listener settings.
type Server struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Store selects and configures the node store backend.
type Store struct {
	Backend          string `yaml:"backend"`
	SQLitePath       string `yaml:"sqlite_path"`
	AWSRegion        string `yaml:"aws_region"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	NodesTable       string `yaml:"nodes_table"`
	CounterTable     string `yaml:"counter_table"`
	ScanSegments     int    `yaml:"scan_segments"`
	ConflictRetries  int    `yaml:"conflict_retries"`
}

// Forest holds validation limits.
type Forest struct {
	MaxLabelLength int `yaml:"max_label_length"`
}

// Breaker configures the store circuit breaker.
type Breaker struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	MinRequests      uint32        `yaml:"min_requests"`
	FailureThreshold float64       `yaml:"failure_threshold"`
}

// CORS lists allowed browser origins.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	sc := store.DefaultConfig()
	return Config{
		Environment: "development",
		LogLevel:    "info",
		Timeout:     10 * time.Second,
		Server: Server{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: Store{
			Backend:         BackendSQLite,
			SQLitePath:      "grove.db",
			AWSRegion:       "us-east-1",
			NodesTable:      sc.NodesTable,
			CounterTable:    sc.CounterTable,
			ScanSegments:    sc.ScanSegments,
			ConflictRetries: sc.ConflictRetries,
		},
		Forest: Forest{MaxLabelLength: forest.DefaultMaxLabelLength},
		Breaker: Breaker{
			Enabled:          true,
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			MinRequests:      5,
			FailureThreshold: 0.8,
		},
		CORS: CORS{AllowedOrigins: []string{"*"}},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.loadEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) loadEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("GROVE_ENVIRONMENT", &c.Environment)
	str("GROVE_LOG_LEVEL", &c.LogLevel)
	dur("GROVE_REQUEST_TIMEOUT", &c.Timeout)
	str("GROVE_SERVER_ADDRESS", &c.Server.Address)
	dur("GROVE_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("GROVE_STORE_BACKEND", &c.Store.Backend)
	str("GROVE_SQLITE_PATH", &c.Store.SQLitePath)
	str("GROVE_AWS_REGION", &c.Store.AWSRegion)
	str("GROVE_DYNAMODB_ENDPOINT", &c.Store.DynamoDBEndpoint)
	str("GROVE_NODES_TABLE", &c.Store.NodesTable)
	str("GROVE_COUNTER_TABLE", &c.Store.CounterTable)
	num("GROVE_SCAN_SEGMENTS", &c.Store.ScanSegments)
	num("GROVE_CONFLICT_RETRIES", &c.Store.ConflictRetries)
	num("GROVE_MAX_LABEL_LENGTH", &c.Forest.MaxLabelLength)

	if v, ok := lookup("GROVE_BREAKER_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GROVE_BREAKER_ENABLED: %w", err))
		} else {
			c.Breaker.Enabled = b
		}
	}
	if v, ok := lookup("GROVE_CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case BackendDynamoDB:
		if c.Store.AWSRegion == "" {
			errs = append(errs, errors.New("store.aws_region is required for the dynamodb backend"))
		}
		if c.Store.ScanSegments < 1 || c.Store.ScanSegments > store.MaxScanSegments {
			errs = append(errs, fmt.Errorf("store.scan_segments must be between 1 and %d", store.MaxScanSegments))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Forest.MaxLabelLength < 1 {
		errs = append(errs, errors.New("forest.max_label_length must be positive"))
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		errs = append(errs, errors.New("breaker.failure_threshold must be in (0, 1]"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the production logger and settings apply.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// ForestConfig returns the validator settings.
func (c Config) ForestConfig() forest.Config {
	return forest.Config{MaxLabelLength: c.Forest.MaxLabelLength}
}

// DynamoConfig returns the DynamoDB store settings.
func (c Config) DynamoConfig() store.Config {
	return store.Config{
		NodesTable:      c.Store.NodesTable,
		CounterTable:    c.Store.CounterTable,
		ScanSegments:    c.Store.ScanSegments,
		ConflictRetries: c.Store.ConflictRetries,
	}
}
