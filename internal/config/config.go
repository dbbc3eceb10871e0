// Package config reads microerp settings from MICROERP_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"microerp/internal/blob"
	"microerp/internal/infra/persistence"
)

// Prefix is prepended to every environment variable name.
const Prefix = "MICROERP_"

// StorageDriver identifies a record store backend.
type StorageDriver = persistence.Driver

// Supported record store backends.
const (
	StorageMemory   = persistence.DriverMemory
	StorageSQLite   = persistence.DriverSQLite
	StoragePostgres = persistence.DriverPostgres
)

// Defaults for optional settings.
const (
	DefaultHTTPAddr           = ":8080"
	DefaultSQLitePath         = "microerp.db"
	DefaultMinInterval        = time.Minute
	DefaultLogLevel           = "info"
	DefaultMetricsBackend     = "prometheus"
	DefaultShutdownGrace      = 10 * time.Second
	DefaultArchivePrefix      = "automation/passes"
	DefaultBlobFilesystemRoot = "./archive"
)

// Config is the resolved process configuration.
type Config struct {
	Storage     StorageDriver
	SQLitePath  string
	PostgresDSN string

	Blob          blob.Config
	ArchivePrefix string

	Location *time.Location
	HTTPAddr string
	// MinInterval throttles passes triggered by API reads; zero runs one per read.
	MinInterval time.Duration
	// Interval drives the background scheduler; zero disables it.
	Interval      time.Duration
	CORSOrigins   []string
	LogLevel      slog.Level
	Metrics       string
	ShutdownGrace time.Duration
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile loads path into the process environment without overriding
// variables already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves a Config using lookup.
func FromLookup(lookup LookupFunc) (Config, error) {
	env := reader{lookup: lookup}
	cfg := Config{
		Storage:     StorageDriver(strings.ToLower(env.str("STORAGE_DRIVER", string(StorageSQLite)))),
		SQLitePath:  env.str("SQLITE_PATH", DefaultSQLitePath),
		PostgresDSN: env.str("POSTGRES_DSN", ""),
		Blob: blob.Config{
			Driver: blob.Driver(strings.ToLower(env.str("BLOB_DRIVER", string(blob.DriverNone)))),
			FSRoot: env.str("BLOB_FS_ROOT", DefaultBlobFilesystemRoot),
			S3: blob.S3Config{
				Bucket:          env.str("BLOB_S3_BUCKET", ""),
				Region:          env.str("BLOB_S3_REGION", "us-east-1"),
				Endpoint:        env.str("BLOB_S3_ENDPOINT", ""),
				AccessKeyID:     env.str("BLOB_S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: env.str("BLOB_S3_SECRET_ACCESS_KEY", ""),
				SessionToken:    env.str("BLOB_S3_SESSION_TOKEN", ""),
				Prefix:          env.str("BLOB_S3_PREFIX", ""),
				PathStyle:       env.boolean("BLOB_S3_PATH_STYLE", false),
			},
		},
		ArchivePrefix: env.str("ARCHIVE_PREFIX", DefaultArchivePrefix),
		HTTPAddr:      env.str("HTTP_ADDR", DefaultHTTPAddr),
		MinInterval:   env.duration("AUTOMATION_MIN_INTERVAL", DefaultMinInterval),
		Interval:      env.duration("AUTOMATION_INTERVAL", 0),
		CORSOrigins:   env.list("CORS_ORIGINS", []string{"*"}),
		Metrics:       strings.ToLower(env.str("METRICS", DefaultMetricsBackend)),
		ShutdownGrace: env.duration("SHUTDOWN_GRACE", DefaultShutdownGrace),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(env.str("LOG_LEVEL", DefaultLogLevel))); err != nil {
		env.fail("LOG_LEVEL", err)
	}
	loc, err := time.LoadLocation(env.str("TIMEZONE", "UTC"))
	if err != nil {
		env.fail("TIMEZONE", err)
		loc = time.UTC
	}
	cfg.Location = loc

	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StorageSettings returns the record store selection.
func (c Config) StorageSettings() persistence.Settings {
	return persistence.Settings{Driver: c.Storage, SQLitePath: c.SQLitePath, PostgresDSN: c.PostgresDSN}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%sPOSTGRES_DSN is required for the postgres driver", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage))
	}
	switch c.Blob.Driver {
	case blob.DriverNone, blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("%sBLOB_S3_BUCKET is required for the s3 driver", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Metrics {
	case "prometheus", "expvar", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", c.Metrics))
	}
	if c.MinInterval < 0 || c.Interval < 0 {
		errs = append(errs, errors.New("automation intervals must not be negative"))
	}
	return errors.Join(errs...)
}

type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) raw(name string) (string, bool) {
	v, ok := r.lookup(Prefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) fail(name string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
}

func (r *reader) str(name, def string) string {
	if v, ok := r.raw(name); ok {
		return v
	}
	return def
}

func (r *reader) duration(name string, def time.Duration) time.Duration {
	v, ok := r.raw(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, err)
		return def
	}
	return d
}

func (r *reader) boolean(name string, def bool) bool {
	v, ok := r.raw(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, err)
		return def
	}
	return b
}

func (r *reader) list(name string, def []string) []string {
	v, ok := r.raw(name)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
