package types

import (
	"errors"
	"time"
)

// Config holds backend selection and session parameters for opening a list.
type Config struct {
	Backend       string        `json:"backend" yaml:"backend"`
	DataDir       string        `json:"data_dir" yaml:"data_dir"`
	SheetName     string        `json:"sheet_name" yaml:"sheet_name"`
	SyncStrategy  SyncStrategy  `json:"sync_strategy" yaml:"sync_strategy"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`
	BatchInterval time.Duration `json:"batch_interval" yaml:"batch_interval"`
	CacheTTL      time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	MatchPolicy   MatchPolicy   `json:"match_policy" yaml:"match_policy"`

	S3       S3Config       `json:"s3" yaml:"s3"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// S3Config locates a workbook object in an S3-compatible bucket.
// Credentials come from the default AWS chain unless both keys are set.
type S3Config struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Key             string `json:"key" yaml:"key"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	PathStyle       bool   `json:"path_style" yaml:"path_style"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// PostgresConfig holds the connection string for the postgres backend.
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// Supported backend names.
const (
	BackendMemory   = "memory"
	BackendJSONL    = "jsonl"
	BackendXLSX     = "xlsx"
	BackendS3       = "s3"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// SyncStrategy controls when queued writes reach the tabular store.
type SyncStrategy string

// Sync strategies.
const (
	// SyncImmediate persists every mutation before the call returns.
	SyncImmediate SyncStrategy = "immediate"
	// SyncOnClose defers persistence until an explicit save, refresh or close.
	SyncOnClose SyncStrategy = "on_close"
	// SyncBatch persists once BatchSize writes are queued or BatchInterval elapses.
	SyncBatch SyncStrategy = "batch"
)

// Defaults applied by the getters below.
const (
	DefaultSheetName     = "items"
	DefaultBatchSize     = 10
	DefaultBatchInterval = 30 * time.Second
	DefaultCacheTTL      = 5 * time.Minute
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
	ErrCacheTTLInvalid      = errors.New("cache ttl must not be negative")
	ErrBucketEmpty          = errors.New("s3 bucket must not be empty")
	ErrDSNEmpty             = errors.New("postgres dsn must not be empty")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendMemory:   true,
	BackendJSONL:    true,
	BackendXLSX:     true,
	BackendS3:       true,
	BackendSQLite:   true,
	BackendPostgres: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure. Zero values for optional fields are valid and
// resolved by the getters.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	switch c.SyncStrategy {
	case "", SyncImmediate, SyncOnClose, SyncBatch:
	default:
		return ErrSyncStrategyUnknown
	}
	if c.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	if c.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	if c.CacheTTL < 0 {
		return ErrCacheTTLInvalid
	}
	switch c.MatchPolicy {
	case "", MatchExact, MatchLoose, MatchPosition:
	default:
		return ErrMatchPolicyUnknown
	}
	if c.Backend == BackendS3 && c.S3.Bucket == "" {
		return ErrBucketEmpty
	}
	if c.Backend == BackendPostgres && c.Postgres.DSN == "" {
		return ErrDSNEmpty
	}
	return nil
}

// GetSheetName returns the sheet (or table) name, defaulting to "items".
func (c Config) GetSheetName() string {
	if c.SheetName == "" {
		return DefaultSheetName
	}
	return c.SheetName
}

// GetSyncStrategy returns the sync strategy, defaulting to immediate.
func (c Config) GetSyncStrategy() SyncStrategy {
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}

// GetBatchSize returns the batch size, defaulting to DefaultBatchSize.
func (c Config) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// GetBatchInterval returns the batch interval, defaulting to DefaultBatchInterval.
func (c Config) GetBatchInterval() time.Duration {
	if c.BatchInterval <= 0 {
		return DefaultBatchInterval
	}
	return c.BatchInterval
}

// GetCacheTTL returns the staleness window of the session cache. Zero in the
// config means DefaultCacheTTL.
func (c Config) GetCacheTTL() time.Duration {
	if c.CacheTTL <= 0 {
		return DefaultCacheTTL
	}
	return c.CacheTTL
}

// GetMatchPolicy returns the match policy, defaulting to exact.
func (c Config) GetMatchPolicy() MatchPolicy {
	if c.MatchPolicy == "" {
		return MatchExact
	}
	return c.MatchPolicy
}
