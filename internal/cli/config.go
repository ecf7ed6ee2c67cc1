package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/basket/internal/paths"
	"github.com/mesh-intelligence/basket/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "BASKET"

	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeySheetName     = "sheet_name"
	cfgKeySyncStrategy  = "sync_strategy"
	cfgKeyBatchSize     = "batch_size"
	cfgKeyBatchInterval = "batch_interval"
	cfgKeyCacheTTL      = "cache_ttl"
	cfgKeyMatchPolicy   = "match_policy"
	cfgKeyS3Bucket      = "s3.bucket"
	cfgKeyS3Key         = "s3.key"
	cfgKeyS3Region      = "s3.region"
	cfgKeyS3Endpoint    = "s3.endpoint"
	cfgKeyS3PathStyle   = "s3.path_style"
	cfgKeyS3AccessKey   = "s3.access_key_id"
	cfgKeyS3SecretKey   = "s3.secret_access_key"
	cfgKeyPostgresDSN   = "postgres.dsn"
	cfgKeyHTTPAddr      = "http.addr"

	defaultBackend = types.BackendJSONL
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# basket configuration

# Backend: jsonl, xlsx, s3, sqlite, postgres or memory
backend: jsonl

# Data directory for local backends (optional; overridable by --data-dir)
# data_dir:

# Sheet, table or file name
# sheet_name: items

# When edits reach the store: immediate, on_close or batch
# sync_strategy: immediate
# batch_size: 10
# batch_interval: 30s

# How long a loaded list is trusted before it is re-read
# cache_ttl: 5m

# How toggle and delete links find their row: exact, loose or position
# match_policy: exact

# s3:
#   bucket:
#   key: basket.xlsx
#   region:
#   endpoint:
#   path_style: false

# postgres:
#   dsn: postgres://localhost/basket

# http:
#   addr: 127.0.0.1:8080
`

// loadConfig reads config.yaml from configDir with BASKET_* environment
// overrides. It creates the directory and a default config.yaml on first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// listConfig builds the backend configuration from viper and the data
// directory precedence chain, and validates it.
func (a *app) listConfig() (types.Config, error) {
	v := a.viper
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{
		Backend:       v.GetString(cfgKeyBackend),
		DataDir:       dataDir,
		SheetName:     v.GetString(cfgKeySheetName),
		SyncStrategy:  types.SyncStrategy(v.GetString(cfgKeySyncStrategy)),
		BatchSize:     v.GetInt(cfgKeyBatchSize),
		BatchInterval: v.GetDuration(cfgKeyBatchInterval),
		CacheTTL:      v.GetDuration(cfgKeyCacheTTL),
		MatchPolicy:   types.MatchPolicy(v.GetString(cfgKeyMatchPolicy)),
		S3: types.S3Config{
			Bucket:          v.GetString(cfgKeyS3Bucket),
			Key:             v.GetString(cfgKeyS3Key),
			Region:          v.GetString(cfgKeyS3Region),
			Endpoint:        v.GetString(cfgKeyS3Endpoint),
			PathStyle:       v.GetBool(cfgKeyS3PathStyle),
			AccessKeyID:     v.GetString(cfgKeyS3AccessKey),
			SecretAccessKey: v.GetString(cfgKeyS3SecretKey),
		},
		Postgres: types.PostgresConfig{DSN: v.GetString(cfgKeyPostgresDSN)},
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
