package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/basket/internal/sheet"
	"github.com/mesh-intelligence/basket/pkg/types"
)

// configFile holds the structure written to config.yaml by init.
type configFile struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir,omitempty"`
}

func newInitCmd(a *app) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize basket storage",
		Long: "Write config.yaml with the chosen backend and data directory, then\n" +
			"create the store with its header row.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(cmd, backend)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "backend to record in config.yaml (default: current backend)")
	return cmd
}

func (a *app) runInit(cmd *cobra.Command, backend string) error {
	if backend != "" {
		a.viper.Set(cfgKeyBackend, backend)
	}
	cfg, err := a.listConfig()
	if err != nil {
		return userError(err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return sysError(fmt.Errorf("create data directory: %w", err))
	}

	path := filepath.Join(a.configDir, configFileExt)
	if err := writeConfig(path, configFile{Backend: cfg.Backend, DataDir: cfg.DataDir}); err != nil {
		return sysError(fmt.Errorf("write config: %w", err))
	}

	if err := initSheet(cmd.Context(), cfg); err != nil {
		return sysError(fmt.Errorf("initialize storage: %w", err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "basket initialized (%s backend, data in %s)\n", cfg.Backend, cfg.DataDir)
	return nil
}

// initSheet writes the header row into an empty store. A store that already
// has rows is left as it is.
func initSheet(ctx context.Context, cfg types.Config) error {
	sh, err := sheet.Open(ctx, cfg)
	if err != nil {
		return err
	}
	rows, err := sh.Rows(ctx)
	if err == nil && len(rows) == 0 {
		err = sh.Replace(ctx, [][]string{types.Header})
	}
	return errors.Join(err, sh.Close())
}

// writeConfig records the backend and data directory in config.yaml, keeping
// any other keys already present.
func writeConfig(path string, cf configFile) error {
	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	doc[cfgKeyBackend] = cf.Backend
	if cf.DataDir != "" && cf.Backend != types.BackendMemory {
		doc[cfgKeyDataDir] = cf.DataDir
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
