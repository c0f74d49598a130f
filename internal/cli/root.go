// Package cli implements the cloudsync command line. The subcommands
// that start or change syncs (run, add, remove, enable, disable,
// drive-open) build an engine.Context through newContext; list, export
// and import only open the store through openStore.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/shuryanc/cloudsync/internal/cloudrpc"
	"github.com/shuryanc/cloudsync/internal/config"
	"github.com/shuryanc/cloudsync/internal/engine"
	"github.com/shuryanc/cloudsync/internal/store"
	"github.com/shuryanc/cloudsync/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cloudsync",
	Short: "Bidirectional cloud file sync engine",
	Long: `cloudsync keeps local directories and cloud folders in sync,
two-way by default or as a one-directional backup, reconciling local and
remote changes against a persisted shadow tree rather than trusting
either side's view of the world alone.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")
	rootCmd.AddCommand(runCmd, addCmd, removeCmd, enableCmd, disableCmd, listCmd, exportCmd, importCmd, driveOpenCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configPath through a dedicated viper instance so a
// CLOUDSYNC_-prefixed environment variable can override any config.yaml
// field without this package growing its own overlay logic. The merged
// view (file plus env) is re-marshalled to yaml and handed to
// config.Config's own yaml tags rather than viper.Unmarshal's
// mapstructure tags, since Config's fields are tagged for yaml.v3
// (snake_case keys like local_dir), not mapstructure's default
// case-insensitive field-name matching.
func loadConfig() (*config.Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("cloudsync")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	merged, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("remarshal config: %w", err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// openStore loads config.yaml and opens its Sync Config Store, without
// constructing a cloud client or an engine.Context. list, export and
// import use this directly, so they never need real credentials;
// newContext builds on it for the other subcommands.
func openStore() (*config.Config, *store.ConfigStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Setup(cfg.System.LogLevel, cfg.System.LogFile); err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	st, err := store.Open(cfg.System.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}

// newContext loads config.yaml, opens the store, builds a cloudrpc
// client from its credentials, and wires the two into an engine.Context.
// Every subcommand except list, export and import uses this.
func newContext() (*config.Config, *store.ConfigStore, *engine.Context, error) {
	cfg, st, err := openStore()
	if err != nil {
		return nil, nil, nil, err
	}
	client := cloudrpc.New(cloudrpc.Credentials{
		AppKey:       cfg.Cloud.AppKey,
		SecretKey:    cfg.Cloud.SecretKey,
		AccessToken:  cfg.Cloud.AccessToken,
		RefreshToken: cfg.Cloud.RefreshToken,
		UserAgent:    cfg.Cloud.UserAgent,
	}, cloudrpc.Endpoints{})

	var encKey []byte
	var store engine.CloudStore = client
	if cfg.Crypto.Enable {
		encKey = cfg.Crypto.AESKey()
		if cfg.Crypto.EncryptFilenames {
			store = engine.NewEncryptedNameStore(store, encKey)
		}
	}
	ctx := engine.NewContext(st, store, nil, encKey)
	return cfg, st, ctx, nil
}
