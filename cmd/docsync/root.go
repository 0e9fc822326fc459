package main

import (
	"github.com/spf13/cobra"

	"github.com/memorykeep/docsync/internal/config"
)

var (
	configPath string
	verbose    bool
	backend    string
)

var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "Sync small per-owner settings documents through a blob store",
	Long: `docsync keeps one JSON settings document per owner, partition and kind
in a blob store, with a local cache and a local fallback for writes that
could not reach the store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Blob store backend (memory|s3), overrides the configuration")
}

// loadConfig layers defaults, the config file, DOCSYNC_* variables and the
// command line flags, in that order.
func loadConfig() (*config.Configuration, error) {
	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}
	if verbose {
		cfg.Global.LogLevel = "DEBUG"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
