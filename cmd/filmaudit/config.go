package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage filmaudit configuration settings.

Configuration is loaded from $XDG_CONFIG_HOME/filmaudit/config.yaml.

Environment variables override the file using the FILMAUDIT_ prefix:
  FILMAUDIT_LEDGER_PATH=/srv/audit/ledger.db
  FILMAUDIT_LEDGER_BACKEND=sqlite
  FILMAUDIT_WORKERS=8

A .env file in the working directory is read first. The names JSON_FILE,
DB_FILE and TEST_LOCATION are accepted there as fallbacks.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(config.ConfigFile())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if used := v.ConfigFileUsed(); used != "" {
		fmt.Printf("Config file: %s\n\n", used)
	} else {
		fmt.Print("Config file: (using defaults, no file found)\n\n")
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	rows := []struct {
		key   string
		value interface{}
	}{
		{"default_path", cfg.DefaultPath},
		{"exclude", cfg.Exclude},
		{"workers", workersLabel(cfg.Workers)},
		{"extensions.film", cfg.Extensions.Film},
		{"extensions.mag", cfg.Extensions.Mag},
		{"extensions.checksum", cfg.Extensions.Checksum},
		{"naming.frame_suffix_len", cfg.Naming.FrameSuffixLen},
		{"naming.frame_token_index", cfg.Naming.FrameTokenIndex},
		{"ledger.backend", cfg.Ledger.Backend},
		{"ledger.path", cfg.Ledger.Path},
		{"hash.chunk_size", cfg.Hash.ChunkSize},
		{"hash.cache", cfg.Hash.Cache},
		{"hash.cache_path", cfg.Hash.CachePath},
		{"mediainfo.enabled", cfg.Mediainfo.Enabled},
		{"mediainfo.binary", cfg.Mediainfo.Binary},
		{"mediainfo.timeout", cfg.Mediainfo.Timeout},
		{"profiles.path", cfg.Profiles.Path},
		{"history.enabled", cfg.History.Enabled},
		{"history.path", cfg.History.Path},
		{"history.retention_days", cfg.History.RetentionDays},
		{"history.full", cfg.History.Full},
		{"logging.level", cfg.Logging.Level},
		{"logging.dir", cfg.Logging.Dir},
	}
	for _, r := range rows {
		fmt.Printf("%-26s %v\n", r.key+":", r.value)
	}

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	found := false
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix+"_") || isLegacyEnv(name) {
			fmt.Println(kv)
			found = true
		}
	}
	if !found {
		fmt.Println("(none)")
	}
	return nil
}

func workersLabel(n int) string {
	if n == 0 {
		return "auto"
	}
	return fmt.Sprint(n)
}

func isLegacyEnv(name string) bool {
	switch name {
	case "JSON_FILE", "DB_FILE", "TEST_LOCATION":
		return true
	}
	return false
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := config.ConfigFile()
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		return nil
	}
	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", path)
	return nil
}
