package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
)

var (
	cfgFile string

	// v holds defaults, bound flags and the environment for every command.
	v = config.New()

	rootCmd = &cobra.Command{
		Use:   "filmaudit [path]",
		Short: "Audit digitised film and mag transfers against an inventory",
		Long: `filmaudit checks a delivery of digitised film scans and magnetic audio
transfers against the archive's inventory ledger.

A run walks the delivery, reconciles every file with its inventory record,
verifies MD5 checksums against the shipped manifests, checks frame sequences
for gaps, and compares technical attributes with the reference profiles.

Examples:
  filmaudit ledger import inventory.json   # Seed the ledger
  filmaudit /mnt/delivery                  # Audit a delivery
  filmaudit -o markdown --report-dir . .   # Write the archival report
  filmaudit ledger show --missing          # Items not delivered yet
  filmaudit history                        # Earlier runs`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runAudit,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/filmaudit/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().String("ledger", "", "ledger file (overrides ledger.path)")
	rootCmd.PersistentFlags().String("ledger-backend", "", "ledger backend: json or sqlite")

	_ = v.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag("ledger.path", rootCmd.PersistentFlags().Lookup("ledger"))
	_ = v.BindPFlag("ledger.backend", rootCmd.PersistentFlags().Lookup("ledger-backend"))

	addAuditFlags(rootCmd)
}

// initConfig points viper at an explicit config file when one was given.
func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !isSilent(err) {
		printError("%v", err)
	}
	return err
}

// loadConfig loads configuration with bound flags applied. Defaults are
// registered again so XDG locations reflect the current environment.
func loadConfig() (*config.Config, error) {
	config.SetDefaults(v)
	cfg, err := config.LoadWith(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return v.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return v.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr if quiet mode is not enabled. Stdout
// is reserved for the rendered report.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
