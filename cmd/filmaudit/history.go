package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/history"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View earlier audit runs",
	Long: `List earlier audit runs, newest first.

Each run is recorded with its totals; with history.full enabled the complete
report is kept and can be rendered again with 'history show'.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove runs older than the retention period",
	RunE:  runHistoryClean,
}

var (
	historyLimit  int
	historyFormat string
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")
	historyShowCmd.Flags().StringVarP(&historyFormat, "output", "o", "pretty", "format for a stored full report")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getHistory returns the history store, falling back to the default
// location when configuration cannot be loaded.
func getHistory() (*history.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		printVerbose("Using default history directory: %v", err)
		store, err := history.New(config.DefaultHistoryDir())
		return store, nil, err
	}
	store, err := history.New(cfg.History.Path)
	return store, cfg, err
}

func runHistory(_ *cobra.Command, _ []string) error {
	store, _, err := getHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	entries, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(entries) == 0 {
		printInfo("No recorded runs.")
		printInfo("Run 'filmaudit [path]' to audit a delivery.")
		return nil
	}

	fmt.Printf("\n%-36s  %-19s  %8s  %8s  %-8s  %s\n", "ID", "FINISHED", "FILMS", "MAGS", "RESULT", "ROOT")
	fmt.Println(strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Printf("%-36s  %-19s  %8d  %8d  %-8s  %s\n",
			e.ID,
			e.Finished.Local().Format("2006-01-02 15:04:05"),
			e.Totals.Film,
			e.Totals.Mag,
			entryResult(e),
			e.Root,
		)
	}
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("\nShowing %d runs. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'filmaudit history show <id>' for details on a run.")
	return nil
}

func entryResult(e history.Entry) string {
	switch {
	case e.Interrupted:
		return "partial"
	case e.Findings:
		return "findings"
	default:
		return "ok"
	}
}

func runHistoryShow(_ *cobra.Command, args []string) error {
	store, _, err := getHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	entry, err := store.Get(args[0])
	if err != nil {
		return err
	}

	if entry.Report != nil {
		formatter, err := output.Get(historyFormat)
		if err != nil {
			return fmt.Errorf("unknown output format %q: available formats are %v", historyFormat, output.Available())
		}
		var buf bytes.Buffer
		if err := formatter.Format(&buf, entry.Report); err != nil {
			return fmt.Errorf("failed to format report: %w", err)
		}
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}

	t := entry.Totals
	fmt.Println("\nRun Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:                 %s\n", entry.ID)
	fmt.Printf("Root:               %s\n", entry.Root)
	fmt.Printf("Started:            %s\n", entry.Started.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Duration:           %s\n", entry.Duration().Round(time.Second))
	fmt.Printf("Result:             %s\n", entryResult(*entry))
	fmt.Printf("Directories:        %d\n", t.Directories)
	fmt.Printf("Files:              %d (%d film, %d mag)\n", t.Files, t.Film, t.Mag)
	fmt.Printf("Checksums:          %d verified, %d failed, %d without manifest\n", t.ChecksumVerified, t.ChecksumFailed, t.ChecksumMissing)
	fmt.Printf("Attributes:         %d verified, %d failed\n", t.AttributesVerified, t.AttributesFailed)
	fmt.Printf("Missing frames:     %d\n", t.MissingFrames)
	fmt.Printf("Count mismatches:   %d\n", t.LineCountMismatches)
	fmt.Printf("Manifest errors:    %d\n", t.ManifestErrors)
	fmt.Printf("Anomalies:          %d\n", t.Anomalies)
	return nil
}

func runHistoryClean(_ *cobra.Command, _ []string) error {
	store, cfg, err := getHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	retentionDays := config.DefaultRetentionDays
	if cfg != nil && cfg.History.RetentionDays > 0 {
		retentionDays = cfg.History.RetentionDays
	}

	printInfo("Removing runs older than %d days...", retentionDays)
	n, err := store.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d runs.", n)
	return nil
}
