package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the inventory ledger",
	Long: `Seed, inspect, and reset the inventory ledger.

The ledger holds one record per inventory item (shelfmark) with the state
reconciliation has built up: whether a file was found, where, how many
files and bytes matched, and whether the delivered type matched.`,
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import <seed.json>",
	Short: "Seed the ledger from an inventory export",
	Long: `Create the ledger from an inventory export of the form

  {"inventory": [{"shelfmark": "BL_C1979-4701_s1_f1_v1", "type": "film"}, ...]}

An item carrying a "film" key or type "film" is film, anything else is mag.
An existing ledger is only replaced with --force.`,
	Args: cobra.ExactArgs(1),
	RunE: runLedgerImport,
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show ledger records",
	RunE:  runLedgerShow,
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear reconciliation state, keeping the records",
	Long: `Clear found flags, locations, sizes, counts, and processed paths so the
next audit reconciles every file again. Records are kept.`,
	RunE: runLedgerReset,
}

var (
	importForce bool
	showMissing bool
	resetYes    bool
)

func init() {
	ledgerImportCmd.Flags().BoolVar(&importForce, "force", false, "replace an existing ledger")
	ledgerShowCmd.Flags().BoolVar(&showMissing, "missing", false, "only records no file has matched")
	ledgerResetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm the reset")

	ledgerCmd.AddCommand(ledgerImportCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerResetCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// withLedger loads config and logging, opens the ledger, and runs fn with it.
func withLedger(fn func(ctx context.Context, store ledger.Store, l *ledger.Ledger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg, false); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()

	ctx := context.Background()
	store, l, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store, l)
}

func runLedgerImport(_ *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open seed: %w", err)
	}
	defer f.Close()

	records, err := ledger.ImportSeed(f)
	if err != nil {
		return err
	}
	fresh, err := ledger.New(records)
	if err != nil {
		return err
	}

	return withLedger(func(ctx context.Context, store ledger.Store, existing *ledger.Ledger) error {
		if existing.Len() > 0 && !importForce {
			return fmt.Errorf("ledger already holds %d records; use --force to replace it", existing.Len())
		}
		if err := store.Save(ctx, fresh); err != nil {
			return fmt.Errorf("failed to save ledger: %w", err)
		}
		logging.Get("ledger").Info("ledger seeded", "source", args[0], "records", fresh.Len(), "replaced", existing.Len())

		var film, mag int
		for _, r := range records {
			if r.ExpectedKind == types.KindFilm {
				film++
			} else {
				mag++
			}
		}
		printInfo("Imported %d records (%d film, %d mag)", len(records), film, mag)
		return nil
	})
}

func runLedgerShow(_ *cobra.Command, _ []string) error {
	return withLedger(func(_ context.Context, _ ledger.Store, l *ledger.Ledger) error {
		records := l.Records()
		if showMissing {
			records = l.Missing()
		}
		renderLedger(os.Stdout, records, l.Summary())
		return nil
	})
}

// renderLedger writes records as a table followed by the ledger summary.
func renderLedger(w io.Writer, records []ledger.Record, s ledger.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Shelfmark", "Type", "Found", "Type OK", "Files", "Size", "Location"})
	for _, r := range records {
		tw.AppendRow(table.Row{
			r.Identity,
			r.ExpectedKind.String(),
			yesNo(r.Found),
			yesNo(r.TypeConfirmed),
			r.FileCount,
			types.FormatSizeU(r.AggregateSize),
			r.Location,
		})
	}
	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d records", s.Records), "",
		fmt.Sprintf("%d found", s.Found), fmt.Sprintf("%d confirmed", s.TypeConfirmed),
		s.TotalFiles, types.FormatSizeU(s.TotalSize), fmt.Sprintf("%d missing", s.Missing),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	tw.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runLedgerReset(_ *cobra.Command, _ []string) error {
	if !resetYes {
		return fmt.Errorf("reset clears all reconciliation state; rerun with --yes to confirm")
	}
	return withLedger(func(ctx context.Context, store ledger.Store, l *ledger.Ledger) error {
		l.Reset()
		if err := store.Save(ctx, l); err != nil {
			return fmt.Errorf("failed to save ledger: %w", err)
		}
		logging.Get("ledger").Info("ledger reset", "records", l.Len())
		printInfo("Reset %d records", l.Len())
		return nil
	})
}
