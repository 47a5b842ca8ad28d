package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/filmaudit/cmd/filmaudit/tui"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/cache"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/history"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/mediainfo"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/naming"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/output"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/profile"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/tuner"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// errFindings is returned with --fail-on-findings when the audit found
// something. main maps it to exit status 2.
var errFindings = errors.New("audit findings need review")

var auditCmd = &cobra.Command{
	Use:   "audit [path]",
	Short: "Audit a delivery (the default command)",
	Long: `Walk a delivery and run every check: inventory reconciliation, checksum
verification, frame sequence continuity, and technical attributes.

The ledger is saved after each directory, so an interrupted run can be
resumed; files reconciled by an earlier run are not counted twice.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

// Audit flags.
var (
	outputFormat   string
	reportDir      string
	noMediainfo    bool
	noCache        bool
	noProgress     bool
	failOnFindings bool
)

func init() {
	addAuditFlags(auditCmd)
	rootCmd.AddCommand(auditCmd)
}

// addAuditFlags registers the audit flags on cmd. The root command carries
// them too so "filmaudit <path>" behaves like "filmaudit audit <path>".
func addAuditFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "pretty", fmt.Sprintf("output format %v", output.Available()))
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "also write the markdown report into this directory")
	cmd.Flags().IntP("workers", "w", 0, "override hashing worker count (0=auto)")
	cmd.Flags().StringSliceP("exclude", "e", nil, "exclude patterns (can be specified multiple times)")
	cmd.Flags().BoolVar(&noMediainfo, "no-mediainfo", false, "skip technical attribute checks")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "hash every file even when a cached digest is valid")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the interactive progress display")
	cmd.Flags().BoolVar(&failOnFindings, "fail-on-findings", false, "exit with status 2 when the audit has findings")
}

// applyAuditFlags overlays the flags given on the command line onto cfg.
func applyAuditFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		n, err := flags.GetInt("workers")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("--workers must not be negative")
		}
		cfg.Workers = n
	}
	if flags.Changed("exclude") {
		patterns, err := flags.GetStringSlice("exclude")
		if err != nil {
			return err
		}
		cfg.Exclude = append(cfg.Exclude, patterns...)
	}
	if noMediainfo {
		cfg.Mediainfo.Enabled = false
	}
	if noCache {
		cfg.Hash.Cache = false
	}
	return nil
}

// runAudit is the audit command handler.
func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyAuditFlags(cmd, cfg); err != nil {
		return err
	}

	root, err := resolveRoot(args, cfg.DefaultPath)
	if err != nil {
		return err
	}

	formatter, err := output.Get(outputFormat)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", outputFormat, output.Available())
	}

	interactive := !noProgress && !getQuiet() && isTerminal(os.Stderr)
	if err := initLogging(cfg, interactive); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()
	log := logging.Get("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, l, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if l.Len() == 0 {
		return fmt.Errorf("ledger %s has no records; seed it with 'filmaudit ledger import <seed.json>'", cfg.Ledger.Path)
	}

	opts, cleanup, err := buildOptions(cfg, l, store)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info("audit starting", "root", root, "workers", opts.Workers, "ledger", cfg.Ledger.Path,
		"attributes", opts.Inspector != nil)
	if !interactive {
		printInfo("Auditing %s against %d inventory records...", root, l.Len())
	}

	var report *audit.Report
	var runErr error
	if interactive {
		report, runErr = tui.Run(ctx, tui.Options{Root: root, Records: l.Len()},
			func(ctx context.Context, onProgress func(audit.Progress)) (*audit.Report, error) {
				opts.OnProgress = onProgress
				return runWith(ctx, opts, root)
			})
	} else {
		report, runErr = runWith(ctx, opts, root)
	}
	if report == nil {
		return runErr
	}

	if err := writeReport(formatter, report); err != nil {
		return err
	}
	if reportDir != "" {
		path, err := writeMarkdownReport(reportDir, report)
		if err != nil {
			return err
		}
		printInfo("Report written to %s", path)
	}
	if cfg.History.Enabled {
		recordHistory(cfg, report)
	}

	switch {
	case runErr != nil:
		if errors.Is(runErr, context.Canceled) {
			log.Warn("audit interrupted", "files", len(report.Files))
			return fmt.Errorf("audit interrupted; rerun to resume")
		}
		log.Critical("audit aborted", "error", runErr)
		return fmt.Errorf("audit aborted: %w", runErr)
	case failOnFindings && report.HasFindings():
		return errFindings
	}
	log.Info("audit finished", "id", report.RunID, "findings", report.HasFindings(), "duration", report.Duration())
	return nil
}

func runWith(ctx context.Context, opts audit.Options, root string) (*audit.Report, error) {
	runner, err := audit.New(opts)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, root)
}

// resolveRoot picks the audit root from the argument or the configured
// default and checks it is a directory.
func resolveRoot(args []string, defaultPath string) (string, error) {
	path := defaultPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = config.DefaultPath
	}

	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path does not exist: %s", absPath)
		}
		return "", fmt.Errorf("cannot access path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", absPath)
	}
	return absPath, nil
}

// openLedger opens and locks the configured ledger and loads it.
func openLedger(ctx context.Context, cfg *config.Config) (ledger.Store, *ledger.Ledger, error) {
	backend, err := ledger.ParseBackend(cfg.Ledger.Backend)
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.Open(backend, cfg.Ledger.Path)
	if err != nil {
		if errors.Is(err, ledger.ErrLocked) {
			return nil, nil, fmt.Errorf("%w: %s (is another filmaudit running?)", err, ledger.LockPath(cfg.Ledger.Path))
		}
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	l, err := store.Load(ctx)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to load ledger %s: %w", cfg.Ledger.Path, err)
	}
	printVerbose("Ledger: %s (%s, %d records)", cfg.Ledger.Path, backend, l.Len())
	return store, l, nil
}

// buildOptions wires the configured collaborators into runner options. The
// returned cleanup releases the digest cache.
func buildOptions(cfg *config.Config, l *ledger.Ledger, store ledger.Store) (audit.Options, func(), error) {
	log := logging.Get("cli")
	cleanup := func() {}

	var hasher checksum.Hasher = checksum.NewMD5Hasher(cfg.Hash.ChunkSize)
	if cfg.Hash.Cache {
		dc, err := cache.Open(cfg.Hash.CachePath)
		if err != nil {
			log.Warn("digest cache unavailable, hashing every file", "path", cfg.Hash.CachePath, "error", err)
		} else {
			hasher = cache.NewCachedHasher(hasher, dc)
			cleanup = func() {
				if err := dc.Close(); err != nil {
					log.Warn("closing digest cache", "error", err)
				}
			}
			printVerbose("Digest cache: %s", cfg.Hash.CachePath)
		}
	}

	var inspector mediainfo.Inspector
	if cfg.Mediainfo.Enabled {
		exec := &mediainfo.Exec{Binary: cfg.Mediainfo.Binary, Timeout: cfg.Mediainfo.Timeout}
		if err := exec.Check(); err != nil {
			cleanup()
			return audit.Options{}, nil, fmt.Errorf("%w (use --no-mediainfo to skip attribute checks)", err)
		}
		inspector = exec
	}

	profiles := profile.Defaults()
	if cfg.Profiles.Path != "" {
		loaded, err := profile.LoadFile(cfg.Profiles.Path)
		if err != nil {
			cleanup()
			return audit.Options{}, nil, fmt.Errorf("failed to load profiles: %w", err)
		}
		profiles = loaded
	}

	resources, err := tuner.Detect()
	if err != nil {
		printVerbose("Failed to detect system resources, using defaults: %v", err)
		resources = tuner.SystemResources{
			CPUCores:     4,
			TotalRAM:     8 * types.GiB,
			AvailableRAM: 4 * types.GiB,
		}
	}
	workers := tuner.HashWorkersWithOverride(resources, cfg.Hash.ChunkSize, cfg.Workers)
	printVerbose("System: %d CPUs, %s available, %d hashing workers",
		resources.CPUCores, types.FormatSize(resources.AvailableRAM), workers)

	return audit.Options{
		Ledger:    l,
		Store:     store,
		Hasher:    hasher,
		Inspector: inspector,
		Profiles:  profiles,
		Conventions: naming.Conventions{
			FilmExt:         cfg.Extensions.Film,
			MagExt:          cfg.Extensions.Mag,
			FrameSuffixLen:  cfg.Naming.FrameSuffixLen,
			FrameTokenIndex: cfg.Naming.FrameTokenIndex,
		},
		ChecksumExt: cfg.Extensions.Checksum,
		Exclude:     cfg.Exclude,
		Workers:     workers,
	}, cleanup, nil
}

func writeReport(formatter output.Formatter, report *audit.Report) error {
	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err := os.Stdout.Write(buf.Bytes())
	return err
}

// writeMarkdownReport writes the archival report file into dir.
func writeMarkdownReport(dir string, report *audit.Report) (string, error) {
	md, err := output.Get("markdown")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := md.Format(&buf, report); err != nil {
		return "", fmt.Errorf("failed to format report: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, output.ReportFileName(report.Finished))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// recordHistory saves the run and prunes old entries. Failures are logged;
// history never fails an audit.
func recordHistory(cfg *config.Config, report *audit.Report) {
	log := logging.Get("cli")
	store, err := history.New(cfg.History.Path)
	if err != nil {
		log.Warn("history disabled", "error", err)
		return
	}
	store.Full = cfg.History.Full
	if _, err := store.Save(report); err != nil {
		log.Warn("failed to record run", "error", err)
		return
	}
	if n, err := store.Cleanup(cfg.History.RetentionDays); err != nil {
		log.Warn("history cleanup failed", "error", err)
	} else if n > 0 {
		log.Debug("pruned history", "removed", n)
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// isSilent reports errors main handles without printing.
func isSilent(err error) bool {
	return errors.Is(err, errFindings)
}
