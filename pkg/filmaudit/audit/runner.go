// Package audit runs a complete audit of an archive root: a walk, an
// inventory pass that reconciles every file against the ledger, and a
// verification pass that checks frame continuity, checksums and technical
// attributes.
//
// Per-file verification runs on a bounded worker pool. Every outcome flows
// back over a channel to the goroutine that called Run, which is the only
// writer of the report.
package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/inventory"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/mediainfo"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/naming"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/profile"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/scanner"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/sequence"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// ErrNoLedger is returned when a runner is built without a ledger.
var ErrNoLedger = errors.New("audit requires a ledger")

// Phase names a stage of the run for progress reporting.
type Phase string

// Run phases in order.
const (
	PhaseWalk      Phase = "walk"
	PhaseInventory Phase = "inventory"
	PhaseVerify    Phase = "verify"
	PhaseDone      Phase = "done"
)

// Progress is a snapshot of run progress.
type Progress struct {
	Phase       Phase
	CurrentPath string

	// DirsScanned and FilesScanned count walk progress.
	DirsScanned  int64
	FilesScanned int64

	// Done and Total count files in the inventory and verify phases.
	Done  int64
	Total int64
}

// Options configures a Runner. Only Ledger is required.
type Options struct {
	// Ledger is the inventory reconciled during the run.
	Ledger *ledger.Ledger

	// Store persists the ledger after each directory. Nil keeps it in memory.
	Store ledger.Store

	// Hasher computes digests. Nil uses an MD5Hasher with the default chunk size.
	Hasher checksum.Hasher

	// Verifier checks files against manifests. Nil builds one over Hasher.
	Verifier *checksum.Verifier

	// Indexes caches parsed manifests shared by Verifier and Sequence.
	Indexes *checksum.IndexCache

	// Sequence checks frame continuity. Nil builds one from Conventions.
	Sequence *sequence.Checker

	// Inspector extracts technical attributes. Nil disables attribute checks.
	Inspector mediainfo.Inspector

	// Profiles are the reference attributes. Nil uses profile.Defaults().
	Profiles *profile.Set

	// Conventions describe file naming. Zero values use the defaults.
	Conventions naming.Conventions

	// ChecksumExt is the manifest extension. Empty uses ".md5".
	ChecksumExt string

	// Exclude holds walk exclusion patterns.
	Exclude []string

	// Workers bounds concurrent file verification. Values below 1 mean 1.
	Workers int

	// OnProgress receives progress snapshots. It is called from the
	// goroutine running Run and from walk goroutines.
	OnProgress func(Progress)
}

// Runner executes audits.
type Runner struct {
	opts Options
	log  *logging.Logger
}

// New validates opts and fills defaults.
func New(opts Options) (*Runner, error) {
	if opts.Ledger == nil {
		return nil, ErrNoLedger
	}

	def := naming.DefaultConventions()
	if opts.Conventions.FilmExt == "" {
		opts.Conventions.FilmExt = def.FilmExt
	}
	if opts.Conventions.MagExt == "" {
		opts.Conventions.MagExt = def.MagExt
	}
	if opts.Conventions.FrameSuffixLen <= 0 {
		opts.Conventions.FrameSuffixLen = def.FrameSuffixLen
	}
	if opts.Conventions.FrameTokenIndex < 0 {
		opts.Conventions.FrameTokenIndex = def.FrameTokenIndex
	}
	if opts.ChecksumExt == "" {
		opts.ChecksumExt = checksum.DefaultManifestExt
	}
	if opts.Indexes == nil {
		opts.Indexes = checksum.NewIndexCache(checksum.DefaultIndexCacheSize)
	}
	if opts.Hasher == nil {
		opts.Hasher = checksum.NewMD5Hasher(checksum.DefaultChunkSize)
	}
	if opts.Verifier == nil {
		opts.Verifier = checksum.NewVerifier(opts.Hasher, opts.Indexes)
	}
	if opts.Sequence == nil {
		opts.Sequence = sequence.NewChecker(opts.Conventions.FrameTokenIndex, opts.Indexes)
	}
	if opts.Profiles == nil {
		opts.Profiles = profile.Defaults()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Runner{opts: opts, log: logging.Get("audit")}, nil
}

// Run audits root. The returned report is complete up to the point the run
// stopped. The error is non-nil when the run could not finish: the walk
// failed, the ledger could not be saved, the inspection tool is unusable,
// or ctx was cancelled (in which case Report.Interrupted is set).
// Cancellation is honoured between files; a file being hashed finishes.
func (r *Runner) Run(ctx context.Context, root string) (*Report, error) {
	report := &Report{
		RunID:             uuid.New().String(),
		Root:              root,
		Started:           time.Now(),
		AttributesChecked: r.opts.Inspector != nil,
	}
	defer func() {
		report.Finished = time.Now()
		report.Inventory.Summary = r.opts.Ledger.Summary()
		report.Inventory.Missing = r.opts.Ledger.Missing()
		report.sortFiles()
	}()

	r.log.Info("audit started", "run", report.RunID, "root", root, "workers", r.opts.Workers)

	walk, err := scanner.Walk(ctx, scanner.Options{
		Root:        root,
		Exclude:     r.opts.Exclude,
		Conventions: r.opts.Conventions,
		ManifestExt: r.opts.ChecksumExt,
		OnProgress: func(p scanner.Progress) {
			r.progress(Progress{
				Phase:        PhaseWalk,
				CurrentPath:  p.CurrentPath,
				DirsScanned:  p.DirsScanned,
				FilesScanned: p.FilesScanned,
			})
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			report.Interrupted = true
		}
		return report, fmt.Errorf("walking %s: %w", root, err)
	}
	report.Root = walk.Root
	report.ScanErrors = walk.Errors
	for _, se := range walk.Errors {
		r.log.Error("entry unreadable during walk", "path", se.Path, "error", se.Error)
	}
	r.log.Info("walk complete",
		"dirs", walk.DirsScanned, "files", walk.FileCount(), "batches", len(walk.Batches), "elapsed", walk.Elapsed)

	if err := r.inventoryPass(ctx, walk, report); err != nil {
		return report, err
	}
	if err := r.verifyPass(ctx, walk, report); err != nil {
		return report, err
	}

	r.progress(Progress{Phase: PhaseDone, Done: int64(len(report.Files)), Total: int64(walk.FileCount())})
	t := report.Totals()
	r.log.Info("audit complete",
		"run", report.RunID,
		"files", t.Files,
		"checksum_failed", t.ChecksumFailed,
		"checksum_missing", t.ChecksumMissing,
		"attributes_failed", t.AttributesFailed,
		"missing_frames", t.MissingFrames)
	return report, nil
}

// inventoryPass reconciles each directory's files and saves the ledger
// after every directory.
func (r *Runner) inventoryPass(ctx context.Context, walk *scanner.Result, report *Report) error {
	reconciler := inventory.NewReconciler(r.opts.Ledger, r.opts.Conventions)
	total := int64(walk.FileCount())
	var done int64

	for i := range walk.Batches {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			return err
		}
		b := &walk.Batches[i]
		files := b.Files()
		r.progress(Progress{Phase: PhaseInventory, CurrentPath: b.Dir, Done: done, Total: total})

		res := reconciler.ReconcileBatch(files)
		report.Inventory.Reconciled += len(res.Reconciled)
		report.Inventory.Repeats += res.Repeats
		report.Inventory.Anomalies = append(report.Inventory.Anomalies, res.Anomalies...)
		done += int64(len(files))

		if r.opts.Store != nil {
			// Saved with a context that ignores cancellation so an abort
			// never leaves the directory half-persisted.
			if err := r.opts.Store.Save(context.WithoutCancel(ctx), r.opts.Ledger); err != nil {
				return fmt.Errorf("saving ledger after %s: %w", b.Dir, err)
			}
		}
		r.log.Debug("directory reconciled",
			"dir", b.Dir, "reconciled", len(res.Reconciled), "anomalies", len(res.Anomalies), "repeats", res.Repeats)
	}
	r.progress(Progress{Phase: PhaseInventory, Done: done, Total: total})
	return nil
}

// job is one file to verify.
type job struct {
	file     types.FileInfo
	kind     types.AssetKind
	manifest string

	// manifestErr is set when the file's manifest is already known to be
	// unavailable, so no checksum is attempted.
	manifestErr error
}

// verifyPass checks continuity per directory and verifies every file.
func (r *Runner) verifyPass(ctx context.Context, walk *scanner.Result, report *Report) error {
	total := int64(walk.FileCount())
	var done int64

	for i := range walk.Batches {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			return err
		}
		b := &walk.Batches[i]
		dir, jobs := r.planDirectory(b)
		report.Directories = append(report.Directories, dir)

		outcomes, err := r.verifyFiles(ctx, jobs, func(path string) {
			done++
			r.progress(Progress{Phase: PhaseVerify, CurrentPath: path, Done: done, Total: total})
		})
		report.Files = append(report.Files, outcomes...)
		if err != nil {
			if ctx.Err() != nil {
				report.Interrupted = true
			}
			return err
		}
	}
	return nil
}

// planDirectory runs the directory-level film checks and lists the file jobs.
func (r *Runner) planDirectory(b *scanner.Batch) (DirectoryReport, []job) {
	dir := DirectoryReport{Dir: b.Dir, Film: len(b.Film), Mag: len(b.Mag)}
	jobs := make([]job, 0, len(b.Film)+len(b.Mag))

	if len(b.Film) > 0 {
		manifest, err := checksum.PickManifest(b.Dir, r.filmManifests(b))
		if err == nil {
			dir.Manifest = manifest
			seq, seqErr := r.opts.Sequence.Check(b.FilmPaths(), manifest)
			if seqErr != nil {
				err = seqErr
			} else {
				dir.Sequence = &seq
			}
		}
		if err != nil {
			dir.ManifestError = err.Error()
			r.log.Critical("film manifest unavailable; directory checksums and sequence not verified",
				"dir", b.Dir, "error", err)
		}
		for _, f := range b.Film {
			jobs = append(jobs, job{file: f, kind: types.KindFilm, manifest: dir.Manifest, manifestErr: err})
		}
	}

	for _, f := range b.Mag {
		jobs = append(jobs, job{
			file:     f,
			kind:     types.KindMag,
			manifest: checksum.SidecarPath(f.Path, r.opts.ChecksumExt),
		})
	}
	return dir, jobs
}

// filmManifests returns the directory's manifests that are not sidecars of
// its mag files.
func (r *Runner) filmManifests(b *scanner.Batch) []string {
	sidecars := make(map[string]bool, len(b.Mag))
	for _, m := range b.Mag {
		sidecars[strings.ToLower(filepath.Base(checksum.SidecarPath(m.Path, r.opts.ChecksumExt)))] = true
	}
	magSuffix := strings.ToLower(r.opts.Conventions.MagExt + r.opts.ChecksumExt)

	var out []string
	for _, m := range b.Manifests {
		name := strings.ToLower(filepath.Base(m))
		if sidecars[name] || strings.HasSuffix(name, magSuffix) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// verifyFiles runs jobs on the worker pool and collects their outcomes in
// the calling goroutine. A fatal inspection error stops the pool and is
// returned with the outcomes gathered so far.
func (r *Runner) verifyFiles(ctx context.Context, jobs []job, onDone func(path string)) ([]FileOutcome, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	results := make(chan FileOutcome, r.opts.Workers)

	go func() {
		defer close(results)
		for _, j := range jobs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				outcome, err := r.verifyFile(gctx, j)
				results <- outcome
				return err
			})
		}
		_ = g.Wait()
	}()

	outcomes := make([]FileOutcome, 0, len(jobs))
	for o := range results {
		outcomes = append(outcomes, o)
		onDone(o.Path)
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// verifyFile checksums and inspects one file. The returned error is
// non-nil only for failures that end the run.
func (r *Runner) verifyFile(ctx context.Context, j job) (FileOutcome, error) {
	// Work on a started file runs to completion even if the run is cancelled.
	work := context.WithoutCancel(ctx)

	out := FileOutcome{
		Path:     j.file.Path,
		Dir:      filepath.Dir(j.file.Path),
		Kind:     j.kind,
		Size:     j.file.Size,
		Manifest: j.manifest,
	}

	r.checkDigest(work, j, &out)
	if r.opts.Inspector == nil {
		return out, nil
	}
	if err := r.checkAttributes(work, j, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (r *Runner) checkDigest(ctx context.Context, j job, out *FileOutcome) {
	if j.manifestErr != nil {
		out.ChecksumMissing = true
		out.ChecksumError = j.manifestErr.Error()
		return
	}

	res, err := r.opts.Verifier.Verify(ctx, j.file.Path, j.manifest)
	out.Checksum = res
	switch {
	case errors.Is(err, checksum.ErrManifestUnavailable):
		out.ChecksumMissing = true
		out.ChecksumError = err.Error()
		r.log.Error("checksum manifest missing", "file", j.file.Path, "manifest", j.manifest)
	case err != nil:
		out.ChecksumError = err.Error()
		r.log.Error("checksum not computed", "file", j.file.Path, "error", err)
	case !res.Found:
		out.ChecksumError = "not listed in manifest"
	default:
		out.ChecksumVerified = res.Verified
	}
}

func (r *Runner) checkAttributes(ctx context.Context, j job, out *FileOutcome) error {
	prof, err := r.opts.Profiles.For(j.kind)
	if err != nil {
		out.AttributeError = err.Error()
		return nil
	}

	attrs, err := r.opts.Inspector.Inspect(ctx, j.file.Path)
	if err != nil {
		out.AttributeError = err.Error()
		if errors.Is(err, mediainfo.ErrToolUnavailable) || errors.Is(err, mediainfo.ErrInspectFailed) {
			r.log.Critical("attribute inspection unusable; stopping run", "file", j.file.Path, "error", err)
			return fmt.Errorf("inspecting %s: %w", j.file.Path, err)
		}
		r.log.Error("attributes not inspected", "file", j.file.Path, "error", err)
		return nil
	}

	cmp := prof.Compare(attrs)
	out.Attributes = &cmp
	out.AttributesVerified = cmp.Verified
	if !cmp.Verified {
		mismatches := make([]string, len(cmp.Mismatches))
		for i, m := range cmp.Mismatches {
			mismatches[i] = m.String()
		}
		r.log.Error("attributes do not match profile",
			"file", j.file.Path, "profile", cmp.Profile, "mismatches", strings.Join(mismatches, "; "))
	}
	return nil
}

func (r *Runner) progress(p Progress) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(p)
	}
}
