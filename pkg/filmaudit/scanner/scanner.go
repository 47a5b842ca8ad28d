package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// Batch is the media found directly inside one directory.
type Batch struct {
	// Dir is the absolute directory path.
	Dir string

	// Film holds frame files sorted by path.
	Film []types.FileInfo

	// Mag holds audio files sorted by path.
	Mag []types.FileInfo

	// Manifests holds checksum manifest paths sorted by path.
	Manifests []string
}

// Files returns the film and mag files of the batch.
func (b *Batch) Files() []types.FileInfo {
	out := make([]types.FileInfo, 0, len(b.Film)+len(b.Mag))
	out = append(out, b.Film...)
	return append(out, b.Mag...)
}

// FilmPaths returns the sorted frame paths.
func (b *Batch) FilmPaths() []string {
	out := make([]string, len(b.Film))
	for i, f := range b.Film {
		out[i] = f.Path
	}
	return out
}

// Result is the outcome of a walk.
type Result struct {
	Root         string
	Batches      []Batch
	DirsScanned  int64
	FilesScanned int64
	Elapsed      time.Duration
	Errors       []types.ScanError
}

// FileCount returns the number of film and mag files across all batches.
func (r *Result) FileCount() int {
	n := 0
	for i := range r.Batches {
		n += len(r.Batches[i].Film) + len(r.Batches[i].Mag)
	}
	return n
}

// FilmCount returns the number of frame files across all batches.
func (r *Result) FilmCount() int {
	n := 0
	for i := range r.Batches {
		n += len(r.Batches[i].Film)
	}
	return n
}

// Scanner walks a directory tree in parallel using fastwalk.
type Scanner struct {
	opts Options
	root string

	dirsScanned  atomic.Int64
	filesScanned atomic.Int64
	matched      atomic.Int64
	currentPath  atomic.Value
	lastProgress atomic.Int64

	mu      sync.Mutex
	batches map[string]*Batch
	errors  []types.ScanError
}

// New creates a Scanner. Options are validated when Walk runs.
func New(opts Options) *Scanner {
	s := &Scanner{
		opts:    opts,
		batches: make(map[string]*Batch),
	}
	s.currentPath.Store("")
	return s
}

// Walk walks the tree and returns the batches sorted by directory. Entries
// that cannot be read are recorded in Result.Errors and do not stop the walk.
func Walk(ctx context.Context, opts Options) (*Result, error) {
	return New(opts).Walk(ctx)
}

// Walk performs the walk. It blocks until complete or ctx is cancelled.
func (s *Scanner) Walk(ctx context.Context) (*Result, error) {
	start := time.Now()
	if err := s.opts.Validate(); err != nil {
		return nil, err
	}

	root, err := validateRoot(s.opts.Root)
	if err != nil {
		return nil, err
	}
	s.root = root
	s.currentPath.Store(root)
	s.reportProgressForce()

	conf := fastwalk.Config{
		Follow: false, // Don't follow symlinks.
	}

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		<-walkCtx.Done()
		close(done)
	}()

	walkErr := fastwalk.Walk(&conf, root, s.walkCallback(done))
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		return nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.reportProgressForce()

	return &Result{
		Root:         root,
		Batches:      s.sortedBatches(),
		DirsScanned:  s.dirsScanned.Load(),
		FilesScanned: s.filesScanned.Load(),
		Elapsed:      time.Since(start),
		Errors:       s.errors,
	}, nil
}

func validateRoot(path string) (string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", &fs.PathError{Op: "walk", Path: root, Err: os.ErrInvalid}
	}
	return root, nil
}

func (s *Scanner) walkCallback(done <-chan struct{}) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		select {
		case <-done:
			return fastwalk.ErrSkipFiles
		default:
		}

		if err != nil {
			s.addError(path, err)
			return nil
		}

		if path != s.root && s.isExcluded(path) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			s.dirsScanned.Add(1)
			s.currentPath.Store(path)
			s.reportProgress()
			return nil
		}

		if d.Type().IsRegular() {
			s.processFile(path, d)
		}
		return nil
	}
}

type fileClass int

const (
	classOther fileClass = iota
	classFilm
	classMag
	classManifest
)

func (s *Scanner) classify(path string) fileClass {
	ext := filepath.Ext(path)
	switch {
	case ext == "":
		return classOther
	case strings.EqualFold(ext, s.opts.Conventions.FilmExt):
		return classFilm
	case strings.EqualFold(ext, s.opts.Conventions.MagExt):
		return classMag
	case strings.EqualFold(ext, s.opts.ManifestExt):
		return classManifest
	default:
		return classOther
	}
}

func (s *Scanner) processFile(path string, d fs.DirEntry) {
	s.filesScanned.Add(1)

	class := s.classify(path)
	if class == classOther {
		return
	}
	s.matched.Add(1)

	dir := filepath.Dir(path)
	if class == classManifest {
		s.mu.Lock()
		b := s.batchLocked(dir)
		b.Manifests = append(b.Manifests, path)
		s.mu.Unlock()
		return
	}

	info, err := d.Info()
	if err != nil {
		s.addError(path, err)
		return
	}
	fi := types.FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
	}

	s.mu.Lock()
	b := s.batchLocked(dir)
	if class == classFilm {
		b.Film = append(b.Film, fi)
	} else {
		b.Mag = append(b.Mag, fi)
	}
	s.mu.Unlock()
}

// batchLocked returns the batch for dir. Caller must hold s.mu.
func (s *Scanner) batchLocked(dir string) *Batch {
	b, ok := s.batches[dir]
	if !ok {
		b = &Batch{Dir: dir}
		s.batches[dir] = b
	}
	return b
}

func (s *Scanner) sortedBatches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Batch, 0, len(s.batches))
	for _, b := range s.batches {
		sort.Slice(b.Film, func(i, j int) bool { return b.Film[i].Path < b.Film[j].Path })
		sort.Slice(b.Mag, func(i, j int) bool { return b.Mag[i].Path < b.Mag[j].Path })
		sort.Strings(b.Manifests)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	return out
}

func (s *Scanner) addError(path string, err error) {
	s.mu.Lock()
	s.errors = append(s.errors, types.ScanError{
		Path:  path,
		Error: err.Error(),
	})
	s.mu.Unlock()
}

// isExcluded checks if a path matches any exclusion pattern.
func (s *Scanner) isExcluded(path string) bool {
	for _, pattern := range s.opts.Exclude {
		if matchesExclusionPattern(path, pattern) {
			return true
		}
	}
	return false
}

// matchesExclusionPattern matches a pattern against the full path, or
// against the base name when the pattern has no separator.
func matchesExclusionPattern(path, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}

	if path == pattern || strings.HasPrefix(path, pattern+string(filepath.Separator)) {
		return true
	}

	if !strings.ContainsRune(pattern, '/') && !strings.ContainsRune(pattern, filepath.Separator) {
		if matched, err := doublestar.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	slashPath := filepath.ToSlash(path)
	slashPattern := filepath.ToSlash(pattern)
	for _, candidate := range []string{slashPath, strings.TrimPrefix(slashPath, "/")} {
		if matched, err := doublestar.Match(slashPattern, candidate); err == nil && matched {
			return true
		}
	}
	return false
}

// reportProgress calls the progress callback at most every 10ms.
func (s *Scanner) reportProgress() {
	if s.opts.OnProgress == nil {
		return
	}
	now := time.Now().UnixMilli()
	last := s.lastProgress.Load()
	if now-last < 10 {
		return
	}
	if !s.lastProgress.CompareAndSwap(last, now) {
		return
	}
	s.sendProgress()
}

func (s *Scanner) reportProgressForce() {
	if s.opts.OnProgress == nil {
		return
	}
	s.lastProgress.Store(time.Now().UnixMilli())
	s.sendProgress()
}

func (s *Scanner) sendProgress() {
	currentPath, _ := s.currentPath.Load().(string)
	s.opts.OnProgress(Progress{
		DirsScanned:  s.dirsScanned.Load(),
		FilesScanned: s.filesScanned.Load(),
		Matched:      s.matched.Load(),
		CurrentPath:  currentPath,
	})
}
