package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
)

// RunLogSuffix ends every run log file name.
const RunLogSuffix = "_filmaudit.log"

// runLogTimeFormat is the leading timestamp of a run log name.
const runLogTimeFormat = "2006-01-02_15-04-05"

// RetentionConfig controls pruning of old run logs.
type RetentionConfig struct {
	// MaxAge is the number of days to keep run logs. Zero keeps them forever.
	MaxAge int

	// MaxBackups is the number of previous run logs to keep. Zero keeps all.
	MaxBackups int
}

// DefaultRetentionConfig returns the default pruning policy.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxAge:     90,
		MaxBackups: 50,
	}
}

// DefaultLogDir returns $XDG_STATE_HOME/filmaudit/logs.
func DefaultLogDir() string {
	return filepath.Join(xdg.StateHome, "filmaudit", "logs")
}

// RunLogName returns the log file name for a run started at t.
func RunLogName(t time.Time) string {
	return t.Format(runLogTimeFormat) + RunLogSuffix
}

// RunWriter appends to the log file of a single run. It is safe for
// concurrent use.
type RunWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewRunWriter creates the log file for a run started at start inside dir and
// prunes older run logs according to cfg. A name collision with a run started
// in the same second gets a numeric suffix.
func NewRunWriter(dir string, start time.Time, cfg RetentionConfig) (*RunWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	base := strings.TrimSuffix(RunLogName(start), RunLogSuffix)
	var (
		file *os.File
		path string
	)
	for i := 0; ; i++ {
		name := base + RunLogSuffix
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, RunLogSuffix)
		}
		path = filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			file = f
			break
		}
		if !errors.Is(err, os.ErrExist) || i >= 100 {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
	}

	w := &RunWriter{path: path, file: file}
	prune(dir, filepath.Base(path), cfg, time.Now())
	return w, nil
}

// Path returns the log file path.
func (w *RunWriter) Path() string {
	return w.path
}

// Write appends p to the log file.
func (w *RunWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the log file.
func (w *RunWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		w.file = nil
		return fmt.Errorf("syncing log file: %w", err)
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// prune removes run logs other than current that exceed the retention policy.
// Errors are ignored; pruning never stops a run.
func prune(dir, current string, cfg RetentionConfig, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type runLog struct {
		name    string
		modTime time.Time
	}
	var logs []runLog
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == current || !strings.HasSuffix(name, RunLogSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, runLog{name: name, modTime: info.ModTime()})
	}

	// Names start with the run timestamp, so reverse name order is newest first.
	sort.Slice(logs, func(i, j int) bool { return logs[i].name > logs[j].name })

	maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
	for i, l := range logs {
		expired := cfg.MaxBackups > 0 && i >= cfg.MaxBackups
		if cfg.MaxAge > 0 && now.Sub(l.modTime) > maxAge {
			expired = true
		}
		if expired {
			_ = os.Remove(filepath.Join(dir, l.name))
		}
	}
}
