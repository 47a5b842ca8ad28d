package main

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/history"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// isolate points every XDG location, the log directory, and the working
// directory at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("FILMAUDIT_LOGGING_DIR", filepath.Join(dir, "logs"))
	for _, name := range []string{"JSON_FILE", "DB_FILE", "TEST_LOCATION"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Chdir(dir)
	return dir
}

func TestLoggingConfig(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{
		Level:      "info",
		Dir:        "/logs",
		Retention:  config.RetentionConfig{MaxAge: 30, MaxBackups: 5},
		Components: map[string]string{"audit": "debug"},
	}}

	tests := []struct {
		name                       string
		verbose, quiet, interactive bool
		wantLevel, wantConsole     string
	}{
		{"default", false, false, false, "info", "warn"},
		{"verbose", true, false, false, "debug", "debug"},
		{"quiet", false, true, false, "info", "error"},
		{"interactive", false, false, true, "info", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := loggingConfig(cfg, tt.verbose, tt.quiet, tt.interactive)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantConsole, got.ConsoleLevel)
			assert.Equal(t, tt.interactive, got.Interactive)
			assert.Equal(t, "/logs", got.Dir)
			assert.Equal(t, 30, got.Retention.MaxAge)
			assert.Equal(t, 5, got.Retention.MaxBackups)
			assert.Equal(t, "debug", got.Components["audit"])
		})
	}
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	got, err := resolveRoot([]string{dir}, "/ignored")
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	got, err = resolveRoot(nil, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveRoot([]string{filepath.Join(dir, "missing")}, "")
	assert.ErrorContains(t, err, "does not exist")

	_, err = resolveRoot([]string{file}, "")
	assert.ErrorContains(t, err, "not a directory")
}

func TestApplyAuditFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addAuditFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"-w", "3", "-e", "**/tmp", "--no-mediainfo"}))
	t.Cleanup(func() { noMediainfo = false })

	cfg := &config.Config{
		Workers:   0,
		Exclude:   []string{"**/@eaDir"},
		Mediainfo: config.MediainfoConfig{Enabled: true},
		Hash:      config.HashConfig{Cache: true},
	}
	require.NoError(t, applyAuditFlags(cmd, cfg))

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"**/@eaDir", "**/tmp"}, cfg.Exclude)
	assert.False(t, cfg.Mediainfo.Enabled)
	assert.True(t, cfg.Hash.Cache)
}

func TestWriteMarkdownReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	finished := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	path, err := writeMarkdownReport(dir, &audit.Report{RunID: "r", Root: "/archive", Started: finished, Finished: finished})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audit_report_2024-05-01_09-30-00.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# AUDIT REPORT"))
}

func TestRenderLedger(t *testing.T) {
	l, err := ledger.New([]ledger.Record{
		{Identity: "BL_C1979-4701_s1_f1_v1_", ExpectedKind: types.KindFilm},
		{Identity: "BL_C1979-4701_s1_m1_v1", ExpectedKind: types.KindMag},
	})
	require.NoError(t, err)

	var out strings.Builder
	renderLedger(&out, l.Records(), l.Summary())

	assert.Contains(t, out.String(), "BL_C1979-4701_s1_f1_v1_")
	assert.Contains(t, out.String(), "mag")
	assert.Contains(t, out.String(), "2 records")
	assert.Contains(t, out.String(), "2 missing")
}

func TestEntryResult(t *testing.T) {
	assert.Equal(t, "ok", entryResult(history.Entry{}))
	assert.Equal(t, "findings", entryResult(history.Entry{Findings: true}))
	assert.Equal(t, "partial", entryResult(history.Entry{Findings: true, Interrupted: true}))
}

func TestImportThenAudit(t *testing.T) {
	dir := isolate(t)

	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{"inventory":[
		{"shelfmark":"BL_C1979-4701_s1_f1_v1_","type":"film"},
		{"shelfmark":"BL_C1979-4701_s1_m1_v1"}
	]}`), 0o644))

	delivery := filepath.Join(dir, "delivery", "reel1")
	require.NoError(t, os.MkdirAll(delivery, 0o755))
	var manifest strings.Builder
	for _, n := range []string{"00000001", "00000002"} {
		name := "BL_C1979-4701_s1_f1_v1_" + n + ".dpx"
		content := "frame " + n
		require.NoError(t, os.WriteFile(filepath.Join(delivery, name), []byte(content), 0o644))
		sum := md5.Sum([]byte(content))
		manifest.WriteString(hex.EncodeToString(sum[:]) + "  " + name + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(delivery, "reel1.md5"), []byte(manifest.String()), 0o644))

	rootCmd.SetArgs([]string{"ledger", "import", seed})
	require.NoError(t, Execute())

	reports := filepath.Join(dir, "reports")
	rootCmd.SetArgs([]string{"audit", filepath.Join(dir, "delivery"),
		"--no-mediainfo", "--no-progress", "--no-cache", "-q", "-o", "plain", "--report-dir", reports})
	require.NoError(t, Execute())

	entries, err := os.ReadDir(reports)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	store, err := history.New(config.DefaultHistoryDir())
	require.NoError(t, err)
	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Totals.ChecksumVerified)
	assert.False(t, runs[0].Findings)

	st, err := ledger.Open(ledger.BackendJSON, config.DefaultLedgerPath())
	require.NoError(t, err)
	defer st.Close()
	l, err := st.Load(t.Context())
	require.NoError(t, err)
	rec, ok := l.Lookup("BL_C1979-4701_s1_f1_v1_")
	require.True(t, ok)
	assert.True(t, rec.Found)
	assert.Equal(t, uint32(2), rec.FileCount)
}
