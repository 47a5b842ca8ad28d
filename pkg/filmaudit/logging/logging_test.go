package logging_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
)

// These tests share global logging state and must not run in parallel.

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"critical", logging.LevelCritical, false},
		{"loud", logging.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, logging.ErrInvalidLevel) {
				t.Errorf("error = %v, want ErrInvalidLevel", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetBeforeInitDiscards(t *testing.T) {
	_ = logging.Close()

	logger := logging.Get("test")
	if logger == nil {
		t.Fatal("Get() returned nil")
	}
	logger.Info("dropped")
	logger.Critical("dropped too")

	if logging.Path() != "" {
		t.Errorf("Path() = %q before Init, want empty", logging.Path())
	}
}

func TestInitWritesRunLog(t *testing.T) {
	dir := t.TempDir()
	if err := logging.Init(logging.Config{Level: "info", Dir: dir}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = logging.Close() })

	path := logging.Path()
	if filepath.Dir(path) != dir {
		t.Errorf("log dir = %q, want %q", filepath.Dir(path), dir)
	}
	if !strings.HasSuffix(path, logging.RunLogSuffix) {
		t.Errorf("log name %q lacks suffix %q", path, logging.RunLogSuffix)
	}

	logger := logging.Get("sequence")
	logger.Debug("hidden detail")
	logger.Info("directory checked", "dir", "/archive/reel1")
	logger.Critical("frames missing", "count", 3)

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	content := string(data)

	for _, want := range []string{"directory checked", "frames missing", "severity=critical", "sequence"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "hidden detail") {
		t.Error("debug entry written at info level")
	}
}

func TestComponentLevels(t *testing.T) {
	dir := t.TempDir()
	err := logging.Init(logging.Config{
		Level:      "warn",
		Dir:        dir,
		Components: map[string]string{"checksum": "debug"},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	path := logging.Path()

	logging.Get("checksum").Debug("hashing frame")
	logging.Get("inventory").Info("record found")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "hashing frame") {
		t.Error("component override not applied")
	}
	if strings.Contains(string(data), "record found") {
		t.Error("default level not applied")
	}
}

func TestInitInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := logging.Init(logging.Config{Level: "nope", Dir: dir}); err == nil {
		t.Error("Init() with bad level succeeded")
	}
	if err := logging.Init(logging.Config{Level: "info", Dir: dir, Components: map[string]string{"x": "nope"}}); err == nil {
		t.Error("Init() with bad component level succeeded")
	}
	_ = logging.Close()
}

func TestInteractiveRecordsWarnings(t *testing.T) {
	if err := logging.Init(logging.Config{Level: "info", Dir: t.TempDir(), Interactive: true, ConsoleLevel: "info"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = logging.Close() })

	logger := logging.Get("audit")
	logger.Info("not recorded")
	logger.Warn("manifest ambiguous")
	logger.Critical("checksum mismatch")

	recent := logging.Recent()
	if recent == nil {
		t.Fatal("Recent() = nil in interactive mode")
	}
	entries := recent.Last(10)
	if len(entries) != 2 {
		t.Fatalf("recorded %d entries, want 2", len(entries))
	}
	if entries[1].Level != logging.LevelCritical || entries[1].Component != "audit" {
		t.Errorf("last entry = %+v", entries[1])
	}
}
