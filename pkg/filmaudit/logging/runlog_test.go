package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunLogName(t *testing.T) {
	start := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if got, want := RunLogName(start), "2024-03-09_14-05-07_filmaudit.log"; got != want {
		t.Errorf("RunLogName() = %q, want %q", got, want)
	}
}

func TestNewRunWriterCollision(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()

	first, err := NewRunWriter(dir, start, RetentionConfig{})
	if err != nil {
		t.Fatalf("NewRunWriter() error = %v", err)
	}
	defer first.Close()

	second, err := NewRunWriter(dir, start, RetentionConfig{})
	if err != nil {
		t.Fatalf("NewRunWriter() error = %v", err)
	}
	defer second.Close()

	if first.Path() == second.Path() {
		t.Fatalf("two runs share %q", first.Path())
	}
	if !strings.HasSuffix(second.Path(), "-1"+RunLogSuffix) {
		t.Errorf("second path = %q, want -1 suffix", second.Path())
	}
}

func TestRunWriterWriteClose(t *testing.T) {
	w, err := NewRunWriter(t.TempDir(), time.Now(), RetentionConfig{})
	if err != nil {
		t.Fatalf("NewRunWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("Write() after Close succeeded")
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	names := []string{
		"2024-01-01_00-00-00_filmaudit.log",
		"2024-01-02_00-00-00_filmaudit.log",
		"2024-01-03_00-00-00_filmaudit.log",
		"2024-01-04_00-00-00_filmaudit.log",
		"unrelated.log",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := now.Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, names[3]), old, old); err != nil {
		t.Fatal(err)
	}

	prune(dir, "current"+RunLogSuffix, RetentionConfig{MaxBackups: 2, MaxAge: 1}, now)

	exists := func(n string) bool {
		_, err := os.Stat(filepath.Join(dir, n))
		return err == nil
	}
	if exists(names[0]) || exists(names[1]) {
		t.Error("logs beyond MaxBackups were kept")
	}
	if !exists(names[2]) {
		t.Error("recent log within MaxBackups was removed")
	}
	if exists(names[3]) {
		t.Error("log older than MaxAge was kept")
	}
	if !exists("unrelated.log") {
		t.Error("non-run log was removed")
	}
}

func TestBufferLast(t *testing.T) {
	b := NewBuffer(3)
	for i, msg := range []string{"a", "b", "c", "d"} {
		b.Add(Entry{Message: msg, Level: Level(i % 2)})
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	got := b.Last(2)
	if len(got) != 2 || got[0].Message != "c" || got[1].Message != "d" {
		t.Errorf("Last(2) = %+v", got)
	}
	if all := b.Last(10); len(all) != 3 || all[0].Message != "b" {
		t.Errorf("Last(10) = %+v", all)
	}
}
