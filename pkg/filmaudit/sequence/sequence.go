// Package sequence checks a film scan's frame files for continuity.
//
// Two independent signals are produced for one directory: whether the
// number of frame files equals the number of manifest lines, and which
// ordinals are skipped between the first and last frame present. Gaps
// before the first frame or after the last are not detectable from the
// file names alone and are not reported.
package sequence

import (
	"path/filepath"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/naming"
)

// SkippedFile is a frame whose ordinal could not be read.
type SkippedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result is the outcome of checking one directory.
type Result struct {
	ManifestLineCount uint64        `json:"manifest_line_count"`
	FileCount         uint64        `json:"file_count"`
	LineCountMatch    bool          `json:"line_count_match"`
	MissingOrdinals   []uint64      `json:"missing_ordinals"`
	FirstOrdinal      uint64        `json:"first_ordinal"`
	LastOrdinal       uint64        `json:"last_ordinal"`
	FirstFile         string        `json:"first_file,omitempty"`
	LastFile          string        `json:"last_file,omitempty"`
	Skipped           []SkippedFile `json:"skipped,omitempty"`
}

// Complete reports whether the directory has no continuity findings.
func (r *Result) Complete() bool {
	return r.LineCountMatch && len(r.MissingOrdinals) == 0
}

// Checker detects missing frames. It holds no state between calls.
type Checker struct {
	// TokenIndex is the underscore-delimited token holding the frame number.
	TokenIndex int

	// Indexes supplies parsed manifests. Nil parses the manifest on every call.
	Indexes *checksum.IndexCache
}

// NewChecker returns a checker reading ordinals from tokenIndex.
func NewChecker(tokenIndex int, indexes *checksum.IndexCache) *Checker {
	return &Checker{TokenIndex: tokenIndex, Indexes: indexes}
}

// Check compares the frame count with the manifest's line count and scans
// the sorted frame list for skipped ordinals. An unreadable manifest
// returns checksum.ErrManifestUnavailable.
func (c *Checker) Check(files []string, manifestPath string) (Result, error) {
	log := logging.Get("sequence")

	idx, err := c.index(manifestPath)
	if err != nil {
		log.Critical("manifest unavailable", "manifest", manifestPath, "error", err)
		return Result{}, err
	}

	res := c.CheckCount(files, uint64(idx.LineCount()))
	dir := ""
	if len(files) > 0 {
		dir = filepath.Dir(files[0])
	}

	if !res.LineCountMatch {
		log.Critical("manifest line count mismatch",
			"dir", dir, "lines", res.ManifestLineCount, "files", res.FileCount)
	} else {
		log.Info("manifest line count match", "dir", dir, "lines", res.ManifestLineCount)
	}
	for _, missing := range res.MissingOrdinals {
		log.Critical("missing frame", "dir", dir, "ordinal", missing)
	}
	for _, s := range res.Skipped {
		log.Error("frame number unreadable", "path", s.Path, "error", s.Error)
	}
	return res, nil
}

// CheckCount runs the continuity algorithm against a known manifest line count.
func (c *Checker) CheckCount(files []string, lineCount uint64) Result {
	res := Result{
		ManifestLineCount: lineCount,
		FileCount:         uint64(len(files)),
		MissingOrdinals:   []uint64{},
	}
	res.LineCountMatch = res.ManifestLineCount == res.FileCount

	var (
		cursor  uint64
		started bool
	)
	for _, f := range files {
		ordinal, err := naming.FrameOrdinal(f, c.TokenIndex)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedFile{Path: f, Error: err.Error()})
			continue
		}

		if !started {
			started = true
			cursor = ordinal
			res.FirstOrdinal = ordinal
			res.FirstFile = filepath.Base(f)
		}
		for cursor < ordinal {
			res.MissingOrdinals = append(res.MissingOrdinals, cursor)
			cursor++
		}
		cursor = ordinal + 1
		res.LastOrdinal = ordinal
		res.LastFile = filepath.Base(f)
	}
	return res
}

func (c *Checker) index(path string) (*checksum.Index, error) {
	if c.Indexes != nil {
		return c.Indexes.Get(path)
	}
	return checksum.ParseIndex(path)
}
