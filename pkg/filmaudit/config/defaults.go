// Package config provides configuration management for filmaudit.
package config

import "time"

// Default configuration values.
const (
	// DefaultPath is the archive root audited when none is specified.
	DefaultPath = "."

	// DefaultFilmExt is the frame file extension.
	DefaultFilmExt = ".dpx"

	// DefaultMagExt is the mag audio file extension.
	DefaultMagExt = ".wav"

	// DefaultManifestExt is the checksum manifest extension.
	DefaultManifestExt = ".md5"

	// DefaultFrameSuffixLen is the length of the frame number suffix of a
	// film file stem.
	DefaultFrameSuffixLen = 8

	// DefaultFrameTokenIndex is the underscore-separated token holding the
	// frame number.
	DefaultFrameTokenIndex = 5

	// DefaultLedgerBackend is the ledger storage backend.
	DefaultLedgerBackend = "json"

	// DefaultChunkSize is the read size used while hashing.
	DefaultChunkSize = 8192

	// DefaultMediainfoBinary is the attribute inspection tool.
	DefaultMediainfoBinary = "mediainfo"

	// DefaultMediainfoTimeout bounds a single inspection.
	DefaultMediainfoTimeout = 2 * time.Minute

	// DefaultRetentionDays is the number of days run history is kept.
	DefaultRetentionDays = 90
)

// DefaultExclusions are skipped on every walk: desktop trash folders and
// NAS thumbnail directories.
var DefaultExclusions = []string{
	"**/.Trash*",
	"**/.Trash*/**",
	"**/@eaDir",
	"**/@eaDir/**",
	".DS_Store",
}
