// Package types provides core data types shared by the filmaudit packages:
// the asset kinds an archive transfer contains, discovered file metadata,
// and helpers for parsing and formatting byte sizes.
package types

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// AssetKind identifies the two kinds of media an archival transfer carries.
type AssetKind int

const (
	// KindUnknown is the zero value and never matches a ledger record.
	KindUnknown AssetKind = iota
	// KindFilm is a film scan delivered as a frame-sequence of image files.
	KindFilm
	// KindMag is a magnetic audio track delivered as a single file.
	KindMag
)

// Kind string constants, also used as the ledger's on-disk representation.
const (
	kindFilm    = "film"
	kindMag     = "mag"
	kindUnknown = "unknown"
)

// ErrInvalidKind indicates that an asset kind string could not be parsed.
var ErrInvalidKind = errors.New("invalid asset kind")

// String returns the string representation of the kind.
func (k AssetKind) String() string {
	switch k {
	case KindFilm:
		return kindFilm
	case KindMag:
		return kindMag
	default:
		return kindUnknown
	}
}

// ParseKind parses "film" or "mag" (case-insensitive) into an AssetKind.
func ParseKind(s string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case kindFilm:
		return KindFilm, nil
	case kindMag:
		return KindMag, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name.
func (k AssetKind) MarshalText() ([]byte, error) {
	if k != KindFilm && k != KindMag {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AssetKind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// FileInfo describes one file discovered by the directory walk.
type FileInfo struct {
	// Path is the absolute path to the file.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// ModTime is the last modification time of the file.
	ModTime time.Time `json:"mod_time"`

	// Mode is the file's permission and mode bits.
	Mode os.FileMode `json:"mode"`
}

// HumanSize returns the file size formatted as a human-readable string.
func (f *FileInfo) HumanSize() string {
	return FormatSize(f.Size)
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// It accepts plain byte counts ("8192") and K/M/G/T suffixes with optional
// "B" or "iB" ("64K", "10MB", "1GiB"). All suffixes are binary units.
// Decimal values are truncated to the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units, e.g. FormatSize(1536*1024) returns "1.5 MiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSizeU is FormatSize for unsigned totals such as ledger aggregates.
func FormatSizeU(bytes uint64) string {
	return humanize.IBytes(bytes)
}

// ScanError records a path that could not be read during a walk.
type ScanError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}
