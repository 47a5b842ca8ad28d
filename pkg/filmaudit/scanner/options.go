// Package scanner walks an archive root and groups the media files it finds
// into per-directory batches: the film frames, the mag files and the
// checksum manifests of each directory.
package scanner

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/naming"
)

// ErrInvalidPattern is returned when an exclusion pattern is malformed.
var ErrInvalidPattern = errors.New("invalid exclusion pattern")

// Progress is a snapshot of walk progress.
type Progress struct {
	DirsScanned  int64
	FilesScanned int64
	Matched      int64
	CurrentPath  string
}

// Options configures the walk.
type Options struct {
	// Root is the directory to walk.
	Root string

	// Exclude contains doublestar patterns; a path matching any of them is
	// skipped. Patterns without a separator are matched against base names.
	Exclude []string

	// Conventions supplies the film and mag extensions.
	Conventions naming.Conventions

	// ManifestExt is the checksum manifest extension.
	ManifestExt string

	// OnProgress is called periodically during the walk.
	// It must be safe to call from multiple goroutines.
	OnProgress func(Progress)
}

// DefaultOptions returns options with the default extensions and exclusions.
func DefaultOptions() Options {
	return Options{
		Root:        config.DefaultPath,
		Exclude:     config.DefaultExclusions,
		Conventions: naming.DefaultConventions(),
		ManifestExt: config.DefaultManifestExt,
	}
}

// Validate fills defaults and checks exclusion patterns.
func (o *Options) Validate() error {
	if o.Root == "" {
		o.Root = config.DefaultPath
	}
	if o.Conventions.FilmExt == "" {
		o.Conventions.FilmExt = naming.DefaultFilmExt
	}
	if o.Conventions.MagExt == "" {
		o.Conventions.MagExt = naming.DefaultMagExt
	}
	if o.ManifestExt == "" {
		o.ManifestExt = config.DefaultManifestExt
	}
	for _, p := range o.Exclude {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if !doublestar.ValidatePathPattern(p) {
			return errors.Join(ErrInvalidPattern, errors.New(p))
		}
	}
	return nil
}
