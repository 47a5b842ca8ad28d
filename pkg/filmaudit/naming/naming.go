// Package naming derives ledger identities and frame ordinals from the file
// naming convention used by archival film and mag deliveries.
//
// Film frames are named <identity><frame-suffix>.<ext>, where the frame
// suffix has a fixed width, and the frame number is also the Nth
// underscore-delimited token of the basename:
//
//	BL_C1979-4701_s1_f1_v1_00001234.dpx
//
// Mag files are named <identity>.<ext>.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// Default naming conventions.
const (
	DefaultFilmExt         = ".dpx"
	DefaultMagExt          = ".wav"
	DefaultFrameSuffixLen  = 8
	DefaultFrameTokenIndex = 5
)

// ErrUnrecognizedFileType is returned for extensions that are neither film nor mag.
var ErrUnrecognizedFileType = errors.New("unrecognized file type")

// ErrBadFrameName is returned when a frame filename does not have the expected shape.
var ErrBadFrameName = errors.New("malformed frame filename")

// Conventions configures how filenames map to identities and ordinals.
type Conventions struct {
	// FilmExt is the frame file extension including the dot.
	FilmExt string

	// MagExt is the mag file extension including the dot.
	MagExt string

	// FrameSuffixLen is the number of trailing stem characters holding the frame number.
	FrameSuffixLen int

	// FrameTokenIndex is the zero-based underscore-delimited token carrying the ordinal.
	FrameTokenIndex int
}

// DefaultConventions returns the conventions of the reference deliveries.
func DefaultConventions() Conventions {
	return Conventions{
		FilmExt:         DefaultFilmExt,
		MagExt:          DefaultMagExt,
		FrameSuffixLen:  DefaultFrameSuffixLen,
		FrameTokenIndex: DefaultFrameTokenIndex,
	}
}

// Asset is the identity and kind derived from one file path.
type Asset struct {
	Identity string
	Kind     types.AssetKind
}

// KindOf reports the asset kind implied by a path's extension.
func (c Conventions) KindOf(path string) types.AssetKind {
	ext := filepath.Ext(path)
	switch {
	case ext == "":
		return types.KindUnknown
	case strings.EqualFold(ext, c.FilmExt):
		return types.KindFilm
	case strings.EqualFold(ext, c.MagExt):
		return types.KindMag
	default:
		return types.KindUnknown
	}
}

// Classify derives the ledger identity and asset kind of a file path.
func Classify(path string, c Conventions) (Asset, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	switch c.KindOf(path) {
	case types.KindFilm:
		if len(stem) <= c.FrameSuffixLen {
			return Asset{}, fmt.Errorf("%w: %s: stem shorter than %d-character frame suffix",
				ErrBadFrameName, base, c.FrameSuffixLen)
		}
		return Asset{Identity: stem[:len(stem)-c.FrameSuffixLen], Kind: types.KindFilm}, nil
	case types.KindMag:
		if stem == "" {
			return Asset{}, fmt.Errorf("%w: %s: empty stem", ErrUnrecognizedFileType, base)
		}
		return Asset{Identity: stem, Kind: types.KindMag}, nil
	default:
		return Asset{}, fmt.Errorf("%w: %s", ErrUnrecognizedFileType, base)
	}
}

// FrameOrdinal extracts the frame number from the tokenIndex-th
// underscore-delimited token of the basename, ignoring the extension.
func FrameOrdinal(path string, tokenIndex int) (uint64, error) {
	base := filepath.Base(path)
	tokens := strings.Split(base, "_")
	if tokenIndex < 0 || tokenIndex >= len(tokens) {
		return 0, fmt.Errorf("%w: %s: no token at index %d", ErrBadFrameName, base, tokenIndex)
	}

	token := tokens[tokenIndex]
	if dot := strings.IndexByte(token, '.'); dot >= 0 {
		token = token[:dot]
	}

	ordinal, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: token %q is not a frame number", ErrBadFrameName, base, token)
	}
	return ordinal, nil
}
