// Package profile holds the reference technical profiles that film frames
// and mag audio must conform to, and compares inspected attributes with them.
package profile

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/mediainfo"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// ErrNoProfile is returned when no profile exists for an asset kind.
var ErrNoProfile = errors.New("no reference profile")

// Profile is the set of fields, with exact expected values, that a file of
// one kind must report.
type Profile struct {
	Kind   types.AssetKind   `toml:"-"`
	Name   string            `toml:"name"`
	Fields map[string]string `toml:"fields"`
}

// Mismatch is one field whose value differs from the profile.
type Mismatch struct {
	Field string `json:"field" yaml:"field"`
	Want  string `json:"want" yaml:"want"`
	Got   string `json:"got" yaml:"got"`

	// Missing is true when the field was absent from the inspected attributes.
	Missing bool `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// String renders the mismatch for logs.
func (m Mismatch) String() string {
	if m.Missing {
		return fmt.Sprintf("%s: want %q, field missing", m.Field, m.Want)
	}
	return fmt.Sprintf("%s: want %q, got %q", m.Field, m.Want, m.Got)
}

// Comparison is the outcome of checking attributes against a profile.
type Comparison struct {
	Profile    string     `json:"profile" yaml:"profile"`
	Verified   bool       `json:"verified" yaml:"verified"`
	Mismatches []Mismatch `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
}

// Compare checks every profile field for exact equality. Fields are
// compared in name order so the mismatch list is stable.
func (p Profile) Compare(attrs mediainfo.Attributes) Comparison {
	fields := make([]string, 0, len(p.Fields))
	for f := range p.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	c := Comparison{Profile: p.Name}
	for _, f := range fields {
		want := p.Fields[f]
		got, ok := attrs[f]
		if !ok {
			c.Mismatches = append(c.Mismatches, Mismatch{Field: f, Want: want, Missing: true})
			continue
		}
		if got != want {
			c.Mismatches = append(c.Mismatches, Mismatch{Field: f, Want: want, Got: got})
		}
	}
	c.Verified = len(c.Mismatches) == 0
	return c
}

// Set holds one profile per asset kind.
type Set struct {
	Film Profile `toml:"film"`
	Mag  Profile `toml:"mag"`
}

// For returns the profile for kind.
func (s *Set) For(kind types.AssetKind) (Profile, error) {
	switch kind {
	case types.KindFilm:
		return s.Film, nil
	case types.KindMag:
		return s.Mag, nil
	default:
		return Profile{}, fmt.Errorf("%w for %s", ErrNoProfile, kind)
	}
}

// Defaults returns the reference profiles for 2K DPX scans and 48 kHz
// 24-bit PCM mag transfers.
func Defaults() *Set {
	return &Set{
		Film: Profile{
			Kind: types.KindFilm,
			Name: "dpx",
			Fields: map[string]string{
				"Format":                     "DPX",
				"Format_Version":             "2.0",
				"Format_Compression":         "Raw",
				"Format_Settings_Endianness": "Big",
				"Format_Settings_Packing":    "Filled A",
				"Width":                      "2048",
				"Height":                     "1556",
				"PixelAspectRatio":           "1.000",
				"DisplayAspectRatio":         "1.316",
				"ColorSpace":                 "RGB",
				"BitDepth":                   "10",
				"Compression_Mode":           "Lossless",
			},
		},
		Mag: Profile{
			Kind: types.KindMag,
			Name: "wav",
			Fields: map[string]string{
				"Format":       "PCM",
				"SamplingRate": "48000",
				"BitDepth":     "24",
			},
		},
	}
}

// LoadFile reads profile overrides from a TOML file:
//
//	[film]
//	name = "dpx-4k"
//	[film.fields]
//	Width = "4096"
//
// A kind present in the file replaces the default profile for that kind
// entirely; kinds absent from the file keep their defaults.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	var overrides struct {
		Film *Profile `toml:"film"`
		Mag  *Profile `toml:"mag"`
	}
	if err := toml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing profiles %s: %w", path, err)
	}

	set := Defaults()
	if overrides.Film != nil {
		if len(overrides.Film.Fields) == 0 {
			return nil, fmt.Errorf("profiles %s: film profile has no fields", path)
		}
		set.Film = *overrides.Film
		set.Film.Kind = types.KindFilm
		if set.Film.Name == "" {
			set.Film.Name = "film"
		}
	}
	if overrides.Mag != nil {
		if len(overrides.Mag.Fields) == 0 {
			return nil, fmt.Errorf("profiles %s: mag profile has no fields", path)
		}
		set.Mag = *overrides.Mag
		set.Mag.Kind = types.KindMag
		if set.Mag.Name == "" {
			set.Mag.Name = "mag"
		}
	}
	return set, nil
}

// Encode renders the set as TOML, the format LoadFile reads.
func (s *Set) Encode() ([]byte, error) {
	return toml.Marshal(s)
}
