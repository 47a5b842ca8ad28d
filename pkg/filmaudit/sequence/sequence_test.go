package sequence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
)

func frames(dir string, ordinals ...uint64) []string {
	out := make([]string, 0, len(ordinals))
	for _, o := range ordinals {
		out = append(out, filepath.Join(dir, fmt.Sprintf("BL_C1979-4701_s1_f1_v1_%08d.dpx", o)))
	}
	return out
}

func manifest(t *testing.T, lines int) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "%032d  frame_%d.dpx\n", i, i)
	}
	path := filepath.Join(t.TempDir(), "reel.md5")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		ordinals []uint64
		lines    int
		missing  []uint64
		countOK  bool
		first    uint64
		last     uint64
	}{
		{
			name:     "interior gap with equal counts",
			ordinals: []uint64{10, 11, 13, 14},
			lines:    4,
			missing:  []uint64{12},
			countOK:  true,
			first:    10,
			last:     14,
		},
		{
			name:     "contiguous but manifest longer",
			ordinals: []uint64{1, 2, 3},
			lines:    5,
			missing:  []uint64{},
			countOK:  false,
			first:    1,
			last:     3,
		},
		{
			name:     "multi-frame gap",
			ordinals: []uint64{0, 4},
			lines:    5,
			missing:  []uint64{1, 2, 3},
			countOK:  false,
			first:    0,
			last:     4,
		},
		{
			name:     "leading frames absent are not flagged",
			ordinals: []uint64{5, 6, 7},
			lines:    3,
			missing:  []uint64{},
			countOK:  true,
			first:    5,
			last:     7,
		},
		{
			name:     "empty directory",
			ordinals: nil,
			lines:    0,
			missing:  []uint64{},
			countOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(5, nil)
			res, err := c.Check(frames("/reel", tt.ordinals...), manifest(t, tt.lines))
			require.NoError(t, err)

			assert.Equal(t, tt.missing, res.MissingOrdinals)
			assert.Equal(t, tt.countOK, res.LineCountMatch)
			assert.Equal(t, uint64(tt.lines), res.ManifestLineCount)
			assert.Equal(t, uint64(len(tt.ordinals)), res.FileCount)
			assert.Equal(t, tt.first, res.FirstOrdinal)
			assert.Equal(t, tt.last, res.LastOrdinal)
		})
	}
}

func TestCheckSkipsMalformedNames(t *testing.T) {
	files := frames("/reel", 1, 2)
	files = append(files, "/reel/BL_C1979-4701_s1_f1_v1_notanumber.dpx")
	files = append(files, frames("/reel", 4)...)

	res := NewChecker(5, nil).CheckCount(files, 4)

	assert.Equal(t, []uint64{3}, res.MissingOrdinals)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0].Path, "notanumber")
	assert.Equal(t, uint64(4), res.LastOrdinal)
	assert.True(t, res.LineCountMatch)
}

func TestCheckMalformedFirstFile(t *testing.T) {
	files := append([]string{"/reel/short.dpx"}, frames("/reel", 7, 9)...)

	res := NewChecker(5, nil).CheckCount(files, 3)

	assert.Equal(t, uint64(7), res.FirstOrdinal)
	assert.Equal(t, []uint64{8}, res.MissingOrdinals)
	assert.Len(t, res.Skipped, 1)
}

func TestCheckIsStatelessAcrossCalls(t *testing.T) {
	c := NewChecker(5, checksum.NewIndexCache(4))
	m := manifest(t, 2)

	first, err := c.Check(frames("/a", 100, 102), m)
	require.NoError(t, err)
	second, err := c.Check(frames("/b", 1, 2), m)
	require.NoError(t, err)

	assert.Equal(t, []uint64{101}, first.MissingOrdinals)
	assert.Empty(t, second.MissingOrdinals)
	assert.True(t, second.Complete())
	assert.False(t, first.Complete())
}

func TestCheckMissingManifest(t *testing.T) {
	_, err := NewChecker(5, nil).Check(frames("/a", 1), filepath.Join(t.TempDir(), "none.md5"))
	assert.ErrorIs(t, err, checksum.ErrManifestUnavailable)
}
