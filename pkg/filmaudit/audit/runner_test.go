package audit

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/mediainfo"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/profile"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

const (
	reelA   = "BL_C1979-4701_s1_f1_v1_"
	reelB   = "BL_C1980-0001_s1_f1_v1_"
	magID   = "BL_C1979-4701_s1_m1_v1"
	strayID = "BL_C1999-9999_s1_m1_v1"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// archive lays out:
//
//	reel1/  frames 1, 2, 4 of reelA and a three-line manifest whose entry
//	        for frame 2 is wrong
//	reel2/  one frame of reelB and no manifest
//	audio/  the mag with a correct sidecar, and a stray mag with neither a
//	        ledger record nor a sidecar
func archive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	var manifest strings.Builder
	for _, n := range []int{1, 2, 4} {
		name := fmt.Sprintf("%s%08d.dpx", reelA, n)
		content := fmt.Sprintf("frame-%d", n)
		write(t, filepath.Join(root, "reel1", name), content)
		digest := md5Hex(content)
		if n == 2 {
			digest = md5Hex("tampered")
		}
		fmt.Fprintf(&manifest, "%s  %s\n", digest, name)
	}
	write(t, filepath.Join(root, "reel1", "reel1.md5"), manifest.String())

	write(t, filepath.Join(root, "reel2", reelB+"00000001.dpx"), "frame-b")

	mag := filepath.Join(root, "audio", magID+".wav")
	write(t, mag, "mag-audio")
	write(t, mag+".md5", md5Hex("mag-audio")+"  "+magID+".wav\n")
	write(t, filepath.Join(root, "audio", strayID+".wav"), "stray")

	return root
}

func seedLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New([]ledger.Record{
		{Identity: reelA, ExpectedKind: types.KindFilm},
		{Identity: reelB, ExpectedKind: types.KindFilm},
		{Identity: magID, ExpectedKind: types.KindMag},
		{Identity: "BL_C2000-0000_s1_m1_v1", ExpectedKind: types.KindMag},
	})
	require.NoError(t, err)
	return l
}

func inspector() *mediainfo.Static {
	film := mediainfo.Attributes{}
	for k, v := range profile.Defaults().Film.Fields {
		film[k] = v
	}
	return &mediainfo.Static{ByExt: map[string]mediainfo.Attributes{
		".dpx": film,
		".wav": {"Format": "PCM", "SamplingRate": "44100", "BitDepth": "24"},
	}}
}

func outcome(t *testing.T, r *Report, base string) FileOutcome {
	t.Helper()
	for _, f := range r.Files {
		if filepath.Base(f.Path) == base {
			return f
		}
	}
	t.Fatalf("no outcome for %s", base)
	return FileOutcome{}
}

func TestRun(t *testing.T) {
	root := archive(t)
	l := seedLedger(t)

	var (
		mu     sync.Mutex
		phases = map[Phase]bool{}
	)
	runner, err := New(Options{
		Ledger:    l,
		Inspector: inspector(),
		Workers:   3,
		OnProgress: func(p Progress) {
			mu.Lock()
			phases[p.Phase] = true
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), root)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Interrupted)
	assert.True(t, report.AttributesChecked)
	assert.True(t, phases[PhaseWalk] && phases[PhaseInventory] && phases[PhaseVerify] && phases[PhaseDone])

	t.Run("inventory", func(t *testing.T) {
		assert.Equal(t, 5, report.Inventory.Reconciled)
		require.Len(t, report.Inventory.Anomalies, 1)
		assert.Equal(t, strayID, report.Inventory.Anomalies[0].Identity)

		rec, ok := l.Lookup(reelA)
		require.True(t, ok)
		assert.True(t, rec.Found)
		assert.Equal(t, uint32(3), rec.FileCount)
		assert.Equal(t, uint64(len("frame-1")*3), rec.AggregateSize)
		assert.Equal(t, filepath.Join(root, "reel1"), rec.Location)

		require.Len(t, report.Inventory.Missing, 1)
		assert.Equal(t, "BL_C2000-0000_s1_m1_v1", report.Inventory.Missing[0].Identity)
		assert.Equal(t, 3, report.Inventory.Summary.Found)
	})

	t.Run("directories", func(t *testing.T) {
		require.Len(t, report.Directories, 3)
		reel1 := report.Directories[1]
		require.NotNil(t, reel1.Sequence)
		assert.True(t, reel1.Sequence.LineCountMatch)
		assert.Equal(t, []uint64{3}, reel1.Sequence.MissingOrdinals)
		assert.Equal(t, filepath.Join(root, "reel1", "reel1.md5"), reel1.Manifest)

		reel2 := report.Directories[2]
		assert.Nil(t, reel2.Sequence)
		assert.NotEmpty(t, reel2.ManifestError)

		assert.Equal(t, []Gap{{Dir: filepath.Join(root, "reel1"), Ordinals: []uint64{3}}}, report.MissingFrames())
	})

	t.Run("checksums", func(t *testing.T) {
		require.Len(t, report.Files, 6)

		assert.True(t, outcome(t, report, reelA+"00000001.dpx").ChecksumVerified)
		assert.True(t, outcome(t, report, reelA+"00000004.dpx").ChecksumVerified)
		assert.True(t, outcome(t, report, magID+".wav").ChecksumVerified)

		bad := outcome(t, report, reelA+"00000002.dpx")
		assert.False(t, bad.ChecksumVerified)
		assert.True(t, bad.Checksum.Found)
		assert.False(t, bad.ChecksumMissing)

		assert.True(t, outcome(t, report, reelB+"00000001.dpx").ChecksumMissing)
		assert.True(t, outcome(t, report, strayID+".wav").ChecksumMissing)

		assert.Len(t, report.ChecksumFailures(), 3)
	})

	t.Run("attributes", func(t *testing.T) {
		failures := report.AttributeFailures()
		require.Len(t, failures, 2)
		for _, f := range failures {
			assert.Equal(t, types.KindMag, f.Kind)
			require.NotNil(t, f.Attributes)
			assert.Equal(t, "SamplingRate", f.Attributes.Mismatches[0].Field)
		}
	})

	t.Run("totals", func(t *testing.T) {
		tot := report.Totals()
		assert.Equal(t, 6, tot.Files)
		assert.Equal(t, 4, tot.Film)
		assert.Equal(t, 2, tot.Mag)
		assert.Equal(t, 3, tot.ChecksumVerified)
		assert.Equal(t, 1, tot.ChecksumFailed)
		assert.Equal(t, 2, tot.ChecksumMissing)
		assert.Equal(t, 1, tot.MissingFrames)
		assert.Equal(t, 1, tot.ManifestErrors)
		assert.True(t, report.HasFindings())
	})
}

func TestRunIsIdempotentAcrossRestarts(t *testing.T) {
	root := archive(t)
	path := filepath.Join(t.TempDir(), "ledger.json")

	store, err := ledger.Open(ledger.BackendJSON, path)
	require.NoError(t, err)
	seed := seedLedger(t)
	require.NoError(t, store.Save(context.Background(), seed))

	l, err := store.Load(context.Background())
	require.NoError(t, err)
	runner, err := New(Options{Ledger: l, Store: store})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = ledger.Open(ledger.BackendJSON, path)
	require.NoError(t, err)
	defer store.Close()
	reloaded, err := store.Load(context.Background())
	require.NoError(t, err)

	before, _ := reloaded.Lookup(reelA)
	assert.Equal(t, uint32(3), before.FileCount)

	runner, err = New(Options{Ledger: reloaded, Store: store})
	require.NoError(t, err)
	report, err := runner.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Inventory.Reconciled)
	assert.Equal(t, 5, report.Inventory.Repeats)
	after, _ := reloaded.Lookup(reelA)
	assert.Equal(t, before, after)
	assert.False(t, report.AttributesChecked)
	assert.Empty(t, report.AttributeFailures())
}

func TestRunToolUnavailableAborts(t *testing.T) {
	runner, err := New(Options{
		Ledger:    seedLedger(t),
		Inspector: &mediainfo.Static{Err: mediainfo.ErrToolUnavailable},
		Workers:   2,
	})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), archive(t))
	require.ErrorIs(t, err, mediainfo.ErrToolUnavailable)
	require.NotNil(t, report)
	assert.Less(t, len(report.Files), 6)
}

func TestRunPerFileInspectionErrorContinues(t *testing.T) {
	runner, err := New(Options{
		Ledger:    seedLedger(t),
		Inspector: &mediainfo.Static{Err: mediainfo.ErrInspectTimeout},
	})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), archive(t))
	require.NoError(t, err)
	require.Len(t, report.Files, 6)
	for _, f := range report.Files {
		assert.False(t, f.AttributesVerified)
		assert.Contains(t, f.AttributeError, "timed out")
	}
}

func TestRunCancelled(t *testing.T) {
	runner, err := New(Options{Ledger: seedLedger(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := runner.Run(ctx, archive(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Interrupted)
	assert.Empty(t, report.Files)
}

func TestNewRequiresLedger(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoLedger)
}

func TestFilmManifestsIgnoreMagSidecars(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "mixed")
	frame := filepath.Join(dir, reelA+"00000001.dpx")
	mag := filepath.Join(dir, magID+".wav")
	write(t, frame, "f")
	write(t, mag, "m")
	write(t, mag+".md5", md5Hex("m")+"  "+magID+".wav\n")
	write(t, filepath.Join(dir, "zz_reel.md5"), md5Hex("f")+"  "+reelA+"00000001.dpx\n")

	runner, err := New(Options{Ledger: seedLedger(t)})
	require.NoError(t, err)
	report, err := runner.Run(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, report.Directories, 1)
	assert.Equal(t, filepath.Join(dir, "zz_reel.md5"), report.Directories[0].Manifest)
	for _, f := range report.Files {
		assert.True(t, f.ChecksumVerified, f.Path)
	}
}
