package inventory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/naming"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

const (
	filmID = "BL_C1979-4701_s1_f1_v1_"
	magID  = "BL_C1979-4701_s1_m1_v1"
)

func newReconciler(t *testing.T) (*Reconciler, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New([]ledger.Record{
		{Identity: filmID, ExpectedKind: types.KindFilm},
		{Identity: magID, ExpectedKind: types.KindMag},
	})
	require.NoError(t, err)
	return NewReconciler(l, naming.DefaultConventions()), l
}

func file(path string, size int64) types.FileInfo {
	return types.FileInfo{Path: path, Size: size, ModTime: time.Unix(1700000000, 0)}
}

func TestReconcile(t *testing.T) {
	t.Run("film frame increments by its size", func(t *testing.T) {
		r, l := newReconciler(t)

		res, err := r.Reconcile(file("/archive/reel1/"+filmID+"00000001.dpx", 4096))
		require.NoError(t, err)
		assert.Equal(t, filmID, res.Identity)
		assert.True(t, res.FirstFound)
		assert.True(t, res.TypeConfirmed)

		rec, _ := l.Lookup(filmID)
		assert.Equal(t, uint64(4096), rec.AggregateSize)
		assert.Equal(t, uint32(1), rec.FileCount)
		assert.Equal(t, "/archive/reel1", rec.Location)
	})

	t.Run("second run over the same path is idempotent", func(t *testing.T) {
		r, l := newReconciler(t)
		f := file("/archive/"+magID+".wav", 1000)

		_, err := r.Reconcile(f)
		require.NoError(t, err)
		_, err = r.Reconcile(f)
		require.ErrorIs(t, err, ErrAlreadyReconciled)

		rec, _ := l.Lookup(magID)
		assert.Equal(t, uint64(1000), rec.AggregateSize)
		assert.Equal(t, uint32(1), rec.FileCount)
	})

	t.Run("location unaffected by later directory", func(t *testing.T) {
		r, l := newReconciler(t)

		_, err := r.Reconcile(file("/a/"+filmID+"00000001.dpx", 1))
		require.NoError(t, err)
		res, err := r.Reconcile(file("/b/"+filmID+"00000002.dpx", 1))
		require.NoError(t, err)
		assert.False(t, res.FirstFound)

		rec, _ := l.Lookup(filmID)
		assert.Equal(t, "/a", rec.Location)
		assert.Equal(t, uint32(2), rec.FileCount)
	})

	t.Run("unknown identity is not inserted", func(t *testing.T) {
		r, l := newReconciler(t)

		_, err := r.Reconcile(file("/a/UNKNOWN_SHELFMARK.wav", 1))
		require.ErrorIs(t, err, ledger.ErrRecordNotFound)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("unrecognized extension", func(t *testing.T) {
		r, _ := newReconciler(t)
		_, err := r.Reconcile(file("/a/notes.txt", 1))
		assert.ErrorIs(t, err, naming.ErrUnrecognizedFileType)
	})

	t.Run("size is read from disk when not provided", func(t *testing.T) {
		r, l := newReconciler(t)
		dir := t.TempDir()
		path := filepath.Join(dir, magID+".wav")
		require.NoError(t, os.WriteFile(path, make([]byte, 321), 0o644))

		_, err := r.Reconcile(types.FileInfo{Path: path})
		require.NoError(t, err)

		rec, _ := l.Lookup(magID)
		assert.Equal(t, uint64(321), rec.AggregateSize)
	})

	t.Run("missing file without metadata is unreadable", func(t *testing.T) {
		r, l := newReconciler(t)
		path := filepath.Join(t.TempDir(), magID+".wav")

		_, err := r.Reconcile(types.FileInfo{Path: path})
		require.ErrorIs(t, err, ErrUnreadableFile)
		assert.False(t, l.Processed(path))
	})
}

func TestReconcileBatchIsolatesFailures(t *testing.T) {
	r, l := newReconciler(t)

	batch := r.ReconcileBatch([]types.FileInfo{
		file("/a/"+filmID+"00000001.dpx", 10),
		file("/a/readme.txt", 5),
		file("/a/"+filmID+"00000002.dpx", 10),
		file("/a/OTHER.wav", 7),
		file("/a/"+filmID+"00000001.dpx", 10),
	})

	assert.Len(t, batch.Reconciled, 2)
	assert.Equal(t, 1, batch.Repeats)
	require.Len(t, batch.Anomalies, 2)
	assert.Equal(t, AnomalyUnrecognizedType, batch.Anomalies[0].Kind)
	assert.Equal(t, AnomalyRecordNotFound, batch.Anomalies[1].Kind)
	assert.Equal(t, "OTHER", batch.Anomalies[1].Identity)

	rec, _ := l.Lookup(filmID)
	assert.Equal(t, uint64(20), rec.AggregateSize)
	assert.Equal(t, uint32(2), rec.FileCount)
}
