package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

func seedRecords() []Record {
	return []Record{
		{Identity: "BL_C1979-4701_s1_f1_v1_", ExpectedKind: types.KindFilm},
		{Identity: "BL_C1979-4701_s1_m1_v1", ExpectedKind: types.KindMag},
		{Identity: "BL_C1980-0001_s1_f1_v1_", ExpectedKind: types.KindFilm},
	}
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(seedRecords())
	require.NoError(t, err)
	return l
}

func TestNew(t *testing.T) {
	t.Run("preserves seed order", func(t *testing.T) {
		l := newLedger(t)
		records := l.Records()
		require.Len(t, records, 3)
		assert.Equal(t, "BL_C1979-4701_s1_f1_v1_", records[0].Identity)
		assert.Equal(t, "BL_C1980-0001_s1_f1_v1_", records[2].Identity)
	})

	t.Run("rejects duplicate identity", func(t *testing.T) {
		_, err := New([]Record{
			{Identity: "A", ExpectedKind: types.KindMag},
			{Identity: "A", ExpectedKind: types.KindFilm},
		})
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	})

	t.Run("rejects empty identity", func(t *testing.T) {
		_, err := New([]Record{{Identity: "  ", ExpectedKind: types.KindMag}})
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := New([]Record{{Identity: "A"}})
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("empty ledger", func(t *testing.T) {
		l, err := New(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, l.Len())
		assert.Equal(t, Summary{}, l.Summary())
	})
}

func TestApply(t *testing.T) {
	t.Run("single file increments count and size exactly once", func(t *testing.T) {
		l := newLedger(t)

		change, err := l.Apply(Match{
			Path:     "/archive/reel1/BL_C1979-4701_s1_f1_v1_00000001.dpx",
			Identity: "BL_C1979-4701_s1_f1_v1_",
			Kind:     types.KindFilm,
			Dir:      "/archive/reel1",
			Size:     12_746_752,
		})
		require.NoError(t, err)

		assert.True(t, change.FirstFound)
		assert.True(t, change.TypeConfirmed)
		assert.Equal(t, uint32(1), change.Record.FileCount)
		assert.Equal(t, uint64(12_746_752), change.Record.AggregateSize)
		assert.Equal(t, "/archive/reel1", change.Record.Location)
	})

	t.Run("same path twice is rejected without mutation", func(t *testing.T) {
		l := newLedger(t)
		m := Match{Path: "/a/x.wav", Identity: "BL_C1979-4701_s1_m1_v1", Kind: types.KindMag, Dir: "/a", Size: 100}

		_, err := l.Apply(m)
		require.NoError(t, err)
		before, _ := l.Lookup(m.Identity)

		_, err = l.Apply(m)
		require.ErrorIs(t, err, ErrAlreadyProcessed)

		after, _ := l.Lookup(m.Identity)
		assert.Equal(t, before, after)
	})

	t.Run("location is set by first match only", func(t *testing.T) {
		l := newLedger(t)
		id := "BL_C1979-4701_s1_f1_v1_"

		first, err := l.Apply(Match{Path: "/a/1.dpx", Identity: id, Kind: types.KindFilm, Dir: "/a", Size: 10})
		require.NoError(t, err)
		second, err := l.Apply(Match{Path: "/b/2.dpx", Identity: id, Kind: types.KindFilm, Dir: "/b", Size: 20})
		require.NoError(t, err)

		assert.True(t, first.FirstFound)
		assert.False(t, second.FirstFound)

		r, ok := l.Lookup(id)
		require.True(t, ok)
		assert.True(t, r.Found)
		assert.Equal(t, "/a", r.Location)
		assert.Equal(t, uint64(30), r.AggregateSize)
		assert.Equal(t, uint32(2), r.FileCount)
	})

	t.Run("type confirmation is monotonic", func(t *testing.T) {
		l := newLedger(t)
		id := "BL_C1979-4701_s1_f1_v1_"

		change, err := l.Apply(Match{Path: "/a/1.dpx", Identity: id, Kind: types.KindFilm, Dir: "/a", Size: 1})
		require.NoError(t, err)
		assert.True(t, change.TypeConfirmed)

		change, err = l.Apply(Match{Path: "/a/1.wav", Identity: id, Kind: types.KindMag, Dir: "/a", Size: 1})
		require.NoError(t, err)
		assert.False(t, change.TypeConfirmed)
		assert.True(t, change.Record.TypeConfirmed)
	})

	t.Run("type mismatch leaves flag unset", func(t *testing.T) {
		l := newLedger(t)
		id := "BL_C1979-4701_s1_m1_v1"

		change, err := l.Apply(Match{Path: "/a/x.dpx", Identity: id, Kind: types.KindFilm, Dir: "/a", Size: 1})
		require.NoError(t, err)
		assert.False(t, change.Record.TypeConfirmed)
		assert.True(t, change.Record.Found)
	})

	t.Run("unknown identity is not marked processed", func(t *testing.T) {
		l := newLedger(t)
		_, err := l.Apply(Match{Path: "/a/z.wav", Identity: "nope", Kind: types.KindMag, Dir: "/a", Size: 1})
		require.ErrorIs(t, err, ErrRecordNotFound)
		assert.False(t, l.Processed("/a/z.wav"))
	})
}

func TestIndividualMutators(t *testing.T) {
	l := newLedger(t)
	id := "BL_C1979-4701_s1_m1_v1"

	flipped, err := l.MarkFound(id, "/first")
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = l.MarkFound(id, "/second")
	require.NoError(t, err)
	assert.False(t, flipped)

	require.NoError(t, l.Accumulate(id, 5))
	require.NoError(t, l.Accumulate(id, 7))

	ok, err := l.ConfirmType(id, types.KindMag)
	require.NoError(t, err)
	assert.True(t, ok)

	r, _ := l.Lookup(id)
	assert.Equal(t, "/first", r.Location)
	assert.Equal(t, uint64(12), r.AggregateSize)
	assert.Equal(t, uint32(2), r.FileCount)
	assert.True(t, r.TypeConfirmed)

	_, err = l.MarkFound("missing", "/x")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, l.Accumulate("missing", 1), ErrRecordNotFound)

	assert.True(t, l.MarkProcessed("/p"))
	assert.False(t, l.MarkProcessed("/p"))
	assert.True(t, l.Processed("/p"))
}

func TestSummaryAndMissing(t *testing.T) {
	l := newLedger(t)

	_, err := l.Apply(Match{Path: "/a/1.dpx", Identity: "BL_C1979-4701_s1_f1_v1_", Kind: types.KindFilm, Dir: "/a", Size: 100})
	require.NoError(t, err)
	_, err = l.Apply(Match{Path: "/a/m.dpx", Identity: "BL_C1979-4701_s1_m1_v1", Kind: types.KindFilm, Dir: "/a", Size: 50})
	require.NoError(t, err)

	s := l.Summary()
	assert.Equal(t, 3, s.Records)
	assert.Equal(t, 2, s.Found)
	assert.Equal(t, 1, s.Missing)
	assert.Equal(t, 1, s.TypeConfirmed)
	assert.Equal(t, 1, s.TypeMismatch)
	assert.Equal(t, uint64(150), s.TotalSize)
	assert.Equal(t, uint64(2), s.TotalFiles)
	assert.Equal(t, 2, s.Processed)

	missing := l.Missing()
	require.Len(t, missing, 1)
	assert.Equal(t, "BL_C1980-0001_s1_f1_v1_", missing[0].Identity)
}

func TestReset(t *testing.T) {
	l := newLedger(t)
	_, err := l.Apply(Match{Path: "/a/1.dpx", Identity: "BL_C1979-4701_s1_f1_v1_", Kind: types.KindFilm, Dir: "/a", Size: 100})
	require.NoError(t, err)

	l.Reset()

	assert.Equal(t, 3, l.Len())
	assert.False(t, l.Processed("/a/1.dpx"))
	r, _ := l.Lookup("BL_C1979-4701_s1_f1_v1_")
	assert.Equal(t, Record{Identity: "BL_C1979-4701_s1_f1_v1_", ExpectedKind: types.KindFilm}, r)
}

func TestDocumentRoundTrip(t *testing.T) {
	l := newLedger(t)
	_, err := l.Apply(Match{Path: "/b/2.dpx", Identity: "BL_C1979-4701_s1_f1_v1_", Kind: types.KindFilm, Dir: "/b", Size: 1})
	require.NoError(t, err)
	_, err = l.Apply(Match{Path: "/a/1.dpx", Identity: "BL_C1979-4701_s1_f1_v1_", Kind: types.KindFilm, Dir: "/b", Size: 1})
	require.NoError(t, err)

	doc := l.Document()
	assert.Equal(t, SchemaVersion, doc.SchemaVersion)
	assert.Equal(t, []string{"/a/1.dpx", "/b/2.dpx"}, doc.Processed)

	restored, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, l.Records(), restored.Records())
	assert.True(t, restored.Processed("/a/1.dpx"))

	doc.SchemaVersion = 99
	_, err = FromDocument(doc)
	assert.ErrorIs(t, err, ErrSchemaVersion)
}

func TestApplyConcurrent(t *testing.T) {
	l := newLedger(t)
	id := "BL_C1979-4701_s1_f1_v1_"

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Every worker applies the same paths; each path must count once.
				path := "/a/" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + ".dpx"
				_, _ = l.Apply(Match{Path: path, Identity: id, Kind: types.KindFilm, Dir: "/a", Size: 2})
			}
		}(w)
	}
	wg.Wait()

	r, _ := l.Lookup(id)
	assert.Equal(t, uint32(perWorker), r.FileCount)
	assert.Equal(t, uint64(perWorker*2), r.AggregateSize)
}
