package timeseries

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vjranagit/timeseries/pkg/codec"
	"github.com/vjranagit/timeseries/pkg/types"
)

func instants(ts *TimeSeries) []int64 {
	out := make([]int64, 0, ts.Len())
	for _, p := range ts.All() {
		out = append(out, p.Instant)
	}
	return out
}

// requireInvariants checks ordering, uniqueness and endpoint bounds
func requireInvariants(t *testing.T, ts *TimeSeries) {
	t.Helper()

	got := instants(ts)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i], "not strictly ascending at %d", i)
	}

	minTS, minErr := ts.MinInstant()
	maxTS, maxErr := ts.MaxInstant()
	if len(got) == 0 {
		require.ErrorIs(t, minErr, ErrEmpty)
		require.ErrorIs(t, maxErr, ErrEmpty)
		return
	}
	require.NoError(t, minErr)
	require.NoError(t, maxErr)
	require.Equal(t, got[0], minTS)
	require.Equal(t, got[len(got)-1], maxTS)
}

func series(values ...int64) *TimeSeries {
	ts := New("key", "metric")
	for _, v := range values {
		ts.Insert(v, 0, float64(v)/100)
	}
	return ts
}

func TestInsertOrdering(t *testing.T) {
	ts := New("hello", "world")

	require.True(t, ts.Insert(100, 0, 1.0))
	require.True(t, ts.Insert(200, 0, 2.0))
	require.True(t, ts.Insert(150, 0, 1.5))

	require.Equal(t, []int64{100, 150, 200}, instants(ts))
	p, err := ts.At(1)
	require.NoError(t, err)
	require.Equal(t, types.TimePoint{Instant: 150, Offset: 0, Value: 1.5}, p)
	requireInvariants(t, ts)
}

func TestInsertPrepend(t *testing.T) {
	ts := New("a", "b")
	for i := int64(100); i > 0; i-- {
		require.True(t, ts.Insert(i, 0, float64(i)))
	}
	require.Equal(t, 100, ts.Len())
	requireInvariants(t, ts)

	first, err := ts.At(0)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Instant)
}

func TestInsertReplace(t *testing.T) {
	ts := series(100, 200, 300)

	require.True(t, ts.Insert(250, 0, 1))
	require.False(t, ts.Insert(250, 3600, 9))
	require.Equal(t, 4, ts.Len())

	p, err := ts.AtInstant(250)
	require.NoError(t, err)
	require.Equal(t, int32(3600), p.Offset)
	require.Equal(t, 9.0, p.Value)

	// Replacing an endpoint keeps the length too
	require.False(t, ts.Insert(100, -60, 7))
	require.False(t, ts.Insert(300, 60, 8))
	require.Equal(t, 4, ts.Len())
	requireInvariants(t, ts)
}

func TestInsertISO(t *testing.T) {
	ts := New("a", "b")

	inserted, err := ts.InsertISO("2020-01-01T00:00:00Z", 5.0)
	require.NoError(t, err)
	require.True(t, inserted)

	iso, value, err := ts.ISOAt(0)
	require.NoError(t, err)
	require.Equal(t, "2020-01-01T00:00:00+00:00", iso)
	require.Equal(t, 5.0, value)

	inserted, err = ts.InsertISO("2019-02-12T08:15:32-05:00", 0.1)
	require.NoError(t, err)
	require.True(t, inserted)
	p, err := ts.At(0)
	require.NoError(t, err)
	require.Equal(t, int64(1549977332), p.Instant)
	require.Equal(t, int32(-5*3600), p.Offset)
	iso, _, err = ts.ISOAt(0)
	require.NoError(t, err)
	require.Equal(t, "2019-02-12T08:15:32-05:00", iso)

	// The same instant in another zone replaces the point
	inserted, err = ts.InsertISO("2020-01-01T01:00:00+01:00", 6.0)
	require.NoError(t, err)
	require.False(t, inserted)
	iso, value, err = ts.ISOAt(1)
	require.NoError(t, err)
	require.Equal(t, "2020-01-01T01:00:00+01:00", iso)
	require.Equal(t, 6.0, value)
}

func TestInsertISOInvalid(t *testing.T) {
	ts := series(100)
	_, err := ts.InsertISO("2020-01-01", 1)
	require.Error(t, err)
	require.Equal(t, 1, ts.Len())
}

func TestAtOutOfRange(t *testing.T) {
	ts := series(100, 200)
	for _, i := range []int{-1, 2, 100} {
		_, err := ts.At(i)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	_, _, err := ts.ISOAt(2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = ts.BinaryAt(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestAtInstant(t *testing.T) {
	empty := New("a", "b")
	_, err := empty.AtInstant(1)
	require.ErrorIs(t, err, ErrKeyNotFound)
	_, err = empty.IndexOfInstant(1)
	require.ErrorIs(t, err, ErrKeyNotFound)

	ts := series(100, 200, 300)
	p, err := ts.AtInstant(200)
	require.NoError(t, err)
	require.Equal(t, 2.0, p.Value)

	for _, missing := range []int64{99, 150, 301} {
		_, err := ts.AtInstant(missing)
		require.ErrorIs(t, err, ErrKeyNotFound)
	}

	idx, err := ts.IndexOfInstant(300)
	require.NoError(t, err)
	require.Equal(t, 2, idx)
}

func TestBisect(t *testing.T) {
	ts := series(100, 200, 300)

	require.Equal(t, 1, ts.BisectLeft(200))
	require.Equal(t, 2, ts.BisectRight(200))
	require.Equal(t, 0, ts.BisectLeft(0))
	require.Equal(t, 0, ts.BisectRight(0))
	require.Equal(t, 3, ts.BisectLeft(301))
	require.Equal(t, 3, ts.BisectRight(300))
	require.Equal(t, 1, ts.BisectLeft(150))
	require.Equal(t, 1, ts.BisectRight(150))

	empty := New("a", "b")
	require.Equal(t, 0, empty.BisectLeft(5))
	require.Equal(t, 0, empty.BisectRight(5))
}

func TestNearestIndexOfInstant(t *testing.T) {
	require.Equal(t, 0, New("a", "b").NearestIndexOfInstant(42))
	require.Equal(t, 0, series(100).NearestIndexOfInstant(-1000))
	require.Equal(t, 0, series(100).NearestIndexOfInstant(1000))

	ts := series(100, 200, 300)
	testCases := []struct {
		instant int64
		want    int
	}{
		{0, 0},
		{100, 0},
		{149, 0},
		{150, 0}, // tie goes left
		{151, 1},
		{200, 1},
		{250, 1},
		{251, 2},
		{1000, 2},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, ts.NearestIndexOfInstant(tc.instant), "instant %d", tc.instant)
	}
}

func TestRemoveInstant(t *testing.T) {
	ts := series(100, 200, 300)

	_, err := ts.RemoveInstant(999)
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.Equal(t, []int64{100, 200, 300}, instants(ts))

	removed, err := ts.RemoveInstant(300)
	require.NoError(t, err)
	require.True(t, removed)
	requireInvariants(t, ts)
	maxTS, _ := ts.MaxInstant()
	require.Equal(t, int64(200), maxTS)

	removed, err = ts.RemoveInstant(100)
	require.NoError(t, err)
	require.True(t, removed)
	minTS, _ := ts.MinInstant()
	require.Equal(t, int64(200), minTS)

	_, err = ts.RemoveInstant(200)
	require.NoError(t, err)
	requireInvariants(t, ts)
	require.Equal(t, 0, ts.Len())

	_, err = ts.RemoveInstant(200)
	require.ErrorIs(t, err, ErrKeyNotFound)

	// Endpoint appends still work after emptying
	require.True(t, ts.Insert(50, 0, 1))
	require.True(t, ts.Insert(10, 0, 1))
	require.Equal(t, []int64{10, 50}, instants(ts))
}

func TestRemoveAt(t *testing.T) {
	ts := series(100, 200, 300, 400)

	for _, i := range []int{-1, 4} {
		_, err := ts.RemoveAt(i)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	require.Equal(t, 4, ts.Len())

	removed, err := ts.RemoveAt(0)
	require.NoError(t, err)
	require.True(t, removed)
	requireInvariants(t, ts)

	_, err = ts.RemoveAt(1)
	require.NoError(t, err)
	require.Equal(t, []int64{200, 400}, instants(ts))
	requireInvariants(t, ts)

	// Stale bounds would let this append land before 400
	require.True(t, ts.Insert(300, 0, 3))
	require.Equal(t, []int64{200, 300, 400}, instants(ts))
}

func TestTrimToIndexRange(t *testing.T) {
	testCases := []struct {
		name       string
		start, end int
		want       []int64
	}{
		{"middle", 1, 3, []int64{200, 300, 400}},
		{"head", 0, 1, []int64{100, 200}},
		{"tail past end", 3, 100, []int64{400, 500}},
		{"exact end", 2, 4, []int64{300, 400, 500}},
		{"single", 2, 2, []int64{300}},
		{"start at length", 5, 10, []int64{}},
		{"start past length", 9, 10, []int64{}},
		{"end before start", 3, 1, []int64{}},
		{"everything", 0, 4, []int64{100, 200, 300, 400, 500}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := series(100, 200, 300, 400, 500)
			require.NoError(t, ts.TrimToIndexRange(tc.start, tc.end))
			require.Equal(t, tc.want, instants(ts))
			requireInvariants(t, ts)
		})
	}
}

func TestTrimToIndexRangeNegative(t *testing.T) {
	ts := series(100, 200)
	require.ErrorIs(t, ts.TrimToIndexRange(-1, 1), ErrIndexOutOfRange)
	require.ErrorIs(t, ts.TrimToIndexRange(0, -1), ErrIndexOutOfRange)
	require.Equal(t, 2, ts.Len())
}

func TestTrimSequence(t *testing.T) {
	ts := New("a", "b")
	for i := int64(0); i < 200; i++ {
		ts.Insert(1000+i*60, 3600, float64(i))
	}

	require.NoError(t, ts.TrimToIndexRange(100, 200))
	require.Equal(t, 100, ts.Len())
	first, _ := ts.At(0)
	require.Equal(t, int64(1000+100*60), first.Instant)

	ts.TrimToInstantRange(1000, 1000+199*60)
	require.Equal(t, 100, ts.Len())
	ts.TrimToInstantRange(1000+190*60, 1000+199*60)
	require.Equal(t, 10, ts.Len())
	require.NoError(t, ts.TrimToIndexRange(0, 0))
	require.Equal(t, 1, ts.Len())
	require.NoError(t, ts.TrimToIndexRange(1, 1))
	require.Equal(t, 0, ts.Len())
	requireInvariants(t, ts)
}

func TestTrimToInstantRange(t *testing.T) {
	ts := series(100, 150, 200, 250, 300)
	ts.TrimToInstantRange(150, 250)
	require.Equal(t, []int64{150, 200, 250}, instants(ts))
	requireInvariants(t, ts)
}

func TestTrimToInstantRangeExact(t *testing.T) {
	ts := series(100, 200, 300, 400)

	steps := []struct {
		start, end int64
		want       int
	}{
		{100, 400, 4},
		{100, 399, 3},
		{99, 399, 3},
		{101, 399, 2},
		{0, 399, 2},
		{200, 300, 2},
		{0, 1, 0},
	}
	for _, s := range steps {
		ts.TrimToInstantRange(s.start, s.end)
		require.Equal(t, s.want, ts.Len(), "trim [%d, %d]", s.start, s.end)
		requireInvariants(t, ts)
	}

	right := series(500)
	right.TrimToInstantRange(500, 501)
	require.Equal(t, 1, right.Len())
	right.TrimToInstantRange(501, 502)
	require.Equal(t, 0, right.Len())

	left := series(500)
	left.TrimToInstantRange(499, 500)
	require.Equal(t, 1, left.Len())
	left.TrimToInstantRange(498, 499)
	require.Equal(t, 0, left.Len())

	inverted := series(100, 200, 300)
	inverted.TrimToInstantRange(300, 100)
	require.Equal(t, 0, inverted.Len())
}

func TestBinaryAt(t *testing.T) {
	ts := New("a", "b")
	ts.Insert(-5, -3600, 2.25)

	b, err := ts.BinaryAt(0)
	require.NoError(t, err)
	require.Len(t, b, codec.RecordSize)

	p, err := codec.Decode(b)
	require.NoError(t, err)
	require.Equal(t, types.TimePoint{Instant: -5, Offset: -3600, Value: 2.25}, p)
}

func TestMinMaxEmpty(t *testing.T) {
	ts := New("a", "b")
	_, err := ts.MinInstant()
	require.True(t, errors.Is(err, ErrEmpty))
	_, err = ts.MaxInstant()
	require.True(t, errors.Is(err, ErrEmpty))
}

func TestString(t *testing.T) {
	require.Equal(t, "<timeseries 'device-1.temperature'>", New("device-1", "temperature").String())
}

// TestRandomOperations drives the series and a map-backed model with the
// same random operations and compares them after every step.
func TestRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ts := New("rand", "ops")
	model := map[int64]types.TimePoint{}

	modelInstants := func() []int64 {
		keys := make([]int64, 0, len(model))
		for k := range model {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		return keys
	}

	for step := 0; step < 5000; step++ {
		instant := rng.Int63n(400) - 200
		switch op := rng.Intn(10); {
		case op < 5:
			_, existed := model[instant]
			p := types.TimePoint{Instant: instant, Offset: int32(rng.Intn(48)-24) * 1800, Value: rng.Float64()}
			require.Equal(t, !existed, ts.Insert(p.Instant, p.Offset, p.Value))
			model[instant] = p
		case op < 7:
			_, existed := model[instant]
			_, err := ts.RemoveInstant(instant)
			if existed {
				require.NoError(t, err)
				delete(model, instant)
			} else {
				require.ErrorIs(t, err, ErrKeyNotFound)
			}
		case op < 8:
			if ts.Len() == 0 {
				continue
			}
			i := rng.Intn(ts.Len())
			p, err := ts.At(i)
			require.NoError(t, err)
			_, err = ts.RemoveAt(i)
			require.NoError(t, err)
			delete(model, p.Instant)
		case op < 9:
			if rng.Intn(20) != 0 {
				continue
			}
			lo := instant
			hi := lo + rng.Int63n(300)
			ts.TrimToInstantRange(lo, hi)
			for k := range model {
				if k < lo || k > hi {
					delete(model, k)
				}
			}
		default:
			keys := modelInstants()
			require.Equal(t, sort.Search(len(keys), func(i int) bool { return keys[i] >= instant }), ts.BisectLeft(instant))
			require.Equal(t, sort.Search(len(keys), func(i int) bool { return keys[i] > instant }), ts.BisectRight(instant))
		}

		keys := modelInstants()
		require.Equal(t, keys, instants(ts))
		requireInvariants(t, ts)
	}

	for i, k := range modelInstants() {
		p, err := ts.At(i)
		require.NoError(t, err)
		require.Equal(t, model[k], p)
	}
}

func BenchmarkInsertAppend(b *testing.B) {
	ts := New("bench", "append")
	for i := 0; i < b.N; i++ {
		ts.Insert(int64(i), 0, float64(i))
	}
}

func BenchmarkInsertPrepend(b *testing.B) {
	ts := New("bench", "prepend")
	for i := 0; i < b.N; i++ {
		ts.Insert(-int64(i), 0, float64(i))
	}
}

func BenchmarkAtInstant(b *testing.B) {
	ts := New("bench", "lookup")
	for i := 0; i < 100000; i++ {
		ts.Insert(int64(i*60), 0, float64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ts.AtInstant(int64((i % 100000) * 60))
	}
}
