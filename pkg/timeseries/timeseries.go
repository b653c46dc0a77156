// Package timeseries provides TimeSeries, a sorted in-memory container of
// time points identified by a key/metric pair.
//
// Points are kept strictly ascending by instant with no duplicates. Appends
// and prepends are amortized O(1); lookups are O(log n); inserting or removing
// in the middle shifts points and costs O(n).
//
// A TimeSeries is not safe for concurrent use. Callers sharing one across
// goroutines must serialize access, for example with one mutex per series.
package timeseries

import (
	"fmt"
	"sort"

	"github.com/vjranagit/timeseries/pkg/calendar"
	"github.com/vjranagit/timeseries/pkg/codec"
	"github.com/vjranagit/timeseries/pkg/types"
)

// TimeSeries is an ordered sequence of time points
type TimeSeries struct {
	Key    string
	Metric string

	data pointDeque
}

// New creates an empty series
func New(key, metric string) *TimeSeries {
	return &TimeSeries{
		Key:    key,
		Metric: metric,
	}
}

// FromPoints creates a series holding points, in any order.
// Later duplicates replace earlier ones.
func FromPoints(key, metric string, points []types.TimePoint) *TimeSeries {
	ts := New(key, metric)
	for _, p := range points {
		ts.Insert(p.Instant, p.Offset, p.Value)
	}
	return ts
}

// Len returns the number of points
func (ts *TimeSeries) Len() int {
	return ts.data.len()
}

// String implements fmt.Stringer
func (ts *TimeSeries) String() string {
	return "<timeseries '" + ts.Key + "." + ts.Metric + "'>"
}

// Insert adds a point. If a point with the same instant exists its offset
// and value are replaced and Insert returns false.
func (ts *TimeSeries) Insert(instant int64, offset int32, value float64) bool {
	p := types.TimePoint{Instant: instant, Offset: offset, Value: value}
	d := &ts.data

	if d.len() == 0 || instant > d.last().Instant {
		d.pushBack(p)
		return true
	}
	if instant < d.first().Instant {
		d.pushFront(p)
		return true
	}

	i := ts.BisectLeft(instant)
	if item := d.at(i); item.Instant == instant {
		item.Offset = offset
		item.Value = value
		return false
	}
	d.insert(i, p)
	return true
}

// InsertISO parses text as an ISO-8601 timestamp and inserts value at the
// resulting UTC instant, keeping the parsed offset.
func (ts *TimeSeries) InsertISO(text string, value float64) (bool, error) {
	instant, offset, err := calendar.Parse(text)
	if err != nil {
		return false, err
	}
	return ts.Insert(instant, offset, value), nil
}

// At returns the point at ordinal index i
func (ts *TimeSeries) At(i int) (types.TimePoint, error) {
	if err := ts.checkIndex(i); err != nil {
		return types.TimePoint{}, err
	}
	return *ts.data.at(i), nil
}

// AtInstant returns the point stored at exactly instant
func (ts *TimeSeries) AtInstant(instant int64) (types.TimePoint, error) {
	i, err := ts.IndexOfInstant(instant)
	if err != nil {
		return types.TimePoint{}, err
	}
	return *ts.data.at(i), nil
}

// IndexOfInstant returns the ordinal index of the point stored at instant
func (ts *TimeSeries) IndexOfInstant(instant int64) (int, error) {
	i := ts.BisectLeft(instant)
	if i == ts.data.len() || ts.data.at(i).Instant != instant {
		return 0, fmt.Errorf("%w: timestamp %d", ErrKeyNotFound, instant)
	}
	return i, nil
}

// NearestIndexOfInstant returns the index of the point closest to instant.
// Ties go to the earlier point; instants outside the stored range clamp to
// the first or last index. An empty series yields 0.
func (ts *TimeSeries) NearestIndexOfInstant(instant int64) int {
	n := ts.data.len()
	i := ts.BisectLeft(instant)
	if i == 0 {
		return 0
	}
	if i == n {
		return n - 1
	}

	before := ts.data.at(i - 1).Instant
	after := ts.data.at(i).Instant
	// before < instant <= after, so both distances are non-negative
	if uint64(instant-before) <= uint64(after-instant) {
		return i - 1
	}
	return i
}

// BisectLeft returns the smallest index whose instant is >= instant
func (ts *TimeSeries) BisectLeft(instant int64) int {
	items := ts.data.items()
	return sort.Search(len(items), func(i int) bool {
		return items[i].Instant >= instant
	})
}

// BisectRight returns the smallest index whose instant is > instant
func (ts *TimeSeries) BisectRight(instant int64) int {
	items := ts.data.items()
	return sort.Search(len(items), func(i int) bool {
		return items[i].Instant > instant
	})
}

// RemoveInstant removes the point stored at instant
func (ts *TimeSeries) RemoveInstant(instant int64) (bool, error) {
	i, err := ts.IndexOfInstant(instant)
	if err != nil {
		return false, err
	}
	ts.data.removeAt(i)
	return true, nil
}

// RemoveAt removes the point at ordinal index i
func (ts *TimeSeries) RemoveAt(i int) (bool, error) {
	if err := ts.checkIndex(i); err != nil {
		return false, err
	}
	ts.data.removeAt(i)
	return true, nil
}

// TrimToIndexRange keeps the points at ordinal positions start through end,
// inclusive, as numbered before the call. A start past the end clears the
// series; an end past the last index keeps the tail.
func (ts *TimeSeries) TrimToIndexRange(start, end int) error {
	if start < 0 || end < 0 {
		return fmt.Errorf("%w: trim range [%d, %d]", ErrIndexOutOfRange, start, end)
	}

	n := ts.data.len()
	if start >= n {
		ts.data.reset()
		return nil
	}
	if end > n-1 {
		end = n - 1
	}
	ts.data.keep(start, end+1)
	return nil
}

// TrimToInstantRange keeps the points with startInstant <= instant <= endInstant
func (ts *TimeSeries) TrimToInstantRange(startInstant, endInstant int64) {
	left := ts.BisectLeft(startInstant)
	right := ts.BisectRight(endInstant)
	if right == 0 {
		ts.data.reset()
		return
	}
	// both bounds are non-negative
	_ = ts.TrimToIndexRange(left, right-1)
}

// TrimCountNewest keeps the n most recent points. n <= 0 clears the series.
func (ts *TimeSeries) TrimCountNewest(n int) {
	length := ts.data.len()
	if n >= length {
		return
	}
	if n <= 0 {
		ts.data.reset()
		return
	}
	ts.data.keep(length-n, length)
}

// TrimCountOldest keeps the n oldest points. n <= 0 clears the series.
func (ts *TimeSeries) TrimCountOldest(n int) {
	if n >= ts.data.len() {
		return
	}
	if n <= 0 {
		ts.data.reset()
		return
	}
	ts.data.keep(0, n)
}

// ISOAt returns the point at index i as an ISO-8601 string in its own offset
func (ts *TimeSeries) ISOAt(i int) (string, float64, error) {
	p, err := ts.At(i)
	if err != nil {
		return "", 0, err
	}
	return calendar.Format(p.Instant, p.Offset), p.Value, nil
}

// BinaryAt returns the point at index i as a 20 byte record
func (ts *TimeSeries) BinaryAt(i int) ([]byte, error) {
	p, err := ts.At(i)
	if err != nil {
		return nil, err
	}
	return codec.Encode(p), nil
}

// MinInstant returns the instant of the first point
func (ts *TimeSeries) MinInstant() (int64, error) {
	if ts.data.len() == 0 {
		return 0, ErrEmpty
	}
	return ts.data.first().Instant, nil
}

// MaxInstant returns the instant of the last point
func (ts *TimeSeries) MaxInstant() (int64, error) {
	if ts.data.len() == 0 {
		return 0, ErrEmpty
	}
	return ts.data.last().Instant, nil
}

func (ts *TimeSeries) checkIndex(i int) error {
	if i < 0 || i >= ts.data.len() {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, ts.data.len())
	}
	return nil
}
