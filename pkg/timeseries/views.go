package timeseries

import (
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/vjranagit/timeseries/pkg/calendar"
	"github.com/vjranagit/timeseries/pkg/types"
)

// InsertTime inserts value at t, recording the offset of t's zone
func (ts *TimeSeries) InsertTime(t time.Time, value float64) bool {
	_, offset := t.Zone()
	return ts.Insert(t.Unix(), int32(offset), value)
}

// TimeAt returns the point at index i as a time in a fixed zone of its offset
func (ts *TimeSeries) TimeAt(i int) (time.Time, float64, error) {
	p, err := ts.At(i)
	if err != nil {
		return time.Time{}, 0, err
	}
	return time.Unix(p.Instant, 0).In(time.FixedZone("", int(p.Offset))), p.Value, nil
}

// Points returns a copy of all points in order
func (ts *TimeSeries) Points() []types.TimePoint {
	items := ts.data.items()
	out := make([]types.TimePoint, len(items))
	copy(out, items)
	return out
}

// All iterates over index/point pairs in order.
// The series must not be mutated during iteration.
func (ts *TimeSeries) All() iter.Seq2[int, types.TimePoint] {
	return func(yield func(int, types.TimePoint) bool) {
		for i := 0; i < ts.data.len(); i++ {
			if !yield(i, *ts.data.at(i)) {
				return
			}
		}
	}
}

// Range iterates over the index/point pairs with start <= instant <= end
func (ts *TimeSeries) Range(start, end int64) iter.Seq2[int, types.TimePoint] {
	return func(yield func(int, types.TimePoint) bool) {
		hi := ts.BisectRight(end)
		for i := ts.BisectLeft(start); i < hi; i++ {
			if !yield(i, *ts.data.at(i)) {
				return
			}
		}
	}
}

// ISOPoints returns every point rendered with calendar.Format
func (ts *TimeSeries) ISOPoints() []types.ISOPoint {
	items := ts.data.items()
	out := make([]types.ISOPoint, len(items))
	for i, p := range items {
		out[i] = types.ISOPoint{
			Time:  calendar.Format(p.Instant, p.Offset),
			Value: p.Value,
		}
	}
	return out
}

// MarshalISOJSON encodes the series as [["2020-01-01T00:00:00+00:00",1.5],...]
func (ts *TimeSeries) MarshalISOJSON() ([]byte, error) {
	pairs := make([][2]any, 0, ts.data.len())
	for _, p := range ts.ISOPoints() {
		pairs = append(pairs, [2]any{p.Time, p.Value})
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", ts, err)
	}
	return data, nil
}

// Clone returns a deep copy that shares no storage with ts
func (ts *TimeSeries) Clone() *TimeSeries {
	return &TimeSeries{
		Key:    ts.Key,
		Metric: ts.Metric,
		data:   ts.data.clone(),
	}
}
