package timeseries

import (
	"fmt"
	"iter"
	"math"
	"sort"

	"github.com/vjranagit/timeseries/pkg/calendar"
	"github.com/vjranagit/timeseries/pkg/types"
)

// Group names the period points are bucketed by
type Group string

const (
	GroupTenMinutes Group = "10min"
	GroupHourly     Group = "hourly"
	GroupDaily      Group = "daily"
	GroupWeekly     Group = "weekly"
)

// Func names the reduction applied to the values of one bucket
type Func string

const (
	FuncMean  Func = "mean"
	FuncSum   Func = "sum"
	FuncCount Func = "count"
	FuncMin   Func = "min"
	FuncMax   Func = "max"
	FuncAmp   Func = "amp"
)

func (g Group) bounds() (floor, ceil func(int64) int64, err error) {
	switch g {
	case GroupTenMinutes:
		return calendar.FloorTenMinutes, calendar.CeilTenMinutes, nil
	case GroupHourly:
		return calendar.FloorHour, calendar.CeilHour, nil
	case GroupDaily:
		return calendar.FloorDay, calendar.CeilDay, nil
	case GroupWeekly:
		return calendar.FloorWeek, calendar.CeilWeek, nil
	}
	return nil, nil, fmt.Errorf("%w: group %q", ErrUnknownAggregation, g)
}

func (fn Func) reducer() (func([]float64) float64, error) {
	switch fn {
	case FuncMean:
		return func(v []float64) float64 { return sum(v) / float64(len(v)) }, nil
	case FuncSum:
		return sum, nil
	case FuncCount:
		return func(v []float64) float64 { return float64(len(v)) }, nil
	case FuncMin:
		return minOf, nil
	case FuncMax:
		return maxOf, nil
	case FuncAmp:
		return func(v []float64) float64 { return maxOf(v) - minOf(v) }, nil
	}
	return nil, fmt.Errorf("%w: function %q", ErrUnknownAggregation, fn)
}

// span is a run of points [start, end) falling into one period
type span struct {
	start, end int
	slot       int64
	offset     int32
}

// spans walks the series in period-sized runs. With local set, periods are
// taken on each point's wall clock (instant + offset) and a run continues
// while that wall clock stays inside the first point's period.
func (ts *TimeSeries) spans(floor, ceil func(int64) int64, local bool) iter.Seq[span] {
	wall := func(p types.TimePoint) int64 {
		if local {
			return p.Instant + int64(p.Offset)
		}
		return p.Instant
	}

	return func(yield func(span) bool) {
		items := ts.data.items()
		for i := 0; i < len(items); {
			first := items[i]
			upper := ceil(wall(first))

			j := i + 1
			for j < len(items) && wall(items[j]) <= upper {
				j++
			}

			slot := floor(wall(first))
			if local {
				slot -= int64(first.Offset)
			}
			if !yield(span{start: i, end: j, slot: slot, offset: first.Offset}) {
				return
			}
			i = j
		}
	}
}

// Aggregate reduces every group period of the series to one point located at
// the start of the period and carrying the offset of its first point.
func (ts *TimeSeries) Aggregate(group Group, fn Func, local bool) ([]types.TimePoint, error) {
	floor, ceil, err := group.bounds()
	if err != nil {
		return nil, err
	}
	reduce, err := fn.reducer()
	if err != nil {
		return nil, err
	}

	items := ts.data.items()
	out := []types.TimePoint{}
	var values []float64
	for s := range ts.spans(floor, ceil, local) {
		values = values[:0]
		for _, p := range items[s.start:s.end] {
			values = append(values, p.Value)
		}
		out = append(out, types.TimePoint{Instant: s.slot, Offset: s.offset, Value: reduce(values)})
	}
	return out, nil
}

// Summarize computes count, sum, min, max, mean, sample standard deviation
// and median for every group period.
func (ts *TimeSeries) Summarize(group Group, local bool) ([]types.Summary, error) {
	floor, ceil, err := group.bounds()
	if err != nil {
		return nil, err
	}

	items := ts.data.items()
	out := []types.Summary{}
	for s := range ts.spans(floor, ceil, local) {
		values := make([]float64, 0, s.end-s.start)
		for _, p := range items[s.start:s.end] {
			values = append(values, p.Value)
		}
		summary := summarize(values)
		summary.Instant = s.slot
		summary.Offset = s.offset
		out = append(out, summary)
	}
	return out, nil
}

func summarize(values []float64) types.Summary {
	n := len(values)
	total := sum(values)
	mean := total / float64(n)

	var stdev float64
	if n > 1 {
		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		stdev = math.Sqrt(sq / float64(n-1))
	}

	sort.Float64s(values)
	median := values[n/2]
	if n%2 == 0 {
		median = (values[n/2-1] + values[n/2]) / 2
	}

	return types.Summary{
		Count:  n,
		Sum:    total,
		Min:    values[0],
		Max:    values[n-1],
		Mean:   mean,
		Stdev:  stdev,
		Median: median,
	}
}

// DailyBuckets splits the series into runs of points sharing a UTC day
func (ts *TimeSeries) DailyBuckets() []types.Bucket {
	return ts.buckets(calendar.FloorDay, calendar.CeilDay)
}

// MonthlyBuckets splits the series into runs of points sharing a UTC month
func (ts *TimeSeries) MonthlyBuckets() []types.Bucket {
	return ts.buckets(calendar.FloorMonth, calendar.CeilMonth)
}

func (ts *TimeSeries) buckets(floor, ceil func(int64) int64) []types.Bucket {
	items := ts.data.items()
	out := []types.Bucket{}
	for s := range ts.spans(floor, ceil, false) {
		points := make([]types.TimePoint, s.end-s.start)
		copy(points, items[s.start:s.end])
		out = append(out, types.Bucket{Start: s.slot, Points: points})
	}
	return out
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}
