package timeseries

import "errors"

// Sentinel errors for series operations.
//
// Check them with errors.Is; returned errors carry the offending instant or index:
//
//	if errors.Is(err, timeseries.ErrKeyNotFound) {
//	    // no point at that instant
//	}
var (
	// ErrKeyNotFound indicates an exact-instant lookup or removal missed.
	ErrKeyNotFound = errors.New("timeseries: instant not found")

	// ErrIndexOutOfRange indicates an ordinal outside [0, length).
	ErrIndexOutOfRange = errors.New("timeseries: index out of range")

	// ErrEmpty indicates a bounds query on a series without points.
	ErrEmpty = errors.New("timeseries: series is empty")

	// ErrUnknownAggregation indicates an unsupported group or function name.
	ErrUnknownAggregation = errors.New("timeseries: unknown aggregation")
)
