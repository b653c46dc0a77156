package types

// TimePoint represents a single time-series sample.
// Instant is the ordering key; Offset only affects display.
type TimePoint struct {
	Instant int64   `json:"instant"`
	Offset  int32   `json:"offset"`
	Value   float64 `json:"value"`
}

// ISOPoint is a sample with its instant rendered as an ISO-8601 string
type ISOPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// SeriesRef identifies a series by its key/metric pair
type SeriesRef struct {
	Key    string `json:"key"`
	Metric string `json:"metric"`
}

// SeriesInfo describes a stored series
type SeriesInfo struct {
	SeriesRef
	Length     int    `json:"length"`
	MinInstant *int64 `json:"min_instant,omitempty"`
	MaxInstant *int64 `json:"max_instant,omitempty"`
}

// InsertRequest represents a single insert against a series.
// Either ISO is set, or Instant/Offset are used.
type InsertRequest struct {
	Instant int64   `json:"instant"`
	Offset  int32   `json:"offset"`
	ISO     string  `json:"iso,omitempty"`
	Value   float64 `json:"value"`
}

// InsertResult reports whether an insert added a new point
type InsertResult struct {
	Inserted bool `json:"inserted"`
	Length   int  `json:"length"`
}

// TrimRequest represents a trim by ordinal or by instant range, optionally
// followed by keeping only the newest or oldest points.
// Index bounds take precedence when both ranges are set.
type TrimRequest struct {
	StartIndex   *int   `json:"start_index,omitempty"`
	EndIndex     *int   `json:"end_index,omitempty"`
	StartInstant *int64 `json:"start_instant,omitempty"`
	EndInstant   *int64 `json:"end_instant,omitempty"`
	KeepNewest   *int   `json:"keep_newest,omitempty"`
	KeepOldest   *int   `json:"keep_oldest,omitempty"`
}

// Summary holds the full set of statistics for one aggregation bucket.
// Instant and Offset locate the start of the bucket.
type Summary struct {
	Instant int64   `json:"instant"`
	Offset  int32   `json:"offset"`
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	Stdev   float64 `json:"stdev"`
	Median  float64 `json:"median"`
}

// Bucket is a run of points sharing one calendar period starting at Start
type Bucket struct {
	Start  int64       `json:"start"`
	Points []TimePoint `json:"points"`
}
