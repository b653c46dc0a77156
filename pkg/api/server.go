package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vjranagit/timeseries/internal/logging"
	"github.com/vjranagit/timeseries/pkg/calendar"
	"github.com/vjranagit/timeseries/pkg/codec"
	"github.com/vjranagit/timeseries/pkg/storage"
	"github.com/vjranagit/timeseries/pkg/timeseries"
	"github.com/vjranagit/timeseries/pkg/types"
)

// maxRecordBody bounds a binary record upload
const maxRecordBody = 64 << 20

// Server implements the HTTP API server.
// Requests against the same series are serialized by a per-series mutex.
type Server struct {
	storage storage.Storage
	addr    string
	timeout time.Duration
	server  *http.Server
	logger  *logging.Logger

	// gate is held shared by series requests and exclusively by retention
	gate  sync.RWMutex
	locksMu sync.Mutex
	locks   map[types.SeriesRef]*seriesLock

	metrics *metrics
}

// seriesLock serializes one series. refs counts holders and waiters; the
// entry is dropped from the table when it reaches zero.
type seriesLock struct {
	mu   sync.Mutex
	refs int
}

// NewServer creates a new API server
func NewServer(addr string, timeout time.Duration, store storage.Storage, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		storage: store,
		addr:    addr,
		timeout: timeout,
		logger:  logger.With("component", "api"),
		locks:   make(map[types.SeriesRef]*seriesLock),
		metrics: newMetrics(store),
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/series", s.handleList)
	mux.HandleFunc("GET /api/v1/series/{key}/{metric}", s.handleInfo)
	mux.HandleFunc("DELETE /api/v1/series/{key}/{metric}", s.handleDeleteSeries)

	mux.HandleFunc("POST /api/v1/series/{key}/{metric}/points", s.handleInsert)
	mux.HandleFunc("GET /api/v1/series/{key}/{metric}/points", s.handleExport)
	mux.HandleFunc("POST /api/v1/series/{key}/{metric}/records", s.handleImport)
	mux.HandleFunc("GET /api/v1/series/{key}/{metric}/buckets", s.handleBuckets)

	mux.HandleFunc("GET /api/v1/series/{key}/{metric}/index/{index}", s.handleAt)
	mux.HandleFunc("DELETE /api/v1/series/{key}/{metric}/index/{index}", s.handleRemoveAt)
	mux.HandleFunc("GET /api/v1/series/{key}/{metric}/instant/{instant}", s.handleAtInstant)
	mux.HandleFunc("DELETE /api/v1/series/{key}/{metric}/instant/{instant}", s.handleRemoveInstant)
	mux.HandleFunc("GET /api/v1/series/{key}/{metric}/nearest/{instant}", s.handleNearest)
	mux.HandleFunc("GET /api/v1/series/{key}/{metric}/bisect/{instant}", s.handleBisect)
	mux.HandleFunc("POST /api/v1/series/{key}/{metric}/trim", s.handleTrim)

	return s.logRequests(mux)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}

	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.metrics.requests.Inc()
		if rec.status >= http.StatusInternalServerError {
			s.metrics.failures.Inc()
		}
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func seriesRef(r *http.Request) types.SeriesRef {
	return types.SeriesRef{Key: r.PathValue("key"), Metric: r.PathValue("metric")}
}

func (s *Server) lock(ref types.SeriesRef) func() {
	s.gate.RLock()

	s.locksMu.Lock()
	l, ok := s.locks[ref]
	if !ok {
		l = &seriesLock{}
		s.locks[ref] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, ref)
		}
		s.locksMu.Unlock()

		s.gate.RUnlock()
	}
}

// ApplyRetention drops points older than cutoff from every stored series.
// Series requests wait until it finishes.
func (s *Server) ApplyRetention(ctx context.Context, cutoff int64) (int, error) {
	r, ok := s.storage.(storage.Retainer)
	if !ok {
		return 0, nil
	}

	s.gate.Lock()
	defer s.gate.Unlock()
	return r.ApplyRetention(ctx, cutoff)
}

// view runs fn against the stored series under its lock
func (s *Server) view(ctx context.Context, ref types.SeriesRef, fn func(ts *timeseries.TimeSeries) error) error {
	defer s.lock(ref)()

	ts, err := s.storage.Load(ctx, ref.Key, ref.Metric)
	if err != nil {
		return err
	}
	return fn(ts)
}

// update runs fn against the series under its lock and saves the result when
// fn succeeds. A missing series starts empty when create is set.
func (s *Server) update(ctx context.Context, ref types.SeriesRef, create bool, fn func(ts *timeseries.TimeSeries) error) error {
	defer s.lock(ref)()

	ts, err := s.storage.Load(ctx, ref.Key, ref.Metric)
	if errors.Is(err, storage.ErrSeriesNotFound) && create {
		ts, err = timeseries.New(ref.Key, ref.Metric), nil
	}
	if err != nil {
		return err
	}

	if err := fn(ts); err != nil {
		return err
	}
	if err := s.storage.Save(ctx, ts); err != nil {
		return fmt.Errorf("failed to save %s: %w", ts, err)
	}
	return nil
}

// handleList lists stored series
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.storage.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if infos == nil {
		infos = []types.SeriesInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleInfo describes one series
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ref := seriesRef(r)
	var info types.SeriesInfo
	err := s.view(r.Context(), ref, func(ts *timeseries.TimeSeries) error {
		info = seriesInfo(ts)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func seriesInfo(ts *timeseries.TimeSeries) types.SeriesInfo {
	info := types.SeriesInfo{
		SeriesRef: types.SeriesRef{Key: ts.Key, Metric: ts.Metric},
		Length:    ts.Len(),
	}
	if minTS, err := ts.MinInstant(); err == nil {
		info.MinInstant = &minTS
	}
	if maxTS, err := ts.MaxInstant(); err == nil {
		info.MaxInstant = &maxTS
	}
	return info
}

// handleDeleteSeries drops a whole series
func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	ref := seriesRef(r)
	unlock := s.lock(ref)
	err := s.storage.Delete(r.Context(), ref.Key, ref.Metric)
	unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInsert inserts or replaces one point
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req types.InsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	var result types.InsertResult
	err := s.update(r.Context(), seriesRef(r), true, func(ts *timeseries.TimeSeries) error {
		if req.ISO != "" {
			inserted, err := ts.InsertISO(req.ISO, req.Value)
			if err != nil {
				return err
			}
			result.Inserted = inserted
		} else {
			result.Inserted = ts.Insert(req.Instant, req.Offset, req.Value)
		}
		result.Length = ts.Len()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// handleImport inserts a body of concatenated binary records
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	reader := codec.NewReader(http.MaxBytesReader(w, r.Body, maxRecordBody))

	var points []types.TimePoint
	for {
		p, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		http.Error(w, "No records in request body", http.StatusBadRequest)
		return
	}

	var result types.InsertResult
	err := s.update(r.Context(), seriesRef(r), true, func(ts *timeseries.TimeSeries) error {
		for _, p := range points {
			if ts.Insert(p.Instant, p.Offset, p.Value) {
				result.Inserted = true
			}
		}
		result.Length = ts.Len()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExport returns the points of a series, optionally restricted to
// ?start=&end= and reduced with ?aggregate=<group>&fn=<func>&tz=local
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, ok := queryInt64(w, q, "start", math.MinInt64)
	if !ok {
		return
	}
	end, ok := queryInt64(w, q, "end", math.MaxInt64)
	if !ok {
		return
	}
	format := q.Get("format")
	group := timeseries.Group(q.Get("aggregate"))
	fn := timeseries.Func(q.Get("fn"))
	if fn == "" {
		fn = timeseries.FuncMean
	}
	local := q.Get("tz") == "local"

	err := s.view(r.Context(), seriesRef(r), func(ts *timeseries.TimeSeries) error {
		selected := ts
		if start != math.MinInt64 || end != math.MaxInt64 {
			selected = timeseries.New(ts.Key, ts.Metric)
			for _, p := range ts.Range(start, end) {
				selected.Insert(p.Instant, p.Offset, p.Value)
			}
		}

		if group == "" {
			return s.writePoints(w, format, selected)
		}
		if fn == "all" {
			summaries, err := selected.Summarize(group, local)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, summaries)
			return nil
		}
		points, err := selected.Aggregate(group, fn, local)
		if err != nil {
			return err
		}
		return s.writePoints(w, format, timeseries.FromPoints(ts.Key, ts.Metric, points))
	})
	if err != nil {
		s.writeError(w, err)
	}
}

// writePoints renders ts as raw points, ISO pairs or binary records.
// Once the body has started, write errors are logged instead of returned.
func (s *Server) writePoints(w http.ResponseWriter, format string, ts *timeseries.TimeSeries) error {
	switch format {
	case "iso":
		data, err := ts.MarshalISOJSON()
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(data); err != nil {
			s.logger.Warn("export aborted", "series", ts.String(), "error", err)
		}
	case "binary":
		w.Header().Set("Content-Type", "application/octet-stream")
		rw := codec.NewWriter(w)
		for i, p := range ts.All() {
			if err := rw.Write(p); err != nil {
				s.logger.Warn("export aborted", "series", ts.String(), "written", i, "error", err)
				return nil
			}
		}
	default:
		writeJSON(w, http.StatusOK, ts.Points())
	}
	return nil
}

// handleBuckets splits a series into ?period=daily (default) or monthly runs
func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period != "" && period != "daily" && period != "monthly" {
		http.Error(w, fmt.Sprintf("Invalid period %q", period), http.StatusBadRequest)
		return
	}

	err := s.view(r.Context(), seriesRef(r), func(ts *timeseries.TimeSeries) error {
		if period == "monthly" {
			writeJSON(w, http.StatusOK, ts.MonthlyBuckets())
		} else {
			writeJSON(w, http.StatusOK, ts.DailyBuckets())
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
	}
}

// handleAt returns the point at an ordinal
func (s *Server) handleAt(w http.ResponseWriter, r *http.Request) {
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")

	err := s.view(r.Context(), seriesRef(r), func(ts *timeseries.TimeSeries) error {
		switch format {
		case "iso":
			iso, value, err := ts.ISOAt(index)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, types.ISOPoint{Time: iso, Value: value})
		case "binary":
			record, err := ts.BinaryAt(index)
			if err != nil {
				return err
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(record)
		default:
			p, err := ts.At(index)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, p)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
	}
}

// handleAtInstant returns the point stored at an exact instant and its ordinal
func (s *Server) handleAtInstant(w http.ResponseWriter, r *http.Request) {
	instant, ok := int64Param(w, r, "instant")
	if !ok {
		return
	}

	err := s.view(r.Context(), seriesRef(r), func(ts *timeseries.TimeSeries) error {
		index, err := ts.IndexOfInstant(instant)
		if err != nil {
			return err
		}
		p, err := ts.At(index)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"index": index, "point": p})
		return nil
	})
	if err != nil {
		s.writeError(w, err)
	}
}

// handleNearest returns the ordinal closest to an instant
func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	instant, ok := int64Param(w, r, "instant")
	if !ok {
		return
	}

	err := s.view(r.Context(), seriesRef(r), func(ts *timeseries.TimeSeries) error {
		if ts.Len() == 0 {
			return timeseries.ErrEmpty
		}
		writeJSON(w, http.StatusOK, map[string]int{"index": ts.NearestIndexOfInstant(instant)})
		return nil
	})
	if err != nil {
		s.writeError(w, err)
	}
}

// handleBisect returns both insertion points for an instant
func (s *Server) handleBisect(w http.ResponseWriter, r *http.Request) {
	instant, ok := int64Param(w, r, "instant")
	if !ok {
		return
	}

	err := s.view(r.Context(), seriesRef(r), func(ts *timeseries.TimeSeries) error {
		writeJSON(w, http.StatusOK, map[string]int{
			"left":  ts.BisectLeft(instant),
			"right": ts.BisectRight(instant),
		})
		return nil
	})
	if err != nil {
		s.writeError(w, err)
	}
}

// handleRemoveAt removes the point at an ordinal
func (s *Server) handleRemoveAt(w http.ResponseWriter, r *http.Request) {
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}

	var length int
	err := s.update(r.Context(), seriesRef(r), false, func(ts *timeseries.TimeSeries) error {
		if _, err := ts.RemoveAt(index); err != nil {
			return err
		}
		length = ts.Len()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true, "length": length})
}

// handleRemoveInstant removes the point at an exact instant
func (s *Server) handleRemoveInstant(w http.ResponseWriter, r *http.Request) {
	instant, ok := int64Param(w, r, "instant")
	if !ok {
		return
	}

	var length int
	err := s.update(r.Context(), seriesRef(r), false, func(ts *timeseries.TimeSeries) error {
		if _, err := ts.RemoveInstant(instant); err != nil {
			return err
		}
		length = ts.Len()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true, "length": length})
}

// handleTrim trims by ordinal range or instant range, then by point count
func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	var req types.TrimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	byIndex := req.StartIndex != nil && req.EndIndex != nil
	byInstant := req.StartInstant != nil && req.EndInstant != nil
	byCount := req.KeepNewest != nil || req.KeepOldest != nil
	if !byIndex && !byInstant && !byCount {
		http.Error(w, "Trim needs start_index/end_index, start_instant/end_instant, keep_newest or keep_oldest", http.StatusBadRequest)
		return
	}

	var info types.SeriesInfo
	err := s.update(r.Context(), seriesRef(r), false, func(ts *timeseries.TimeSeries) error {
		switch {
		case byIndex:
			if err := ts.TrimToIndexRange(*req.StartIndex, *req.EndIndex); err != nil {
				return err
			}
		case byInstant:
			ts.TrimToInstantRange(*req.StartInstant, *req.EndInstant)
		}
		if req.KeepNewest != nil {
			ts.TrimCountNewest(*req.KeepNewest)
		}
		if req.KeepOldest != nil {
			ts.TrimCountOldest(*req.KeepOldest)
		}
		info = seriesInfo(ts)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// writeError maps domain errors to status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, timeseries.ErrKeyNotFound),
		errors.Is(err, timeseries.ErrIndexOutOfRange),
		errors.Is(err, storage.ErrSeriesNotFound):
		status = http.StatusNotFound
	case errors.Is(err, calendar.ErrParse),
		errors.Is(err, codec.ErrDecode),
		errors.Is(err, timeseries.ErrUnknownAggregation):
		status = http.StatusBadRequest
	case errors.Is(err, timeseries.ErrEmpty):
		status = http.StatusConflict
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		status = http.StatusRequestEntityTooLarge
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s: %v", name, err), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s: %v", name, err), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func queryInt64(w http.ResponseWriter, q url.Values, name string, fallback int64) (int64, bool) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s: %v", name, err), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}
