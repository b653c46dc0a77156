package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/vjranagit/timeseries/internal/logging"
	"github.com/vjranagit/timeseries/pkg/timeseries"
	"github.com/vjranagit/timeseries/pkg/types"
)

// ErrSeriesNotFound is returned when no snapshot exists for a key/metric pair
var ErrSeriesNotFound = errors.New("storage: series not found")

// Storage persists whole series snapshots
type Storage interface {
	// Save replaces the stored snapshot of ts
	Save(ctx context.Context, ts *timeseries.TimeSeries) error

	// Load reads the snapshot for key/metric
	Load(ctx context.Context, key, metric string) (*timeseries.TimeSeries, error)

	// Delete removes the snapshot for key/metric
	Delete(ctx context.Context, key, metric string) error

	// List describes every stored series
	List(ctx context.Context) ([]types.SeriesInfo, error)

	// Close closes the storage
	Close() error
}

// Retainer is implemented by storages that can enforce retention
type Retainer interface {
	ApplyRetention(ctx context.Context, cutoff int64) (int, error)
}

// Config holds storage configuration
type Config struct {
	Path             string
	InMemory         bool
	RetentionDays    int
	Compression      string
	CompressionLevel int
	Logger           *logging.Logger
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		RetentionDays:    30,
		Compression:      CompressionZstd,
		CompressionLevel: 3,
	}
}

// badgerStorage implements Storage using BadgerDB
type badgerStorage struct {
	cfg        *Config
	db         *badger.DB
	compressor *Compressor
	logger     *logging.Logger
}

var seriesPrefix = []byte("series/")

// badgerLogger routes badger's chatty info output to debug
type badgerLogger struct {
	logging.Printf
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.Debugf(format, args...)
}

// NewStorage creates a new storage instance
func NewStorage(cfg *Config) (Storage, error) {
	return newBadgerStorage(cfg)
}

func newBadgerStorage(cfg *Config) (*badgerStorage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "storage")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	}
	opts = opts.WithLogger(badgerLogger{logging.Printf{L: logger}})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.Compression, cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	logger.Info("storage opened",
		"path", cfg.Path,
		"in_memory", cfg.InMemory,
		"compression", compressor.Algorithm())

	return &badgerStorage{
		cfg:        cfg,
		db:         db,
		compressor: compressor,
		logger:     logger,
	}, nil
}

// seriesPayload is the stored form of one series
type seriesPayload struct {
	Key        string `json:"key"`
	Metric     string `json:"metric"`
	Count      int    `json:"count"`
	MinInstant int64  `json:"min_instant,omitempty"`
	MaxInstant int64  `json:"max_instant,omitempty"`
	Algorithm  string `json:"algorithm"`
	Instants   []byte `json:"instants,omitempty"`
	Offsets    []byte `json:"offsets,omitempty"`
	Values     []byte `json:"values,omitempty"`
}

func (p *seriesPayload) info() types.SeriesInfo {
	info := types.SeriesInfo{
		SeriesRef: types.SeriesRef{Key: p.Key, Metric: p.Metric},
		Length:    p.Count,
	}
	if p.Count > 0 {
		minTS, maxTS := p.MinInstant, p.MaxInstant
		info.MinInstant = &minTS
		info.MaxInstant = &maxTS
	}
	return info
}

// Save implements Storage.Save
func (s *badgerStorage) Save(ctx context.Context, ts *timeseries.TimeSeries) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := s.encode(ts)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ts, err)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := generateKey(ts.Key, ts.Metric)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payloadBytes)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", ts, err)
	}

	s.logger.Debug("series saved", "key", ts.Key, "metric", ts.Metric,
		"points", payload.Count, "bytes", len(payloadBytes))
	return nil
}

func (s *badgerStorage) encode(ts *timeseries.TimeSeries) (*seriesPayload, error) {
	points := ts.Points()

	instants := make([]int64, len(points))
	offsets := make([]int32, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		instants[i] = p.Instant
		offsets[i] = p.Offset
		values[i] = p.Value
	}

	payload := &seriesPayload{
		Key:       ts.Key,
		Metric:    ts.Metric,
		Count:     len(points),
		Algorithm: s.compressor.Algorithm(),
	}
	if len(points) > 0 {
		payload.MinInstant = instants[0]
		payload.MaxInstant = instants[len(instants)-1]
	}

	var err error
	if payload.Instants, err = s.compressor.CompressInstants(instants); err != nil {
		return nil, fmt.Errorf("failed to compress instants: %w", err)
	}
	if payload.Offsets, err = s.compressor.CompressOffsets(offsets); err != nil {
		return nil, fmt.Errorf("failed to compress offsets: %w", err)
	}
	if payload.Values, err = s.compressor.CompressValues(values); err != nil {
		return nil, fmt.Errorf("failed to compress values: %w", err)
	}
	return payload, nil
}

// Load implements Storage.Load
func (s *badgerStorage) Load(ctx context.Context, key, metric string) (*timeseries.TimeSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := s.readPayload(generateKey(key, metric))
	if err != nil {
		return nil, err
	}
	return s.decode(payload)
}

func (s *badgerStorage) readPayload(key []byte) (*seriesPayload, error) {
	var payloadBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		payloadBytes, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSeriesNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read series: %w", err)
	}

	var payload seriesPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &payload, nil
}

func (s *badgerStorage) decode(payload *seriesPayload) (*timeseries.TimeSeries, error) {
	// Series keep the algorithm they were written with until saved again
	columns, err := s.compressor.ForAlgorithm(payload.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("series %s.%s: %w", payload.Key, payload.Metric, err)
	}

	instants, err := columns.DecompressInstants(payload.Instants, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress instants: %w", err)
	}
	offsets, err := columns.DecompressOffsets(payload.Offsets, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress offsets: %w", err)
	}
	values, err := columns.DecompressValues(payload.Values, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}

	ts := timeseries.New(payload.Key, payload.Metric)
	for i := 0; i < payload.Count; i++ {
		ts.Insert(instants[i], offsets[i], values[i])
	}
	return ts, nil
}

// Delete implements Storage.Delete
func (s *badgerStorage) Delete(ctx context.Context, key, metric string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k := generateKey(key, metric)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrSeriesNotFound
			}
			return err
		}
		return txn.Delete(k)
	})
}

// List implements Storage.List
func (s *badgerStorage) List(ctx context.Context) ([]types.SeriesInfo, error) {
	var infos []types.SeriesInfo

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(seriesPrefix); it.ValidForPrefix(seriesPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var payload seriesPayload
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &payload)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal payload: %w", err)
			}
			infos = append(infos, payload.info())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// ApplyRetention drops every point older than cutoff from every stored series.
// Series left empty are deleted. It returns the number of points dropped.
func (s *badgerStorage) ApplyRetention(ctx context.Context, cutoff int64) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, info := range infos {
		if info.Length == 0 || *info.MinInstant >= cutoff {
			continue
		}

		ts, err := s.Load(ctx, info.Key, info.Metric)
		if err != nil {
			return dropped, err
		}
		before := ts.Len()
		ts.TrimToInstantRange(cutoff, math.MaxInt64)
		dropped += before - ts.Len()

		if ts.Len() == 0 {
			err = s.Delete(ctx, info.Key, info.Metric)
		} else {
			err = s.Save(ctx, ts)
		}
		if err != nil {
			return dropped, err
		}
	}

	if dropped > 0 {
		s.logger.Info("retention applied", "cutoff", cutoff, "dropped_points", dropped)
	}
	return dropped, nil
}

// RetentionCutoff returns the oldest instant kept by the configured retention
// at now, and false when retention is disabled
func (c *Config) RetentionCutoff(now time.Time) (int64, bool) {
	if c.RetentionDays <= 0 {
		return 0, false
	}
	return now.Add(-time.Duration(c.RetentionDays) * 24 * time.Hour).Unix(), true
}

// Close implements Storage.Close
func (s *badgerStorage) Close() error {
	s.compressor.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateKey generates the storage key for a series: prefix, fingerprint,
// then the full key and metric so that fingerprint collisions stay distinct
func generateKey(key, metric string) []byte {
	buf := new(bytes.Buffer)

	buf.Write(seriesPrefix)
	binary.Write(buf, binary.BigEndian, fingerprint(key, metric))
	buf.WriteString(key)
	buf.WriteByte(0)
	buf.WriteString(metric)

	return buf.Bytes()
}

// fingerprint hashes a key/metric pair
func fingerprint(key, metric string) uint64 {
	d := xxhash.New()
	d.WriteString(key)
	d.Write([]byte{0})
	d.WriteString(metric)
	return d.Sum64()
}
