package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Supported block compression algorithms
const (
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
)

var errShortColumn = errors.New("column shorter than point count")

// Compressor handles column compression for series snapshots.
// Columns are delta or XOR encoded and then block compressed.
type Compressor struct {
	algorithm string
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCompressor creates a compressor for algorithm. level (1-4) selects the
// zstd speed/ratio trade-off and is ignored by snappy. A zstd decoder is
// always created so blocks written under either algorithm can be read back.
func NewCompressor(algorithm string, level int) (*Compressor, error) {
	switch algorithm {
	case CompressionSnappy, CompressionZstd:
	case "":
		algorithm = CompressionZstd
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algorithm)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	c := &Compressor{algorithm: algorithm, decoder: decoder}
	if algorithm == CompressionSnappy {
		return c, nil
	}

	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	c.encoder = encoder
	return c, nil
}

// ForAlgorithm returns a compressor that decompresses columns written with
// algorithm. The result shares c's decoder, is only valid for Decompress
// calls, and must not be closed.
func (c *Compressor) ForAlgorithm(algorithm string) (*Compressor, error) {
	switch algorithm {
	case c.algorithm:
		return c, nil
	case CompressionZstd, CompressionSnappy:
		return &Compressor{algorithm: algorithm, decoder: c.decoder}, nil
	}
	return nil, fmt.Errorf("unknown compression algorithm %q", algorithm)
}

// Algorithm returns the block compression in use
func (c *Compressor) Algorithm() string {
	return c.algorithm
}

func (c *Compressor) compress(raw []byte) []byte {
	if c.algorithm == CompressionSnappy {
		return snappy.Encode(nil, raw)
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
}

func (c *Compressor) decompress(data []byte) ([]byte, error) {
	if c.algorithm == CompressionSnappy {
		return snappy.Decode(nil, data)
	}
	return c.decoder.DecodeAll(data, nil)
}

// CompressInstants compresses ascending instants using delta-of-delta
// varints + block compression
func (c *Compressor) CompressInstants(instants []int64) ([]byte, error) {
	if len(instants) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(instants)*2)

	// First instant as-is, then delta-of-delta
	buf = binary.AppendVarint(buf, instants[0])
	var prevDelta int64
	for i := 1; i < len(instants); i++ {
		delta := instants[i] - instants[i-1]
		buf = binary.AppendVarint(buf, delta-prevDelta)
		prevDelta = delta
	}

	return c.compress(buf), nil
}

// DecompressInstants decompresses count instants
func (c *Compressor) DecompressInstants(data []byte, count int) ([]int64, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	instants := make([]int64, count)
	var prevDelta int64
	for i := 0; i < count; i++ {
		v, n := binary.Varint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("instant %d: %w", i, errShortColumn)
		}
		raw = raw[n:]

		if i == 0 {
			instants[0] = v
			continue
		}
		delta := v + prevDelta
		instants[i] = instants[i-1] + delta
		prevDelta = delta
	}

	return instants, nil
}

// CompressOffsets compresses UTC offsets as varint deltas. Offsets rarely
// change within a series, so most deltas are zero.
func (c *Compressor) CompressOffsets(offsets []int32) ([]byte, error) {
	if len(offsets) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(offsets))
	var prev int64
	for _, o := range offsets {
		buf = binary.AppendVarint(buf, int64(o)-prev)
		prev = int64(o)
	}

	return c.compress(buf), nil
}

// DecompressOffsets decompresses count offsets
func (c *Compressor) DecompressOffsets(data []byte, count int) ([]int32, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	offsets := make([]int32, count)
	var prev int64
	for i := 0; i < count; i++ {
		d, n := binary.Varint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("offset %d: %w", i, errShortColumn)
		}
		raw = raw[n:]
		prev += d
		offsets[i] = int32(prev)
	}

	return offsets, nil
}

// CompressValues compresses float64 values using XOR encoding + block compression
func (c *Compressor) CompressValues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(values)*8)

	// XOR against the previous value; the first is XORed with zero
	var prevBits uint64
	for _, v := range values {
		bits := math.Float64bits(v)
		buf = binary.LittleEndian.AppendUint64(buf, bits^prevBits)
		prevBits = bits
	}

	return c.compress(buf), nil
}

// DecompressValues decompresses count values
func (c *Compressor) DecompressValues(data []byte, count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	if len(raw) < count*8 {
		return nil, fmt.Errorf("values: %w", errShortColumn)
	}

	values := make([]float64, count)
	var prevBits uint64
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(raw[i*8:]) ^ prevBits
		values[i] = math.Float64frombits(bits)
		prevBits = bits
	}

	return values, nil
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
