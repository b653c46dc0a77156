// Package codec implements the fixed-width binary record format for a
// single time point: 8 byte instant, 4 byte offset and 8 byte IEEE-754
// value, all little-endian.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/vjranagit/timeseries/pkg/types"
)

// RecordSize is the encoded size of one time point
const RecordSize = 20

// ErrDecode is returned for malformed binary records
var ErrDecode = errors.New("codec: malformed binary record")

// Encode encodes a time point into a new 20 byte record
func Encode(p types.TimePoint) []byte {
	return AppendRecord(make([]byte, 0, RecordSize), p)
}

// AppendRecord appends the record for p to buf
func AppendRecord(buf []byte, p types.TimePoint) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Instant))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Offset))
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Value))
}

// Decode decodes a single 20 byte record
func Decode(b []byte) (types.TimePoint, error) {
	if len(b) != RecordSize {
		return types.TimePoint{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrDecode, RecordSize, len(b))
	}
	return types.TimePoint{
		Instant: int64(binary.LittleEndian.Uint64(b[0:8])),
		Offset:  int32(binary.LittleEndian.Uint32(b[8:12])),
		Value:   math.Float64frombits(binary.LittleEndian.Uint64(b[12:20])),
	}, nil
}

// DecodeAll decodes a concatenation of records
func DecodeAll(b []byte) ([]types.TimePoint, error) {
	if len(b)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrDecode, len(b), RecordSize)
	}
	points := make([]types.TimePoint, 0, len(b)/RecordSize)
	for off := 0; off < len(b); off += RecordSize {
		p, err := Decode(b[off : off+RecordSize])
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// Writer streams records to an underlying writer
type Writer struct {
	w   io.Writer
	buf [RecordSize]byte
}

// NewWriter creates a record writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes one record
func (rw *Writer) Write(p types.TimePoint) error {
	AppendRecord(rw.buf[:0], p)
	if _, err := rw.w.Write(rw.buf[:]); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Reader reads records from an underlying reader
type Reader struct {
	r   io.Reader
	buf [RecordSize]byte
}

// NewReader creates a record reader
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read reads the next record. It returns io.EOF at a clean end of input and
// ErrDecode when the input ends inside a record.
func (rr *Reader) Read() (types.TimePoint, error) {
	if _, err := io.ReadFull(rr.r, rr.buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return types.TimePoint{}, fmt.Errorf("%w: truncated record", ErrDecode)
		}
		return types.TimePoint{}, err
	}
	return Decode(rr.buf[:])
}
