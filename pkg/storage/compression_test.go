package storage

import (
	"math"
	"testing"
	"time"
)

func TestCompressInstants(t *testing.T) {
	comp, err := NewCompressor(CompressionZstd, 2)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	// Create regular interval instants
	now := time.Now().Unix()
	instants := make([]int64, 100)
	for i := 0; i < 100; i++ {
		instants[i] = now + int64(i*60) // 1 minute intervals
	}

	compressed, err := comp.CompressInstants(instants)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}

	// Should achieve good compression on regular intervals
	originalSize := len(instants) * 8
	if len(compressed) >= originalSize {
		t.Errorf("Compression ineffective: original=%d, compressed=%d",
			originalSize, len(compressed))
	}

	decompressed, err := comp.DecompressInstants(compressed, len(instants))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	if len(decompressed) != len(instants) {
		t.Fatalf("Length mismatch: expected %d, got %d",
			len(instants), len(decompressed))
	}

	for i := range instants {
		if instants[i] != decompressed[i] {
			t.Errorf("Instant mismatch at %d: expected %d, got %d",
				i, instants[i], decompressed[i])
		}
	}
}

func TestCompressInstantsExtremes(t *testing.T) {
	comp, err := NewCompressor(CompressionZstd, 1)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	instants := []int64{math.MinInt64, -1, 0, 1, math.MaxInt64}
	compressed, err := comp.CompressInstants(instants)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	decompressed, err := comp.DecompressInstants(compressed, len(instants))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	for i := range instants {
		if instants[i] != decompressed[i] {
			t.Errorf("Instant mismatch at %d: expected %d, got %d", i, instants[i], decompressed[i])
		}
	}
}

func TestCompressOffsets(t *testing.T) {
	comp, err := NewCompressor(CompressionSnappy, 0)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	offsets := []int32{3600, 3600, 7200, 7200, -18000, math.MinInt32, math.MaxInt32, 0}
	compressed, err := comp.CompressOffsets(offsets)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}

	decompressed, err := comp.DecompressOffsets(compressed, len(offsets))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	for i := range offsets {
		if offsets[i] != decompressed[i] {
			t.Errorf("Offset mismatch at %d: expected %d, got %d", i, offsets[i], decompressed[i])
		}
	}
}

func TestCompressValues(t *testing.T) {
	comp, err := NewCompressor(CompressionZstd, 2)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	// Create values with small variations (common in metrics)
	values := make([]float64, 100)
	base := 100.0
	for i := 0; i < 100; i++ {
		values[i] = base + math.Sin(float64(i)*0.1)*10
	}

	compressed, err := comp.CompressValues(values)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}

	decompressed, err := comp.DecompressValues(compressed, len(values))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	if len(decompressed) != len(values) {
		t.Fatalf("Length mismatch: expected %d, got %d",
			len(values), len(decompressed))
	}

	for i := range values {
		if values[i] != decompressed[i] {
			t.Errorf("Value mismatch at %d: expected %f, got %f",
				i, values[i], decompressed[i])
		}
	}
}

func TestDecompressShortColumn(t *testing.T) {
	comp, err := NewCompressor(CompressionZstd, 2)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	compressed, err := comp.CompressValues([]float64{1, 2})
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	if _, err := comp.DecompressValues(compressed, 3); err == nil {
		t.Error("Expected error when count exceeds column length")
	}

	compressed, err = comp.CompressInstants([]int64{1, 2})
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	if _, err := comp.DecompressInstants(compressed, 3); err == nil {
		t.Error("Expected error when count exceeds column length")
	}
}

func TestCompressionLevels(t *testing.T) {
	testCases := []struct {
		algorithm   string
		level       int
		description string
	}{
		{CompressionZstd, 1, "fastest"},
		{CompressionZstd, 2, "default"},
		{CompressionZstd, 3, "better"},
		{CompressionZstd, 4, "best"},
		{CompressionSnappy, 0, "snappy"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			comp, err := NewCompressor(tc.algorithm, tc.level)
			if err != nil {
				t.Fatalf("Failed to create compressor at level %d: %v",
					tc.level, err)
			}
			defer comp.Close()

			values := []float64{1.0, 2.0, 3.0, 4.0, 5.0}
			compressed, err := comp.CompressValues(values)
			if err != nil {
				t.Fatalf("Compression failed: %v", err)
			}

			decompressed, err := comp.DecompressValues(compressed, len(values))
			if err != nil {
				t.Fatalf("Decompression failed: %v", err)
			}

			for i := range values {
				if values[i] != decompressed[i] {
					t.Errorf("Mismatch at index %d", i)
				}
			}
		})
	}
}

func TestUnknownCompression(t *testing.T) {
	if _, err := NewCompressor("lz4", 1); err == nil {
		t.Error("Expected error for unknown algorithm")
	}
}

func BenchmarkCompressInstants(b *testing.B) {
	comp, _ := NewCompressor(CompressionZstd, 2)
	defer comp.Close()

	now := time.Now().Unix()
	instants := make([]int64, 1000)
	for i := 0; i < 1000; i++ {
		instants[i] = now + int64(i*60)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = comp.CompressInstants(instants)
	}
}

func BenchmarkCompressValues(b *testing.B) {
	comp, _ := NewCompressor(CompressionZstd, 2)
	defer comp.Close()

	values := make([]float64, 1000)
	for i := 0; i < 1000; i++ {
		values[i] = 100.0 + math.Sin(float64(i)*0.1)*10
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = comp.CompressValues(values)
	}
}

func TestForAlgorithm(t *testing.T) {
	zstdComp, err := NewCompressor(CompressionZstd, 3)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer zstdComp.Close()
	snappyComp, err := NewCompressor(CompressionSnappy, 0)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer snappyComp.Close()

	values := []float64{1.5, 2.5, 2.5, -7}
	written, err := zstdComp.CompressValues(values)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}

	reader, err := snappyComp.ForAlgorithm(CompressionZstd)
	if err != nil {
		t.Fatalf("ForAlgorithm failed: %v", err)
	}
	got, err := reader.DecompressValues(written, len(values))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("Value %d: expected %f, got %f", i, values[i], got[i])
		}
	}

	if same, _ := snappyComp.ForAlgorithm(CompressionSnappy); same != snappyComp {
		t.Error("Expected the configured algorithm to return the compressor itself")
	}
	if _, err := snappyComp.ForAlgorithm("lz4"); err == nil {
		t.Error("Expected error for unknown algorithm")
	}
}
