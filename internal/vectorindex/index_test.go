package vectorindex

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustIndex(t *testing.T, dim int, vecs ...[]float32) *FlatL2 {
	t.Helper()
	ix, err := New(dim)
	require.NoError(t, err)
	for _, v := range vecs {
		require.NoError(t, ix.Add(v))
	}
	return ix
}

func positions(results []Result) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.Position
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidDimension)
	_, err = New(MaxDimension + 1)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	ix, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Dimension())
	assert.Equal(t, 0, ix.Count())
}

func TestAdd(t *testing.T) {
	ix := mustIndex(t, 2, []float32{1, 2})
	assert.Equal(t, 1, ix.Count())

	err := ix.Add([]float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, ix.Count(), "rejected vector must not be stored")

	v, ok := ix.Vector(0)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)
	_, ok = ix.Vector(1)
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	ix := mustIndex(t, 2,
		[]float32{0, 0},
		[]float32{10, 10},
		[]float32{1, 1},
		[]float32{5, 5},
	)

	tests := []struct {
		name  string
		query []float32
		k     int
		want  []int
	}{
		{"nearest first", []float32{0.9, 0.9}, 4, []int{2, 0, 3, 1}},
		{"k smaller than count", []float32{9, 9}, 2, []int{1, 3}},
		{"k larger than count", []float32{0, 0}, 10, []int{0, 2, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := ix.Search(tt.query, tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.want, positions(results))
			for i := 1; i < len(results); i++ {
				assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
			}
		})
	}
}

func TestSearchDistanceIsSquaredL2(t *testing.T) {
	ix := mustIndex(t, 2, []float32{3, 4})
	results, err := ix.Search([]float32{0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 25.0, results[0].Distance, 1e-6)
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	zero := []float32{0, 0, 0}
	ix := mustIndex(t, 3, zero, zero, zero)

	results, err := ix.Search([]float32{1, 1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, positions(results))
}

func TestSearchErrors(t *testing.T) {
	ix := mustIndex(t, 2)

	results, err := ix.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = ix.Search([]float32{0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ix.Search([]float32{0, 0}, 0)
	assert.Error(t, err)
}

func TestBinaryRoundTrip(t *testing.T) {
	ix := mustIndex(t, 3,
		[]float32{0.1, -0.2, 0.3},
		[]float32{0, 0, 0},
		[]float32{1e-7, 42, -3.5},
	)

	data, err := ix.MarshalBinary()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ix.Dimension(), decoded.Dimension())
	assert.Equal(t, ix.Count(), decoded.Count())

	query := []float32{0.5, 0.5, 0.5}
	want, err := ix.Search(query, 3)
	require.NoError(t, err)
	got, err := decoded.Search(query, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEmptyRoundTrip(t *testing.T) {
	ix := mustIndex(t, 384)
	data, err := ix.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, headerSize)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 384, decoded.Dimension())
	assert.Equal(t, 0, decoded.Count())
}

func TestDecodeCorrupt(t *testing.T) {
	valid, err := mustIndex(t, 2, []float32{1, 2}).MarshalBinary()
	require.NoError(t, err)

	badMagic := append([]byte{}, valid...)
	badMagic[0] = 'X'

	badVersion := append([]byte{}, valid...)
	badVersion[4] = 9

	tests := map[string][]byte{
		"empty":           {},
		"short header":    valid[:5],
		"bad magic":       badMagic,
		"bad version":     badVersion,
		"truncated":       valid[:len(valid)-1],
		"extra bytes":     append(append([]byte{}, valid...), 0),
		"zero dim":        header(0, 0),
		"dim over max":    header(MaxDimension+1, 0),
		"count overflows": header(2, math.MaxUint32),
		"product wraps":   header(1<<31, 1<<31),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrCorruptIndex)
		})
	}
}

// header builds an index header with a valid magic and version and no payload.
func header(dim, count uint32) []byte {
	data := make([]byte, headerSize)
	copy(data, magic[:])
	binary.LittleEndian.PutUint16(data[4:6], formatVersion)
	binary.LittleEndian.PutUint32(data[6:10], dim)
	binary.LittleEndian.PutUint32(data[10:14], count)
	return data
}
