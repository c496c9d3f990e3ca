package vectorindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var magic = [4]byte{'F', 'L', '2', 'X'}

const (
	formatVersion uint16 = 1
	headerSize           = 4 + 2 + 4 + 4
)

// ErrCorruptIndex is returned when serialised index bytes cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt index data")

// MarshalBinary encodes the index as
// magic | version(u16) | dimension(u32) | count(u32) | count*dimension float32,
// all little-endian.
func (ix *FlatL2) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+4*len(ix.data)))
	buf.Write(magic[:])

	header := make([]byte, headerSize-4)
	binary.LittleEndian.PutUint16(header[0:2], formatVersion)
	binary.LittleEndian.PutUint32(header[2:6], uint32(ix.dim))   //nolint:gosec // G115: dimension is small and positive
	binary.LittleEndian.PutUint32(header[6:10], uint32(ix.Count())) //nolint:gosec // G115: count bounded by memory
	buf.Write(header)

	word := make([]byte, 4)
	for _, v := range ix.data {
		binary.LittleEndian.PutUint32(word, math.Float32bits(v))
		buf.Write(word)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the index contents with the decoded data.
func (ix *FlatL2) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptIndex, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}

	dim := binary.LittleEndian.Uint32(data[6:10])
	count := binary.LittleEndian.Uint32(data[10:14])
	if dim < 1 || dim > MaxDimension {
		return fmt.Errorf("%w: dimension %d", ErrCorruptIndex, dim)
	}

	// dim is bounded, so the product fits in a uint64
	payload := data[headerSize:]
	want := 4 * uint64(dim) * uint64(count)
	if uint64(len(payload)) != want {
		return fmt.Errorf("%w: expected %d vector bytes, got %d", ErrCorruptIndex, want, len(payload))
	}

	values := make([]float32, len(payload)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}

	ix.dim = int(dim)
	ix.data = values
	return nil
}

// Decode builds a new index from MarshalBinary output.
func Decode(data []byte) (*FlatL2, error) {
	ix := &FlatL2{}
	if err := ix.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return ix, nil
}
