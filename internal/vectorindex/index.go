// Package vectorindex implements an exact, append-only L2 nearest-neighbour index.
//
// Vectors are stored contiguously in insertion order and addressed by position.
// Search is exhaustive, so results are exact for any index size.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidDimension is returned when an index is created with a dimension
	// outside 1..MaxDimension.
	ErrInvalidDimension = errors.New("index dimension out of range")
)

// Result is a single search hit.
type Result struct {
	// Position is the insertion index of the stored vector.
	Position int
	// Distance is the squared euclidean distance to the query.
	Distance float32
}

// FlatL2 is not safe for concurrent use; callers serialise access.
type FlatL2 struct {
	dim  int
	data []float32
}

// MaxDimension bounds the vector length accepted by New and by decoding.
const MaxDimension = 1 << 16

// New creates an empty index for vectors of length dim.
func New(dim int) (*FlatL2, error) {
	if dim < 1 || dim > MaxDimension {
		return nil, ErrInvalidDimension
	}
	return &FlatL2{dim: dim}, nil
}

// Dimension returns the vector length accepted by the index.
func (ix *FlatL2) Dimension() int {
	return ix.dim
}

// Count returns the number of stored vectors.
func (ix *FlatL2) Count() int {
	return len(ix.data) / ix.dim
}

// Add appends vec; its position is the previous Count.
func (ix *FlatL2) Add(vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	ix.data = append(ix.data, vec...)
	return nil
}

// Vector returns a copy of the vector stored at position.
func (ix *FlatL2) Vector(position int) ([]float32, bool) {
	if position < 0 || position >= ix.Count() {
		return nil, false
	}
	start := position * ix.dim
	return slices.Clone(ix.data[start : start+ix.dim]), true
}

// Search returns up to k stored vectors nearest to query, closest first.
// Equal distances are ordered by ascending position.
func (ix *FlatL2) Search(query []float32, k int) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	count := ix.Count()
	if count == 0 {
		return []Result{}, nil
	}

	results := make([]Result, count)
	for pos := 0; pos < count; pos++ {
		results[pos] = Result{Position: pos, Distance: ix.distance(pos, query)}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})

	if k < count {
		results = results[:k]
	}
	return results, nil
}

func (ix *FlatL2) distance(position int, query []float32) float32 {
	stored := ix.data[position*ix.dim : (position+1)*ix.dim]
	var sum float64
	for i, v := range stored {
		d := float64(v) - float64(query[i])
		sum += d * d
	}
	if math.IsNaN(sum) {
		return float32(math.Inf(1))
	}
	return float32(sum)
}
