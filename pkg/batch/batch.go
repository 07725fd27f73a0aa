// Package batch splits decoded LAS points into bounded-size groups ready to
// be handed to a renderer.
package batch

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"iter"

	"github.com/seqsense/pcgol/mat"

	"github.com/Faultbox/lascloud/pkg/las"
)

// DefaultLimit is the default number of points per batch.
const DefaultLimit = 65000

// ErrInvalidLimit is returned when the batch capacity is not positive.
var ErrInvalidLimit = errors.New("batch limit must be positive")

// Transform maps a decoded point into render space.
type Transform struct {
	// Scale multiplies every coordinate.
	Scale float32
	// SwapYZ reorders axes to (x, z, y) for Y-up renderers.
	SwapYZ bool
	// Recenter is subtracted after scaling and reordering.
	Recenter mat.Vec3
}

// Apply returns the render-space position of p.
func (t Transform) Apply(p *las.Point) mat.Vec3 {
	return t.order(p.X, p.Y, p.Z).Mul(t.Scale).Sub(t.Recenter)
}

func (t Transform) order(x, y, z float32) mat.Vec3 {
	if t.SwapYZ {
		return mat.Vec3{x, z, y}
	}
	return mat.Vec3{x, y, z}
}

// Batch is a group of at most limit points.
type Batch struct {
	Positions []mat.Vec3
	Colors    []color.RGBA
	// Indices is always 0..Len()-1, independent of where the batch sits in
	// the source sequence.
	Indices []uint32
}

// Len returns the number of points in the batch.
func (b *Batch) Len() int {
	return len(b.Positions)
}

func newBatch(size int) Batch {
	return Batch{
		Positions: make([]mat.Vec3, 0, size),
		Colors:    make([]color.RGBA, 0, size),
		Indices:   make([]uint32, 0, size),
	}
}

func (b *Batch) add(pos mat.Vec3, tag color.RGBA) {
	b.Indices = append(b.Indices, uint32(len(b.Positions)))
	b.Positions = append(b.Positions, pos)
	b.Colors = append(b.Colors, tag)
}

// Count returns the number of batches n points split into: ceil(n / limit).
func Count(n, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if n <= 0 {
		return 0, nil
	}
	return (n + limit - 1) / limit, nil
}

// Batches returns a lazy sequence over the batches of points. The sequence
// can be ranged over any number of times; each pass starts from the first
// batch.
func Batches(points []las.Point, limit int, tf Transform, tag color.RGBA) (iter.Seq[Batch], error) {
	groups, err := Count(len(points), limit)
	if err != nil {
		return nil, err
	}

	return func(yield func(Batch) bool) {
		for g := 0; g < groups; g++ {
			start := g * limit
			// The last group holds the remainder.
			end := min(start+limit, len(points))

			b := newBatch(end - start)
			for i := start; i < end; i++ {
				b.add(tf.Apply(&points[i]), tag)
			}
			if !yield(b) {
				return
			}
		}
	}, nil
}

// Partition splits points into batches of exactly limit points, followed by
// one batch holding the remainder. No points yield no batches.
func Partition(points []las.Point, limit int, tf Transform, tag color.RGBA) ([]Batch, error) {
	seq, err := Batches(points, limit, tf, tag)
	if err != nil {
		return nil, err
	}

	groups, _ := Count(len(points), limit)
	out := make([]Batch, 0, groups)
	for b := range seq {
		out = append(out, b)
	}
	return out, nil
}

// PointSource yields points until io.EOF. *las.Reader implements it.
type PointSource interface {
	Next() (las.Point, error)
}

// PartitionStream pulls points from src and calls emit for every batch as
// soon as it is complete. It returns the number of points consumed.
//
// If src fails, the points read before the failure are still emitted as a
// final short batch and the source error is returned.
func PartitionStream(src PointSource, limit int, tf Transform, tag color.RGBA, emit func(Batch) error) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	var total int
	pending := newBatch(limit)
	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		b := pending
		pending = newBatch(limit)
		return emit(b)
	}

	for {
		p, err := src.Next()
		if err == io.EOF {
			return total, flush()
		}
		if err != nil {
			if ferr := flush(); ferr != nil {
				return total, errors.Join(err, ferr)
			}
			return total, err
		}

		pending.add(tf.Apply(&p), tag)
		total++
		if pending.Len() == limit {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
}
