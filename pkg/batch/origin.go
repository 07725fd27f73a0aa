package batch

import (
	"sync"

	"github.com/seqsense/pcgol/mat"

	"github.com/Faultbox/lascloud/pkg/las"
)

// OriginFromHeader returns the re-centering origin for a dataset whose
// reference file has header h: the midpoint of the declared bounding box,
// narrowed to float32, scaled and ordered the same way points are.
func OriginFromHeader(h *las.Header, scale float32, swapYZ bool) mat.Vec3 {
	c := h.Center()
	t := Transform{Scale: scale, SwapYZ: swapYZ}
	return t.order(float32(c[0]), float32(c[1]), float32(c[2])).Mul(scale)
}

// Origin holds the re-centering origin shared by every file of a dataset.
// It is set at most once; later attempts leave it untouched.
type Origin struct {
	Scale  float32
	SwapYZ bool

	mu     sync.Mutex
	set    bool
	value  mat.Vec3
	source string
}

// NewOrigin returns an unset origin for the given transform settings.
func NewOrigin(scale float32, swapYZ bool) *Origin {
	return &Origin{Scale: scale, SwapYZ: swapYZ}
}

// Resolve sets the origin from the header of source if it has not been set
// yet. It returns the frozen origin and whether this call set it.
func (o *Origin) Resolve(source string, h *las.Header) (mat.Vec3, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.set {
		return o.value, false
	}
	o.value = OriginFromHeader(h, o.Scale, o.SwapYZ)
	o.source = source
	o.set = true
	return o.value, true
}

// Get returns the origin, or false if it has not been resolved.
func (o *Origin) Get() (mat.Vec3, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.set
}

// Source returns the name of the reference file the origin came from.
func (o *Origin) Source() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// Transform returns the point transform centered on the origin.
// The origin must be resolved first.
func (o *Origin) Transform() Transform {
	v, _ := o.Get()
	return Transform{Scale: o.Scale, SwapYZ: o.SwapYZ, Recenter: v}
}
