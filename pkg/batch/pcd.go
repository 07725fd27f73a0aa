package batch

import (
	"encoding/binary"
	"fmt"
	"image/color"
	"io"

	"github.com/seqsense/pcgol/pc"
)

// pcdStride is the byte size of one x y z rgb point.
const pcdStride = 16

// PointCloud converts the batch into a PCD point cloud with x, y, z and a
// packed rgb field.
func (b *Batch) PointCloud() (*pc.PointCloud, error) {
	n := b.Len()
	pp := &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Version:   0.7,
			Fields:    []string{"x", "y", "z", "rgb"},
			Size:      []int{4, 4, 4, 4},
			Type:      []string{"F", "F", "F", "U"},
			Count:     []int{1, 1, 1, 1},
			Width:     n,
			Height:    1,
			Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
		},
		Points: n,
		Data:   make([]byte, n*pcdStride),
	}
	if n == 0 {
		return pp, nil
	}

	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, fmt.Errorf("creating point iterator: %w", err)
	}
	for i, pos := range b.Positions {
		it.SetVec3(pos)
		it.Incr()
		binary.LittleEndian.PutUint32(pp.Data[i*pcdStride+12:], PackRGB(b.Colors[i]))
	}
	return pp, nil
}

// WritePCD writes the batch as a PCD file.
func (b *Batch) WritePCD(w io.Writer) error {
	pp, err := b.PointCloud()
	if err != nil {
		return err
	}
	if err := pc.Marshal(pp, w); err != nil {
		return fmt.Errorf("writing PCD: %w", err)
	}
	return nil
}

// PackRGB packs a color the way PCL stores the rgb field: 0x00RRGGBB.
func PackRGB(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// UnpackRGB is the inverse of PackRGB. Alpha is always opaque.
func UnpackRGB(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}
