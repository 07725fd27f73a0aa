// Package testutil builds in-memory LAS fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/lascloud/pkg/las"
)

// RawPoint is a point record with coordinates in stored (unscaled) form.
type RawPoint struct {
	X, Y           int32
	Z              uint32
	Intensity      uint16
	Flags          las.ReturnFlags
	Classification uint8
	ScanAngleRank  int8
	UserData       uint8
	PointSourceID  uint16
	GPSTime        float64
}

// NewHeader returns a valid header for count points of the given format,
// with a 0.01 scale, zero offsets and no variable length records.
func NewHeader(format las.PointFormat, count uint32) *las.Header {
	h := &las.Header{
		SourceID:              7,
		Version:               las.Version{Major: 1, Minor: 1},
		CreationDayOfYear:     32,
		CreationYear:          2016,
		HeaderSize:            las.HeaderBlockSize,
		OffsetToPointData:     las.HeaderBlockSize,
		PointDataFormatID:     format,
		PointDataRecordLength: uint16(format.RecordLength()),
		NumberOfPointRecords:  count,
		ScaleX:                0.01,
		ScaleY:                0.01,
		ScaleZ:                0.01,
	}
	copy(h.Signature[:], las.Signature)
	copy(h.SystemIdentifier[:], "MERGE")
	copy(h.GeneratingSoftware[:], "lascloud testutil")
	h.NumberOfPointsByReturn[0] = count
	return h
}

// EncodeHeader writes the header fields in wire order.
func EncodeHeader(h *las.Header) []byte {
	buf := new(bytes.Buffer)
	le := binary.LittleEndian

	binary.Write(buf, le, h.Signature)
	binary.Write(buf, le, h.SourceID)
	binary.Write(buf, le, h.Reserved)
	binary.Write(buf, le, h.ProjectID.Data1)
	binary.Write(buf, le, h.ProjectID.Data2)
	binary.Write(buf, le, h.ProjectID.Data3)
	binary.Write(buf, le, h.ProjectID.Data4)
	binary.Write(buf, le, h.Version.Major)
	binary.Write(buf, le, h.Version.Minor)
	binary.Write(buf, le, h.SystemIdentifier)
	binary.Write(buf, le, h.GeneratingSoftware)
	binary.Write(buf, le, h.CreationDayOfYear)
	binary.Write(buf, le, h.CreationYear)
	binary.Write(buf, le, h.HeaderSize)
	binary.Write(buf, le, h.OffsetToPointData)
	binary.Write(buf, le, h.NumberOfVariableLengthRecords)
	binary.Write(buf, le, uint8(h.PointDataFormatID))
	binary.Write(buf, le, h.PointDataRecordLength)
	binary.Write(buf, le, h.NumberOfPointRecords)
	binary.Write(buf, le, h.NumberOfPointsByReturn)
	for _, v := range []float64{
		h.ScaleX, h.ScaleY, h.ScaleZ,
		h.OffsetX, h.OffsetY, h.OffsetZ,
		h.MaxX, h.MinX, h.MaxY, h.MinY, h.MaxZ, h.MinZ,
	} {
		binary.Write(buf, le, v)
	}

	return buf.Bytes()
}

// EncodePoint writes one record in the given format.
func EncodePoint(format las.PointFormat, p RawPoint) []byte {
	buf := new(bytes.Buffer)
	le := binary.LittleEndian

	binary.Write(buf, le, p.X)
	binary.Write(buf, le, p.Y)
	binary.Write(buf, le, p.Z)
	binary.Write(buf, le, p.Intensity)
	binary.Write(buf, le, uint8(p.Flags))
	binary.Write(buf, le, p.Classification)
	binary.Write(buf, le, p.ScanAngleRank)
	binary.Write(buf, le, p.UserData)
	binary.Write(buf, le, p.PointSourceID)
	if format.HasGPSTime() {
		binary.Write(buf, le, p.GPSTime)
	}

	return buf.Bytes()
}

// BuildFile assembles a complete LAS file. The gap between the header block
// and OffsetToPointData is zero filled.
func BuildFile(h *las.Header, points []RawPoint) []byte {
	buf := new(bytes.Buffer)
	buf.Write(EncodeHeader(h))
	if pad := int(h.OffsetToPointData) - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	for _, p := range points {
		buf.Write(EncodePoint(h.PointDataFormatID, p))
	}
	return buf.Bytes()
}

// Line returns n points along the x axis, one stored unit apart, with
// distinct intensities and source ids.
func Line(n int) []RawPoint {
	points := make([]RawPoint, n)
	for i := range points {
		points[i] = RawPoint{
			X:             int32(i),
			Y:             int32(2 * i),
			Z:             uint32(3 * i),
			Intensity:     uint16(i % 65536),
			Flags:         las.PackReturnFlags(1, 1, false, false),
			PointSourceID: 7,
			GPSTime:       float64(i) * 0.5,
		}
	}
	return points
}

// WriteFile writes a LAS file built from h and points into dir.
func WriteFile(tb testing.TB, dir, name string, h *las.Header, points []RawPoint) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildFile(h, points), 0644); err != nil {
		tb.Fatalf("writing %s: %v", path, err)
	}
	return path
}
