package las

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// PointFormat identifies a point data record layout.
type PointFormat uint8

// Supported point data record formats.
const (
	PointFormat0 PointFormat = 0 // Core fields
	PointFormat1 PointFormat = 1 // Core fields plus GPS time
)

// Record sizes in bytes.
const (
	pointFormat0Size = 20
	pointFormat1Size = pointFormat0Size + 8
)

// String returns a human-readable format name.
func (f PointFormat) String() string {
	switch f {
	case PointFormat0:
		return "Format0"
	case PointFormat1:
		return "Format1"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// Supported returns true if records of this format can be decoded.
func (f PointFormat) Supported() bool {
	return f == PointFormat0 || f == PointFormat1
}

// RecordLength returns the record size for the format, or 0 if unsupported.
func (f PointFormat) RecordLength() int {
	switch f {
	case PointFormat0:
		return pointFormat0Size
	case PointFormat1:
		return pointFormat1Size
	default:
		return 0
	}
}

// HasGPSTime returns true if records of this format carry a timestamp.
func (f PointFormat) HasGPSTime() bool {
	return f == PointFormat1
}

// ReturnFlags is the packed return byte of a point record.
//
//	bit 0    edge of flight line
//	bit 1    scan direction
//	bits 2-4 number of returns
//	bits 5-7 return number
type ReturnFlags uint8

// EdgeOfFlightLine reports whether the point is at the end of a scan line.
func (f ReturnFlags) EdgeOfFlightLine() bool {
	return f&0x01 != 0
}

// ScanDirection reports a positive scan direction.
func (f ReturnFlags) ScanDirection() bool {
	return f&0x02 != 0
}

// NumberOfReturns returns the total number of returns for the pulse.
func (f ReturnFlags) NumberOfReturns() uint8 {
	return uint8(f&0x1C) >> 2
}

// ReturnNumber returns the return number of the point within its pulse.
func (f ReturnFlags) ReturnNumber() uint8 {
	return uint8(f&0xE0) >> 5
}

// PackReturnFlags builds a packed return byte. Values above 7 are masked.
func PackReturnFlags(returnNumber, numberOfReturns uint8, scanDirection, edgeOfFlightLine bool) ReturnFlags {
	f := ReturnFlags(returnNumber&0x07)<<5 | ReturnFlags(numberOfReturns&0x07)<<2
	if scanDirection {
		f |= 0x02
	}
	if edgeOfFlightLine {
		f |= 0x01
	}
	return f
}

// Point is a decoded point record of format 0 or 1.
type Point struct {
	// Real coordinates, narrowed to float32 after scaling.
	X, Y, Z float32

	Intensity      uint16
	Flags          ReturnFlags
	Classification uint8
	ScanAngleRank  int8
	UserData       uint8
	PointSourceID  uint16

	// Format is the record layout the point was decoded from.
	Format PointFormat
	// GPSTime is only meaningful for PointFormat1.
	GPSTime float64
}

// Time returns the GPS time of the point, if its format carries one.
func (p *Point) Time() (float64, bool) {
	if !p.Format.HasGPSTime() {
		return 0, false
	}
	return p.GPSTime, true
}

// DecodePoint reads exactly one point record from r using the layout and
// transform of h.
//
// io.EOF is returned when no bytes of the record were available; a partially
// available record is ErrTruncatedInput.
func DecodePoint(r io.Reader, h *Header) (Point, error) {
	format := h.PointDataFormatID
	if !format.Supported() {
		return Point{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, uint8(format))
	}

	var buf [pointFormat1Size]byte
	rec := buf[:format.RecordLength()]
	if n, err := io.ReadFull(r, rec); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return Point{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Point{}, fmt.Errorf("%w: point record has %d of %d bytes", ErrTruncatedInput, n, len(rec))
		default:
			return Point{}, fmt.Errorf("reading point record: %w", err)
		}
	}
	return decodeRecord(rec, h), nil
}

// decodeRecord decodes a complete record of h's format.
func decodeRecord(rec []byte, h *Header) Point {
	le := binary.LittleEndian

	x, y, z := h.Scaled(
		int32(le.Uint32(rec[0:4])),
		int32(le.Uint32(rec[4:8])),
		le.Uint32(rec[8:12]),
	)

	p := Point{
		X:              float32(x),
		Y:              float32(y),
		Z:              float32(z),
		Intensity:      le.Uint16(rec[12:14]),
		Flags:          ReturnFlags(rec[14]),
		Classification: rec[15],
		ScanAngleRank:  int8(rec[16]),
		UserData:       rec[17],
		PointSourceID:  le.Uint16(rec[18:20]),
		Format:         h.PointDataFormatID,
	}
	if p.Format.HasGPSTime() {
		p.GPSTime = math.Float64frombits(le.Uint64(rec[20:28]))
	}
	return p
}
