package las

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// HeaderBlockSize is the number of bytes the public header fields occupy.
const HeaderBlockSize = 227

// Version represents the LAS specification version a file was written for.
type Version struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ProjectGUID identifies the project a file belongs to.
type ProjectGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// String formats the GUID in the usual 8-4-4-4-12 form.
func (g ProjectGUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x", g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:])
}

// Header is the public header block of a LAS file.
//
// A Header is only handed out once every field has been read and validated.
type Header struct {
	Signature                     [4]byte
	SourceID                      uint16
	Reserved                      uint16
	ProjectID                     ProjectGUID
	Version                       Version
	SystemIdentifier              [32]byte
	GeneratingSoftware            [32]byte
	CreationDayOfYear             uint16
	CreationYear                  uint16
	HeaderSize                    uint16
	OffsetToPointData             uint32
	NumberOfVariableLengthRecords uint32
	PointDataFormatID             PointFormat
	PointDataRecordLength         uint16
	NumberOfPointRecords          uint32
	NumberOfPointsByReturn        [5]uint32

	// Real coordinate = stored integer * scale + offset, per axis.
	ScaleX, ScaleY, ScaleZ    float64
	OffsetX, OffsetY, OffsetZ float64

	// Declared extents of the point data, already in real coordinates.
	MaxX, MinX float64
	MaxY, MinY float64
	MaxZ, MinZ float64
}

// fieldReader reads little-endian fields in order and keeps the first error.
type fieldReader struct {
	r   io.Reader
	err error
}

func (fr *fieldReader) read(name string, v any) {
	if fr.err != nil {
		return
	}
	if err := binary.Read(fr.r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			fr.err = fmt.Errorf("%w: reading %s", ErrTruncatedInput, name)
			return
		}
		fr.err = fmt.Errorf("reading %s: %w", name, err)
	}
}

// DecodeHeader reads the public header block from r.
// Exactly HeaderBlockSize bytes are consumed on success.
func DecodeHeader(r io.Reader) (*Header, error) {
	var h Header
	fr := &fieldReader{r: r}

	fr.read("signature", &h.Signature)
	fr.read("file source id", &h.SourceID)
	fr.read("reserved", &h.Reserved)
	fr.read("project id data 1", &h.ProjectID.Data1)
	fr.read("project id data 2", &h.ProjectID.Data2)
	fr.read("project id data 3", &h.ProjectID.Data3)
	fr.read("project id data 4", &h.ProjectID.Data4)
	fr.read("version major", &h.Version.Major)
	fr.read("version minor", &h.Version.Minor)
	fr.read("system identifier", &h.SystemIdentifier)
	fr.read("generating software", &h.GeneratingSoftware)
	fr.read("creation day of year", &h.CreationDayOfYear)
	fr.read("creation year", &h.CreationYear)
	fr.read("header size", &h.HeaderSize)
	fr.read("offset to point data", &h.OffsetToPointData)
	fr.read("number of variable length records", &h.NumberOfVariableLengthRecords)
	fr.read("point data format id", &h.PointDataFormatID)
	fr.read("point data record length", &h.PointDataRecordLength)
	fr.read("number of point records", &h.NumberOfPointRecords)
	fr.read("number of points by return", &h.NumberOfPointsByReturn)
	fr.read("x scale factor", &h.ScaleX)
	fr.read("y scale factor", &h.ScaleY)
	fr.read("z scale factor", &h.ScaleZ)
	fr.read("x offset", &h.OffsetX)
	fr.read("y offset", &h.OffsetY)
	fr.read("z offset", &h.OffsetZ)
	fr.read("max x", &h.MaxX)
	fr.read("min x", &h.MinX)
	fr.read("max y", &h.MaxY)
	fr.read("min y", &h.MinY)
	fr.read("max z", &h.MaxZ)
	fr.read("min z", &h.MinZ)

	if fr.err != nil {
		return nil, fr.err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

// ParseHeader parses a header from raw bytes.
func ParseHeader(data []byte) (*Header, error) {
	return DecodeHeader(bytes.NewReader(data))
}

// ReadHeaderFile reads only the header of the LAS file at path.
func ReadHeaderFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening LAS file: %w", err)
	}
	defer f.Close()
	return DecodeHeader(f)
}

// Validate checks the invariants every LAS header must satisfy.
func (h *Header) Validate() error {
	if string(h.Signature[:]) != Signature {
		return fmt.Errorf("%w: signature %q, expected %q", ErrMalformedHeader, h.Signature[:], Signature)
	}
	if h.Reserved != 0 {
		return fmt.Errorf("%w: reserved field is %d, expected 0", ErrMalformedHeader, h.Reserved)
	}
	if h.OffsetToPointData < uint32(h.HeaderSize) {
		return fmt.Errorf("%w: point data offset %d is inside the %d byte header",
			ErrMalformedHeader, h.OffsetToPointData, h.HeaderSize)
	}
	return nil
}

// SystemID returns the system identifier without NUL padding.
func (h *Header) SystemID() string {
	return headerText(h.SystemIdentifier[:])
}

// Software returns the generating software without NUL padding.
func (h *Header) Software() string {
	return headerText(h.GeneratingSoftware[:])
}

// CreationDate returns the file creation date.
// Returns false if the day or year was left unset.
func (h *Header) CreationDate() (time.Time, bool) {
	if h.CreationYear == 0 || h.CreationDayOfYear == 0 {
		return time.Time{}, false
	}
	// Day 1 is January 1st; time.Date normalizes the overflow.
	return time.Date(int(h.CreationYear), time.January, int(h.CreationDayOfYear), 0, 0, 0, 0, time.UTC), true
}

// Center returns the midpoint of the declared bounding box.
func (h *Header) Center() [3]float64 {
	return [3]float64{
		(h.MaxX-h.MinX)/2 + h.MinX,
		(h.MaxY-h.MinY)/2 + h.MinY,
		(h.MaxZ-h.MinZ)/2 + h.MinZ,
	}
}

// RecordLength returns the number of bytes decoded per point record.
// PointDataRecordLength is advisory and not consulted.
func (h *Header) RecordLength() int {
	return h.PointDataFormatID.RecordLength()
}

// Scaled applies the header's scale and offset to stored coordinates.
// Z is stored unsigned while X and Y are signed.
func (h *Header) Scaled(x, y int32, z uint32) (float64, float64, float64) {
	return float64(x)*h.ScaleX + h.OffsetX,
		float64(y)*h.ScaleY + h.OffsetY,
		float64(z)*h.ScaleZ + h.OffsetZ
}

// headerText decodes a NUL padded text field. The format asks for ASCII,
// but some writers emit Windows-1252; those bytes are converted to UTF-8.
func headerText(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	b = bytes.TrimRight(b, " ")
	if utf8.Valid(b) {
		return string(b)
	}
	if out, err := charmap.Windows1252.NewDecoder().Bytes(b); err == nil {
		return string(out)
	}
	return string(b)
}
