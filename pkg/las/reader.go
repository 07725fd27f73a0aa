package las

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// maxPrealloc bounds the points ReadAll allocates up front.
const maxPrealloc = 1 << 16

// Reader streams the point records of a single LAS file.
//
// A Reader owns its source exclusively and is not safe for concurrent use.
// The source is released exactly once: when the stream is exhausted or when
// Close is called, whichever happens first.
type Reader struct {
	src    io.Reader
	closer io.Closer
	header *Header

	decoded   uint32
	exhausted bool
	truncated bool
	closeErr  error
}

// Open opens the LAS file at path and positions it at the first point record.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening LAS file: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// NewReader decodes the header at the start of src and seeks to the point
// data. If src is an io.Closer, the Reader takes ownership of it, including
// on error.
func NewReader(src io.ReadSeeker) (*Reader, error) {
	closer, _ := src.(io.Closer)
	fail := func(err error) (*Reader, error) {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("seeking to header: %w", err))
	}
	header, err := DecodeHeader(src)
	if err != nil {
		return fail(fmt.Errorf("reading header: %w", err))
	}
	if !header.PointDataFormatID.Supported() {
		return fail(fmt.Errorf("%w: %d", ErrUnsupportedFormat, uint8(header.PointDataFormatID)))
	}
	if _, err := src.Seek(int64(header.OffsetToPointData), io.SeekStart); err != nil {
		return fail(fmt.Errorf("seeking to point data: %w", err))
	}

	r := &Reader{
		src:    bufio.NewReaderSize(src, 64*header.RecordLength()),
		closer: closer,
		header: header,
	}
	if header.NumberOfPointRecords == 0 {
		r.exhaust()
	}
	return r, nil
}

// Header returns the decoded file header.
func (r *Reader) Header() *Header {
	return r.header
}

// Decoded returns the number of points successfully decoded so far.
func (r *Reader) Decoded() uint32 {
	return r.decoded
}

// Truncated reports whether the data ended before the declared point count.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Next decodes the next point.
//
// It returns io.EOF once the declared number of points has been read or the
// data runs out. A decode error is returned once; the stream is exhausted
// afterwards and further calls return io.EOF without touching the source.
func (r *Reader) Next() (Point, error) {
	if r.exhausted {
		return Point{}, io.EOF
	}

	p, err := DecodePoint(r.src, r.header)
	if err == io.EOF {
		r.truncated = true
		r.exhaust()
		return Point{}, io.EOF
	}
	if err != nil {
		r.exhaust()
		return Point{}, fmt.Errorf("point %d: %w", r.decoded, err)
	}

	r.decoded++
	if r.decoded >= r.header.NumberOfPointRecords {
		r.exhaust()
	}
	return p, nil
}

// ReadAll decodes every remaining point. On error the points decoded before
// the failure are returned along with it.
func (r *Reader) ReadAll() ([]Point, error) {
	var remaining uint32
	if !r.exhausted {
		remaining = r.header.NumberOfPointRecords - r.decoded
	}
	// The declared count is untrusted; append grows past the cap if needed.
	points := make([]Point, 0, min(remaining, maxPrealloc))
	for {
		p, err := r.Next()
		if err == io.EOF {
			return points, nil
		}
		if err != nil {
			return points, err
		}
		points = append(points, p)
	}
}

// Close releases the source. It is safe to call more than once; every call
// reports the error, if any, from the single release of the source.
func (r *Reader) Close() error {
	r.exhaust()
	return r.closeErr
}

func (r *Reader) exhaust() {
	r.exhausted = true
	if r.closer == nil {
		return
	}
	c := r.closer
	r.closer = nil
	r.closeErr = c.Close()
}
