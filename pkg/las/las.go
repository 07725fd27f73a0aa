// Package las decodes ASPRS LAS 1.1 point cloud files.
//
// Only the public header block and point data record formats 0 and 1 are
// understood. Variable length records are skipped, never parsed.
package las

import "errors"

// LAS decoding errors.
var (
	// ErrTruncatedInput means fewer bytes were available than a field needs.
	ErrTruncatedInput = errors.New("truncated LAS data")

	// ErrMalformedHeader means the header had the right length but invalid content.
	ErrMalformedHeader = errors.New("malformed LAS header")

	// ErrUnsupportedFormat means the point data format id is not 0 or 1.
	ErrUnsupportedFormat = errors.New("unsupported LAS point data format")
)

// Signature is the file signature every LAS file starts with.
const Signature = "LASF"
