//go:build ignore

// This program generates small LAS 1.1 sample files for manual testing.
// Run with: go run generate.go
package main

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
)

const headerSize = 227

type sample struct {
	name   string
	format uint8
	count  int
	vlrPad int // bytes between header and point data
}

func main() {
	samples := []sample{
		{"sample_format0.las", 0, 1000, 0},
		{"sample_format1.las", 1, 1000, 54},
	}
	for _, s := range samples {
		if err := os.WriteFile(s.name, build(s), 0644); err != nil {
			panic(err)
		}
	}
}

func build(s sample) []byte {
	recLen := 20
	if s.format == 1 {
		recLen = 28
	}

	le := binary.LittleEndian
	buf := new(bytes.Buffer)
	w := func(v any) { binary.Write(buf, le, v) }

	var name [32]byte
	buf.WriteString("LASF")
	w(uint16(1)) // source id
	w(uint16(0)) // reserved
	w(uint32(0)) // GUID data 1
	w(uint16(0)) // GUID data 2
	w(uint16(0)) // GUID data 3
	w([8]byte{})
	w(uint8(1)) // version major
	w(uint8(1)) // version minor
	copy(name[:], "OTHER")
	w(name)
	name = [32]byte{}
	copy(name[:], "lascloud generate.go")
	w(name)
	w(uint16(100))  // day of year
	w(uint16(2024)) // year
	w(uint16(headerSize))
	w(uint32(headerSize + s.vlrPad))
	w(uint32(0)) // number of VLRs; the padding is opaque
	w(s.format)
	w(uint16(recLen))
	w(uint32(s.count))
	w([5]uint32{uint32(s.count)})
	w([3]float64{0.001, 0.001, 0.001})
	w([3]float64{500000, 4100000, 0})
	// max x, min x, max y, min y, max z, min z
	w([6]float64{500010, 500000, 4100010, 4100000, 50, 0})

	buf.Write(make([]byte, s.vlrPad))

	// A spiral rising through the bounding box.
	for i := 0; i < s.count; i++ {
		t := float64(i) / float64(s.count)
		a := t * 8 * math.Pi
		w(int32(5000 + 5000*t*math.Cos(a)))
		w(int32(5000 + 5000*t*math.Sin(a)))
		w(uint32(50000 * t))
		w(uint16(i % 4096))
		w(uint8(1<<5 | 1<<2)) // return 1 of 1
		w(uint8(2))           // ground
		w(int8(0))
		w(uint8(0))
		w(uint16(1))
		if s.format == 1 {
			w(float64(i) * 0.001)
		}
	}
	return buf.Bytes()
}
