// SPDX-License-Identifier: GPL-2.0-or-later

package mjpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/icza/bitio"
)

// JPEG markers.
const (
	markerDHT  = 0xc4
	markerRST0 = 0xd0
	markerRST7 = 0xd7
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerAPP0 = 0xe0
	markerCOM  = 0xfe
	markerTEM  = 0x01
)

// Sizes of the marker blocks written in front of every frame.
const (
	app0PayloadSize = 14
	comPayloadSize  = 60
)

// Field polarity stored in the AVI1 block.
const (
	polarityProgressive = 0
	polarityFirstField  = 1
	polaritySecondField = 2
)

const comText = "AVI MJPEG"

// segment is one marker segment of a JPEG image.
type segment struct {
	marker byte
	start  int // Offset of the 0xff prefix.
	end    int // Offset after the payload, SOS includes the entropy-coded data.
}

func standalone(marker byte) bool {
	switch {
	case marker == markerSOI, marker == markerEOI, marker == markerTEM:
		return true
	case marker >= markerRST0 && marker <= markerRST7:
		return true
	}
	return false
}

// segmentHeader reads the marker and the length field at pos.
// Length includes the two length bytes and is zero for standalone markers.
func segmentHeader(data []byte, pos int) (byte, int, error) {
	r := bitio.NewReader(bytes.NewReader(data[pos:]))

	prefix := r.TryReadBits(8)
	marker := byte(r.TryReadBits(8))
	if r.TryError != nil {
		return 0, 0, fmt.Errorf("%w: truncated marker at %d", ErrCodec, pos)
	}
	if prefix != 0xff {
		return 0, 0, fmt.Errorf("%w: expected marker at %d", ErrCodec, pos)
	}
	if standalone(marker) {
		return marker, 0, nil
	}

	length := int(r.TryReadBits(16))
	if r.TryError != nil {
		return 0, 0, fmt.Errorf("%w: truncated segment at %d", ErrCodec, pos)
	}
	if length < 2 {
		return 0, 0, fmt.Errorf("%w: invalid segment length %d", ErrCodec, length)
	}
	return marker, length, nil
}

// entropyEnd returns the offset of the first marker after entropy-coded data.
func entropyEnd(data []byte, pos int) int {
	for pos+1 < len(data) {
		if data[pos] != 0xff {
			pos++
			continue
		}
		next := data[pos+1]
		if next != 0 && (next < markerRST0 || next > markerRST7) {
			return pos
		}
		pos += 2
	}
	return len(data)
}

// segments splits the first image in data and returns the offset after its EOI.
func segments(data []byte) ([]segment, int, error) {
	if len(data) < 2 || data[0] != 0xff || data[1] != markerSOI {
		return nil, 0, fmt.Errorf("%w: missing SOI", ErrCodec)
	}
	segs := []segment{{marker: markerSOI, start: 0, end: 2}}

	pos := 2
	for pos < len(data) {
		// Fill bytes.
		for pos+1 < len(data) && data[pos] == 0xff && data[pos+1] == 0xff {
			pos++
		}
		marker, length, err := segmentHeader(data, pos)
		if err != nil {
			return nil, 0, err
		}

		end := pos + 2 + length
		if end > len(data) {
			return nil, 0, fmt.Errorf("%w: segment 0x%x overflows frame", ErrCodec, marker)
		}
		if marker == markerSOS {
			end = entropyEnd(data, end)
		}
		segs = append(segs, segment{marker: marker, start: pos, end: end})
		pos = end

		if marker == markerEOI {
			return segs, pos, nil
		}
	}
	// Tolerate a missing EOI at the end of the frame.
	return segs, len(data), nil
}

func hasSegment(segs []segment, marker byte) bool {
	for _, s := range segs {
		if s.marker == marker {
			return true
		}
	}
	return false
}

// standardTables is the DHT segment with the tables from Annex K of the
// JPEG standard, which is what image/jpeg encodes with.
var standardTables = func() []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil); err != nil {
		panic(err)
	}
	data := buf.Bytes()
	segs, _, err := segments(data)
	if err != nil {
		panic(err)
	}

	var tables []byte
	for _, s := range segs {
		if s.marker == markerDHT {
			tables = append(tables, data[s.start:s.end]...)
		}
	}
	return tables
}()

// insertTables returns the image with the standard Huffman tables placed
// before the first SOS when it carries none.
func insertTables(data []byte) ([]byte, error) {
	segs, end, err := segments(data)
	if err != nil {
		return nil, err
	}
	if hasSegment(segs, markerDHT) {
		return data[:end], nil
	}

	out := make([]byte, 0, end+len(standardTables))
	inserted := false
	for _, s := range segs {
		if s.marker == markerSOS && !inserted {
			out = append(out, standardTables...)
			inserted = true
		}
		out = append(out, data[s.start:s.end]...)
	}
	return out, nil
}

// wrapFrame rewrites the output of image/jpeg for storage in a container.
// Huffman tables are dropped since decoders fall back to the standard ones,
// and the AVI1 and comment blocks are inserted after SOI.
func wrapFrame(data []byte, polarity byte) ([]byte, error) {
	segs, end, err := segments(data)
	if err != nil {
		return nil, err
	}

	out := bytes.NewBuffer(make([]byte, 0, end+4+app0PayloadSize+4+comPayloadSize))
	out.Write(data[:2]) // SOI.
	if err := writeMarkerBlocks(out, polarity); err != nil {
		return nil, err
	}
	for _, s := range segs[1:] {
		if s.marker == markerDHT {
			continue
		}
		out.Write(data[s.start:s.end])
	}
	return out.Bytes(), nil
}

func writeMarkerBlocks(out *bytes.Buffer, polarity byte) error {
	app0 := make([]byte, app0PayloadSize)
	copy(app0, "AVI1")
	app0[4] = polarity

	com := make([]byte, comPayloadSize)
	copy(com, comText)

	w := bitio.NewWriter(out)
	w.TryWriteBits(0xff00|markerAPP0, 16)
	w.TryWriteBits(uint64(2+len(app0)), 16)
	w.TryWrite(app0)
	w.TryWriteBits(0xff00|markerCOM, 16)
	w.TryWriteBits(uint64(2+len(com)), 16)
	w.TryWrite(com)
	if w.TryError != nil {
		return w.TryError
	}
	return w.Close()
}

// polarity returns the field polarity of the AVI1 block, if present.
func polarity(data []byte) (byte, bool) {
	segs, _, err := segments(data)
	if err != nil {
		return 0, false
	}
	for _, s := range segs {
		if s.marker != markerAPP0 || s.end-s.start < 4+5 {
			continue
		}
		payload := data[s.start+4 : s.end]
		if string(payload[:4]) == "AVI1" {
			return payload[4], true
		}
	}
	return 0, false
}
