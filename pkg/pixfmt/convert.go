// SPDX-License-Identifier: GPL-2.0-or-later

package pixfmt

import (
	"fmt"

	"avikit/pkg/mjpeg"
)

// Params describe the frame being converted.
type Params struct {
	Width  int
	Height int

	// BitCount of FormatAVIRGB data, 24 or 16. Zero means 24.
	BitCount int

	// TopDown FormatAVIRGB data is stored first row first.
	TopDown bool

	Quality       int // 1-100, FormatMJPEG only.
	Interlaced    bool
	OddFieldFirst bool
}

func (p Params) codecOptions() mjpeg.Options {
	return mjpeg.Options{
		Quality:       p.Quality,
		Interlaced:    p.Interlaced,
		OddFieldFirst: p.OddFieldFirst,
	}
}

// maxHops any pair of formats is at most two leaf conversions apart.
const maxHops = 2

// Convert converts buf from one format to another and returns the result.
// Converting to the same format returns buf itself. Otherwise buf is
// consumed and the returned Buffer belongs to the caller.
func Convert(buf *Buffer, from, to Format, p Params) (*Buffer, error) {
	if from == to {
		return buf, nil
	}
	if !from.Valid() {
		return nil, fmt.Errorf("%w: from %v", ErrUnsupported, from)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: to %v", ErrUnsupported, to)
	}

	cur := from
	for hop := 0; cur != to; hop++ {
		if hop == maxHops {
			return nil, fmt.Errorf("%w: %v to %v", ErrUnsupported, from, to)
		}
		next := to
		if cur != Pivot && to != Pivot {
			next = Pivot
		}

		out, err := convertLeaf(buf, cur, next, p)
		if err != nil {
			return nil, fmt.Errorf("%v to %v: %w", cur, next, err)
		}
		buf, cur = out, next
	}
	return buf, nil
}

// convertLeaf converts between the pivot and one other format.
func convertLeaf(buf *Buffer, from, to Format, p Params) (*Buffer, error) {
	pix, err := buf.Take()
	if err != nil {
		return nil, err
	}

	var out []byte
	switch {
	case from == FormatAVIRGB:
		out, err = fromAVIRGB(pix, p)
	case to == FormatAVIRGB:
		out, err = toAVIRGB(pix, p)
	case from == FormatRGBA32:
		out, err = fromRGBA32(pix, p)
	case to == FormatRGBA32:
		out, err = toRGBA32(pix, p)
	case from == FormatMJPEG:
		out, err = mjpeg.Decode(pix, p.Width, p.Height, p.codecOptions())
	case to == FormatMJPEG:
		out, err = mjpeg.Encode(pix, p.Width, p.Height, p.codecOptions())
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	return NewBuffer(out), nil
}
