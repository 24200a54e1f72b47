// SPDX-License-Identifier: GPL-2.0-or-later

package pixfmt

import (
	"encoding/binary"
	"fmt"
)

func checkSize(pix []byte, need int) error {
	if len(pix) < need {
		return fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(pix), need)
	}
	return nil
}

func checkDimensions(p Params) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrUnsupported, p.Width, p.Height)
	}
	return nil
}

// dibStride returns the size of a bitmap row, rows are padded to 4 bytes.
func dibStride(width, bitCount int) int {
	return (width*bitCount/8 + 3) &^ 3
}

// dibRow returns the index of the stored row that holds image row y.
func dibRow(y int, p Params) int {
	if p.TopDown {
		return y
	}
	return p.Height - 1 - y
}

func fromAVIRGB(pix []byte, p Params) ([]byte, error) {
	if err := checkDimensions(p); err != nil {
		return nil, err
	}
	bitCount := p.BitCount
	if bitCount == 0 {
		bitCount = 24
	}
	if bitCount != 24 && bitCount != 16 {
		return nil, fmt.Errorf("%w: %d bits per pixel", ErrUnsupported, bitCount)
	}

	stride := dibStride(p.Width, bitCount)
	if err := checkSize(pix, stride*p.Height); err != nil {
		return nil, err
	}

	out := make([]byte, p.Width*p.Height*3)
	pos := 0
	for y := 0; y < p.Height; y++ {
		row := pix[dibRow(y, p)*stride:]
		for x := 0; x < p.Width; x++ {
			if bitCount == 16 {
				out[pos], out[pos+1], out[pos+2] = unpack555(binary.LittleEndian.Uint16(row[x*2:]))
			} else {
				out[pos], out[pos+1], out[pos+2] = row[x*3+2], row[x*3+1], row[x*3]
			}
			pos += 3
		}
	}
	return out, nil
}

// unpack555 expands a x-R5-G5-B5 pixel to 8 bits per channel.
func unpack555(v uint16) (r, g, b byte) {
	expand := func(c uint16) byte {
		c &= 0x1f
		return byte(c<<3 | c>>2)
	}
	return expand(v >> 10), expand(v >> 5), expand(v)
}

func toAVIRGB(pix []byte, p Params) ([]byte, error) {
	if err := checkDimensions(p); err != nil {
		return nil, err
	}
	if err := checkSize(pix, p.Width*p.Height*3); err != nil {
		return nil, err
	}

	stride := dibStride(p.Width, 24)
	out := make([]byte, stride*p.Height)
	pos := 0
	for y := 0; y < p.Height; y++ {
		row := out[dibRow(y, p)*stride:]
		for x := 0; x < p.Width; x++ {
			row[x*3], row[x*3+1], row[x*3+2] = pix[pos+2], pix[pos+1], pix[pos]
			pos += 3
		}
	}
	return out, nil
}

func fromRGBA32(pix []byte, p Params) ([]byte, error) {
	if err := checkDimensions(p); err != nil {
		return nil, err
	}
	n := p.Width * p.Height
	if err := checkSize(pix, n*4); err != nil {
		return nil, err
	}

	out := make([]byte, n*3)
	for i := 0; i < n; i++ {
		copy(out[i*3:i*3+3], pix[i*4:i*4+3])
	}
	return out, nil
}

func toRGBA32(pix []byte, p Params) ([]byte, error) {
	if err := checkDimensions(p); err != nil {
		return nil, err
	}
	n := p.Width * p.Height
	if err := checkSize(pix, n*3); err != nil {
		return nil, err
	}

	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		copy(out[i*4:i*4+3], pix[i*3:i*3+3])
		out[i*4+3] = 0xff
	}
	return out, nil
}
