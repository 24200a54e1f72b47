// SPDX-License-Identifier: GPL-2.0-or-later

// Package pixfmt converts frames between the pixel formats stored in AVI files.
package pixfmt

import (
	"errors"
	"fmt"
)

// Format pixel format of a frame.
type Format uint8

// Formats.
const (
	FormatNone Format = iota

	// FormatRGB24 top-down R, G, B. Every conversion passes through it.
	FormatRGB24

	// FormatRGBA32 top-down R, G, B, A.
	FormatRGBA32

	// FormatAVIRGB device independent bitmap, bottom-up B, G, R with rows
	// padded to 4 bytes. 16-bit sources are 5-5-5 packed.
	FormatAVIRGB

	// FormatMJPEG one or two JPEG images per frame.
	FormatMJPEG
)

// Pivot the format through which conversions are routed.
const Pivot = FormatRGB24

func (f Format) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatRGB24:
		return "rgb24"
	case FormatRGBA32:
		return "rgba32"
	case FormatAVIRGB:
		return "avirgb"
	case FormatMJPEG:
		return "mjpeg"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	for f := FormatRGB24; f <= FormatMJPEG; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return FormatNone, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// Compressed reports if the format is stored through a codec.
func (f Format) Compressed() bool {
	return f == FormatMJPEG
}

// Valid reports if the format can be converted.
func (f Format) Valid() bool {
	return f >= FormatRGB24 && f <= FormatMJPEG
}

// Errors.
var (
	ErrUnsupported = errors.New("unsupported pixel format")
	ErrConsumed    = errors.New("buffer already consumed")
	ErrShortBuffer = errors.New("buffer too short")
)

// Buffer owns the pixels of one frame. Passing a Buffer to a function that
// consumes it moves the pixels, the Buffer can not be used afterwards.
type Buffer struct {
	pix      []byte
	consumed bool
}

// NewBuffer returns a Buffer that owns pix.
func NewBuffer(pix []byte) *Buffer {
	return &Buffer{pix: pix}
}

// Bytes returns the pixels, nil if the buffer is consumed.
func (b *Buffer) Bytes() []byte {
	return b.pix
}

// Len .
func (b *Buffer) Len() int {
	return len(b.pix)
}

// Consumed reports if ownership of the pixels has moved.
func (b *Buffer) Consumed() bool {
	return b.consumed
}

// Take moves the pixels out of the buffer.
func (b *Buffer) Take() ([]byte, error) {
	if b == nil || b.consumed {
		return nil, ErrConsumed
	}
	pix := b.pix
	b.pix = nil
	b.consumed = true
	return pix, nil
}
