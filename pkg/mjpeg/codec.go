// SPDX-License-Identifier: GPL-2.0-or-later

// Package mjpeg encodes and decodes the motion JPEG frames stored in AVI files.
package mjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// Errors.
var (
	ErrCodec      = errors.New("jpeg codec")
	ErrDimensions = errors.New("invalid dimensions")
)

// DefaultQuality used when Options.Quality is zero.
const DefaultQuality = 90

// Options codec options.
type Options struct {
	Quality int // 1-100.

	// Interlaced frames are stored as two fields, each as its own image.
	Interlaced    bool
	OddFieldFirst bool
}

func (o Options) quality() int {
	switch {
	case o.Quality <= 0:
		return DefaultQuality
	case o.Quality > 100:
		return 100
	}
	return o.Quality
}

// padTo16 rounds n up to the next multiple of 16.
func padTo16(n int) int {
	return (n + 15) &^ 15
}

func checkDimensions(pixLen, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrDimensions, width, height)
	}
	if pixLen < width*height*3 {
		return fmt.Errorf("%w: buffer %d < %dx%dx3", ErrDimensions, pixLen, width, height)
	}
	return nil
}

// Encode compresses a top-down RGB24 image.
func Encode(rgb []byte, width, height int, opts Options) ([]byte, error) {
	if err := checkDimensions(len(rgb), width, height); err != nil {
		return nil, err
	}
	e := &encoder{quality: opts.quality()}

	if !opts.Interlaced {
		return e.encode(rgb, width, height, polarityProgressive)
	}

	if height < 2 {
		return nil, fmt.Errorf("%w: interlaced frame needs two rows", ErrDimensions)
	}
	fields := Deinterlace(rgb, width, height, 3, opts.OddFieldFirst)
	firstRows := firstFieldRows(height, opts.OddFieldFirst)
	split := firstRows * width * 3

	first, err := e.encode(fields[:split], width, firstRows, polarityFirstField)
	if err != nil {
		return nil, fmt.Errorf("first field: %w", err)
	}
	second, err := e.encode(fields[split:], width, height-firstRows, polaritySecondField)
	if err != nil {
		return nil, fmt.Errorf("second field: %w", err)
	}
	return append(first, second...), nil
}

// encoder holds the state of one Encode call.
type encoder struct {
	quality int
}

func (e *encoder) encode(rgb []byte, width, height int, polarity byte) ([]byte, error) {
	img := padImage(rgb, width, height)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	out, err := wrapFrame(buf.Bytes(), polarity)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// padImage copies the image into one with both sides rounded up to
// multiples of 16, replicating the last column and row.
func padImage(rgb []byte, width, height int) *RGB24 {
	img := NewRGB24(image.Rect(0, 0, padTo16(width), padTo16(height)))
	rowSize := width * 3
	for y := 0; y < img.Rect.Dy(); y++ {
		srcY := y
		if srcY >= height {
			srcY = height - 1
		}
		row := img.Pix[y*img.Stride : (y+1)*img.Stride]
		copy(row, rgb[srcY*rowSize:(srcY+1)*rowSize])

		last := row[rowSize-3 : rowSize]
		for x := rowSize; x < len(row); x += 3 {
			copy(row[x:x+3], last)
		}
	}
	return img
}

// Decode decompresses a frame into a top-down RGB24 image of the given size.
// A frame holds two fields if its first image is marked as the first field
// or is shorter than height.
func Decode(data []byte, width, height int, opts Options) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimensions, width, height)
	}
	d := &decoder{data: data}

	first, err := d.next()
	if err != nil {
		return nil, err
	}
	p, ok := polarity(data)
	twoFields := (ok && p == polarityFirstField) || first.Bounds().Dy() < height
	if !twoFields {
		return crop(first, width, height), nil
	}

	second, err := d.next()
	if err != nil {
		return nil, fmt.Errorf("second field: %w", err)
	}
	firstRows := firstFieldRows(height, opts.OddFieldFirst)

	fields := make([]byte, 0, width*height*3)
	fields = append(fields, crop(first, width, firstRows)...)
	fields = append(fields, crop(second, width, height-firstRows)...)
	return Interlace(fields, width, height, 3, opts.OddFieldFirst), nil
}

// decoder holds the state of one Decode call. pos is the number of
// bytes consumed by the images decoded so far.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) next() (image.Image, error) {
	if d.pos >= len(d.data) {
		return nil, fmt.Errorf("%w: no image data", ErrCodec)
	}
	_, end, err := segments(d.data[d.pos:])
	if err != nil {
		return nil, err
	}
	frame, err := insertTables(d.data[d.pos : d.pos+end])
	if err != nil {
		return nil, err
	}
	d.pos += end

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return img, nil
}

// crop returns the top-left width x height pixels of img as RGB24.
// Missing pixels repeat the nearest edge.
func crop(img image.Image, width, height int) []byte {
	b := img.Bounds()
	out := make([]byte, width*height*3)
	pos := 0
	for y := 0; y < height; y++ {
		sy := b.Min.Y + clamp(y, b.Dy())
		for x := 0; x < width; x++ {
			sx := b.Min.X + clamp(x, b.Dx())
			c := pixelAt(img, sx, sy)
			out[pos], out[pos+1], out[pos+2] = c.R, c.G, c.B
			pos += 3
		}
	}
	return out
}

func clamp(v, size int) int {
	if v >= size {
		return size - 1
	}
	return v
}

func pixelAt(img image.Image, x, y int) RGB {
	switch v := img.(type) {
	case *image.YCbCr:
		c := v.YCbCrAt(x, y)
		r, g, b := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
		return RGB{r, g, b}
	case *image.Gray:
		g := v.GrayAt(x, y).Y
		return RGB{g, g, g}
	}
	return RGB24Model.Convert(img.At(x, y)).(RGB)
}
