// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"

	"avikit/pkg/avi"
	"avikit/pkg/config"
	"avikit/pkg/log"
	"avikit/pkg/pixfmt"
)

// ErrNoVideo input has no video stream.
var ErrNoVideo = errors.New("no video stream")

type setting struct {
	opt   avi.Option
	value float64
}

// recode copies the first video stream of a movie into a new movie
// encoded as configured. It returns the number of frames written.
func recode(inPath, outPath string, cfg *config.Config, logger *log.Logger) (int, error) {
	src, err := avi.Open(inPath, logger)
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	stream := -1
	for i, s := range src.Streams() {
		if s.Format != pixfmt.FormatNone {
			stream = i
			break
		}
	}
	if stream == -1 {
		return 0, ErrNoVideo
	}
	in := src.Params(stream)

	format, err := cfg.PixelFormat()
	if err != nil {
		return 0, err
	}
	dst, err := avi.Create(outPath, logger, format)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer dst.Close()

	width, height := in.Width, in.Height
	if cfg.Width != 0 {
		width = cfg.Width
	}
	if cfg.Height != 0 {
		height = cfg.Height
	}
	fps := cfg.FrameRate
	if fps == 0 {
		fps, _ = src.Option(avi.OptionFrameRate)
	}

	options := []setting{
		{avi.OptionWidth, float64(width)},
		{avi.OptionHeight, float64(height)},
		{avi.OptionQuality, float64(cfg.Quality)},
		{avi.OptionInterlaced, boolValue(cfg.Interlaced)},
		{avi.OptionOddFieldFirst, boolValue(cfg.OddFieldFirst)},
	}
	if fps > 0 {
		options = append(options, setting{avi.OptionFrameRate, fps})
	}
	for _, o := range options {
		if err := dst.SetOption(o.opt, o.value); err != nil {
			return 0, err
		}
	}

	written := 0
	for i := 0; i < src.FrameCount(stream); i++ {
		buf, err := src.ReadFrame(pixfmt.FormatRGB24, i, stream)
		if errors.Is(err, avi.ErrNotFound) {
			logger.Warn().Src("recode").File(inPath).Msgf("frame %d has no data", i)
			continue
		}
		if err != nil {
			return written, err
		}

		if width != in.Width || height != in.Height {
			if buf, err = fit(buf, in.Width, in.Height, width, height); err != nil {
				return written, err
			}
		}
		if err := dst.WriteFrame(i, avi.Frame{Format: pixfmt.FormatRGB24, Buf: buf}); err != nil {
			return written, err
		}
		written++
	}

	if err := dst.Close(); err != nil {
		return written, err
	}
	return written, nil
}

// fit crops or pads a RGB24 frame to a new size, anchored top-left.
// Padding is black.
func fit(buf *pixfmt.Buffer, width, height, newWidth, newHeight int) (*pixfmt.Buffer, error) {
	pix, err := buf.Take()
	if err != nil {
		return nil, err
	}
	if len(pix) < width*height*3 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", pixfmt.ErrShortBuffer, len(pix), width, height)
	}

	out := make([]byte, newWidth*newHeight*3)
	rowSize := width
	if newWidth < rowSize {
		rowSize = newWidth
	}
	for y := 0; y < height && y < newHeight; y++ {
		copy(out[y*newWidth*3:y*newWidth*3+rowSize*3], pix[y*width*3:])
	}
	return pixfmt.NewBuffer(out), nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
