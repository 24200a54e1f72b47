// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"fmt"
	"math"
)

// Option movie option.
type Option uint8

// Options.
const (
	OptionWidth Option = iota
	OptionHeight
	OptionQuality   // 0-100.
	OptionFrameRate // Frames per second.
	OptionInterlaced
	OptionOddFieldFirst
)

func (o Option) String() string {
	switch o {
	case OptionWidth:
		return "width"
	case OptionHeight:
		return "height"
	case OptionQuality:
		return "quality"
	case OptionFrameRate:
		return "frameRate"
	case OptionInterlaced:
		return "interlaced"
	case OptionOddFieldFirst:
		return "oddFieldFirst"
	}
	return fmt.Sprintf("option(%d)", uint8(o))
}

// SetOption changes an option of a movie in write mode before the first
// frame is written. Changed headers are written to the file immediately.
// Boolean options are set by any non-zero value.
func (m *Movie) SetOption(opt Option, value float64) error {
	if m.mode != modeWrite {
		return fmt.Errorf("%w: %v: not in write mode", ErrOption, opt)
	}
	if m.header.TotalFrames > 0 {
		return fmt.Errorf("%w: %v: frames already written", ErrOption, opt)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %v: %v", ErrOption, opt, value)
	}

	switch opt {
	case OptionWidth, OptionHeight:
		if value < 0 || value > math.MaxInt16 {
			return fmt.Errorf("%w: %v: %v", ErrOption, opt, value)
		}
		m.setDimension(opt, uint32(value))

	case OptionQuality:
		if value < 0 || value > 100 {
			return fmt.Errorf("%w: %v: %v", ErrOption, opt, value)
		}
		for i := range m.streams {
			m.streams[i].Header.Quality = uint32(value * 100)
		}

	case OptionFrameRate:
		if value <= 0 {
			return fmt.Errorf("%w: %v: %v", ErrOption, opt, value)
		}
		usec := uint32(1000000 / value)
		if usec == 0 {
			return fmt.Errorf("%w: %v: %v", ErrOption, opt, value)
		}
		m.header.MicroSecPerFrame = usec
		for i := range m.streams {
			m.streams[i].Header.Scale = usec
			m.streams[i].Header.Rate = 1000000
		}

	case OptionInterlaced:
		m.interlaced = value != 0
		return nil

	case OptionOddFieldFirst:
		m.oddFieldFirst = value != 0
		return nil

	default:
		return fmt.Errorf("%w: %v", ErrOption, opt)
	}

	m.logger.Debug().Src("options").File(m.path).Msgf("%v set to %v", opt, value)
	return m.patchHeaders()
}

func (m *Movie) setDimension(opt Option, v uint32) {
	if opt == OptionWidth {
		m.header.Width = v
	} else {
		m.header.Height = v
	}
	bufferSize := m.header.Width * m.header.Height * 3
	m.header.SuggestedBufferSize = bufferSize

	for _, s := range m.videoStreams() {
		if opt == OptionWidth {
			s.Bitmap.Width = int32(v)
			s.Header.Frame.Right = int16(v)
		} else {
			s.Bitmap.Height = int32(v)
			s.Header.Frame.Bottom = int16(v)
		}
		s.Bitmap.SizeImage = bufferSize
		s.Header.SuggestedBufferSize = bufferSize
	}
}

// Option returns the value of an option.
func (m *Movie) Option(opt Option) (float64, error) {
	switch opt {
	case OptionWidth:
		return float64(m.header.Width), nil
	case OptionHeight:
		return float64(m.header.Height), nil
	case OptionQuality:
		if len(m.streams) == 0 {
			return 0, nil
		}
		return float64(m.streams[0].Header.Quality) / 100, nil
	case OptionFrameRate:
		if m.header.MicroSecPerFrame == 0 {
			return 0, nil
		}
		return 1000000 / float64(m.header.MicroSecPerFrame), nil
	case OptionInterlaced:
		return boolValue(m.interlaced), nil
	case OptionOddFieldFirst:
		return boolValue(m.oddFieldFirst), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrOption, opt)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
