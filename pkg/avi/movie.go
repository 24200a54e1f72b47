// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"fmt"
	"io"

	"avikit/pkg/log"
	"avikit/pkg/pixfmt"
)

type mode uint8

const (
	modeRead mode = iota
	modeWrite
	modeClosed
)

// Stream descriptor.
type Stream struct {
	Header StreamHeader

	// Bitmap format block of video streams, nil otherwise.
	Bitmap *BitmapInfoHeader

	// Raw format block of non-video streams.
	Extra []byte

	// Format of the frames as stored in the file.
	Format pixfmt.Format

	headerOffset int64 // strh payload.
	formatOffset int64 // strf payload.
}

// Movie open AVI container in either read or write mode.
type Movie struct {
	path   string
	mode   mode
	logger *log.Logger

	r io.ReadSeeker
	w io.WriteSeeker
	c io.Closer

	header  MainHeader
	streams []Stream
	index   Index

	// Read mode.
	pos        int64
	size       int64
	readOffset int64 // Added to index offsets.

	// Write mode.
	end           int64 // Write position.
	headerOffset  int64 // avih payload.
	moviOffset    int64 // 'movi' list tag.
	interlaced    bool
	oddFieldFirst bool
}

// Header returns a copy of the main header.
func (m *Movie) Header() MainHeader {
	return m.header
}

// Streams returns a copy of the stream descriptors.
func (m *Movie) Streams() []Stream {
	out := make([]Stream, len(m.streams))
	for i, s := range m.streams {
		out[i] = s
		if s.Bitmap != nil {
			b := *s.Bitmap
			out[i].Bitmap = &b
		}
	}
	return out
}

// Index returns a copy of the frame index.
func (m *Movie) Index() Index {
	return append(Index(nil), m.index...)
}

// FrameCount returns the number of frames in a stream.
func (m *Movie) FrameCount(stream int) int {
	return m.index.FrameCount(stream)
}

// Params returns the conversion parameters of a stream.
func (m *Movie) Params(stream int) pixfmt.Params {
	if stream < 0 || stream >= len(m.streams) {
		return pixfmt.Params{}
	}
	s := m.streams[stream]

	p := pixfmt.Params{
		Quality:       int(s.Header.Quality / 100),
		Interlaced:    m.interlaced,
		OddFieldFirst: m.oddFieldFirst,
	}
	if s.Bitmap != nil {
		p.Width = int(s.Bitmap.Width)
		p.Height = int(s.Bitmap.Height)
		p.BitCount = int(s.Bitmap.BitCount)
		if p.Height < 0 {
			p.Height = -p.Height
			p.TopDown = true
		}
	}
	return p
}

// Close finalizes a movie in write mode and closes the file.
// The movie can not be used afterwards.
func (m *Movie) Close() error {
	if m.mode == modeClosed {
		return nil
	}

	var err error
	if m.mode == modeWrite {
		err = m.finalize()
	}
	if m.c != nil {
		if err2 := m.c.Close(); err2 != nil && err == nil {
			err = fmt.Errorf("%w: close: %v", ErrWrite, err2)
		}
	}

	m.mode = modeClosed
	m.r, m.w, m.c = nil, nil, nil
	m.streams = nil
	m.index = nil
	return err
}

func (m *Movie) videoStreams() []*Stream {
	var out []*Stream
	for i := range m.streams {
		if m.streams[i].Bitmap != nil {
			out = append(out, &m.streams[i])
		}
	}
	return out
}
