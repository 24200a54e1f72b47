// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"fmt"
	"io"
	"math"
	"os"

	"avikit/pkg/log"
	"avikit/pkg/pixfmt"
)

// Writer defaults.
const (
	defaultMicroSecPerFrame = 66667 // 15 fps.
	defaultRate             = 15
	defaultQuality          = 9000

	// Size of the header region, the first frame record starts here
	// if the headers fit.
	headerRegionSize = 2048

	// LIST strl, strh and strf of one video stream.
	strlBlockSize = listHeaderSize +
		chunkHeaderSize + streamHeaderSize +
		chunkHeaderSize + bitmapHeaderSize
)

// Frame input of one stream to WriteFrame.
type Frame struct {
	Format pixfmt.Format
	Buf    *pixfmt.Buffer
}

// Create creates a file and writes the headers of a movie with one video
// stream per format.
func Create(path string, logger *log.Logger, formats ...pixfmt.Format) (*Movie, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	m, err := newWriter(file, logger, path, formats)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return m, nil
}

// NewWriter writes the headers of a movie with one video stream per
// format to ws. ws is closed by Close if it is an io.Closer.
func NewWriter(ws io.WriteSeeker, logger *log.Logger, formats ...pixfmt.Format) (*Movie, error) {
	return newWriter(ws, logger, "", formats)
}

func newWriter(ws io.WriteSeeker, logger *log.Logger, path string, formats []pixfmt.Format) (*Movie, error) {
	if len(formats) == 0 || len(formats) > maxStreams {
		return nil, fmt.Errorf("%w: %d streams", ErrFormat, len(formats))
	}

	m := &Movie{
		path:   path,
		mode:   modeWrite,
		logger: logger,
		w:      ws,
		header: MainHeader{
			MicroSecPerFrame: defaultMicroSecPerFrame,
			Flags:            FlagHasIndex | FlagMustUseIndex,
			Streams:          uint32(len(formats)),
		},
		streams: make([]Stream, len(formats)),
	}
	if c, ok := ws.(io.Closer); ok {
		m.c = c
	}

	for i, f := range formats {
		s, err := newStream(f)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		m.streams[i] = s
	}

	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := m.writeHeaders(); err != nil {
		return nil, err
	}

	m.logger.Debug().Src("writer").File(path).Msgf("created movie with %d streams", len(formats))
	return m, nil
}

// newStream returns the descriptor of a video stream that stores frames
// requested in format f. Uncompressed frames are stored as bottom-up
// 24-bit bitmaps.
func newStream(f pixfmt.Format) (Stream, error) {
	var (
		stored      pixfmt.Format
		handler     FourCC
		compression FourCC
	)
	switch f {
	case pixfmt.FormatRGB24, pixfmt.FormatRGBA32, pixfmt.FormatAVIRGB:
		stored, handler = pixfmt.FormatAVIRGB, HandlerDIB
	case pixfmt.FormatMJPEG:
		stored, handler, compression = pixfmt.FormatMJPEG, HandlerMJPEG, HandlerMJPEG
	default:
		return Stream{}, fmt.Errorf("%w: %v", ErrCompression, f)
	}

	return Stream{
		Header: StreamHeader{
			Type:    TypeVideo,
			Handler: handler,
			Scale:   1,
			Rate:    defaultRate,
			Quality: defaultQuality,
		},
		Bitmap: &BitmapInfoHeader{
			Size:        bitmapHeaderSize,
			Planes:      1,
			BitCount:    24,
			Compression: compression,
		},
		Format: stored,
	}, nil
}

func (m *Movie) writeHeaders() error {
	hdrlSize := 4 + chunkHeaderSize + mainHeaderSize + len(m.streams)*strlBlockSize
	strlSize := strlBlockSize - chunkHeaderSize

	buf := make([]byte, 0, headerRegionSize)
	buf = append(buf, chunkHeader{tag: TagRIFF}.marshal()...)
	buf = append(buf, TagAVI[:]...)
	buf = append(buf, listHeader{size: uint32(hdrlSize), typ: TagHdrl}.marshal()...)

	buf = append(buf, chunkHeader{tag: TagAvih, size: mainHeaderSize}.marshal()...)
	m.headerOffset = int64(len(buf))
	buf = append(buf, m.header.Marshal()...)

	for i := range m.streams {
		s := &m.streams[i]
		buf = append(buf, listHeader{size: uint32(strlSize), typ: TagStrl}.marshal()...)

		buf = append(buf, chunkHeader{tag: TagStrh, size: streamHeaderSize}.marshal()...)
		s.headerOffset = int64(len(buf))
		buf = append(buf, s.Header.Marshal()...)

		buf = append(buf, chunkHeader{tag: TagStrf, size: bitmapHeaderSize}.marshal()...)
		s.formatOffset = int64(len(buf))
		buf = append(buf, s.Bitmap.Marshal()...)
	}

	junk := headerRegionSize - len(buf) - chunkHeaderSize - listHeaderSize
	if junk >= 0 {
		buf = append(buf, chunkHeader{tag: TagJUNK, size: uint32(junk)}.marshal()...)
		buf = append(buf, make([]byte, junk)...)
	}

	m.moviOffset = int64(len(buf)) + chunkHeaderSize
	buf = append(buf, listHeader{typ: TagMovi}.marshal()...)

	return m.write(buf)
}

// WriteFrame writes one frame per stream as a single record. Each buffer
// is converted to the format of its stream. The buffers are consumed,
// also on error. A failed conversion leaves the file untouched.
func (m *Movie) WriteFrame(frameNum int, frames ...Frame) error {
	defer func() {
		for _, f := range frames {
			f.Buf.Take() //nolint:errcheck
		}
	}()

	if m.mode != modeWrite {
		return fmt.Errorf("%w: not in write mode", ErrWrite)
	}
	if frameNum < 0 {
		return fmt.Errorf("%w: frame %d", ErrWrite, frameNum)
	}
	if len(frames) != len(m.streams) {
		return fmt.Errorf("%w: %d frames for %d streams", ErrWrite, len(frames), len(m.streams))
	}

	chunks := make([][]byte, len(frames))
	recordSize := int64(listHeaderSize)
	for i, f := range frames {
		out, err := pixfmt.Convert(f.Buf, f.Format, m.streams[i].Format, m.Params(i))
		if err != nil {
			m.logger.Error().Src("writer").File(m.path).
				Msgf("frame %d stream %d: %v", frameNum, i, err)
			return fmt.Errorf("frame %d stream %d: %w", frameNum, i, err)
		}
		pix, err := out.Take()
		if err != nil {
			return fmt.Errorf("frame %d stream %d: %w", frameNum, i, err)
		}
		chunks[i] = pix
		recordSize += chunkHeaderSize + int64(padded(len(pix)))
	}

	// Offsets and sizes are 32 bits, the index is written last.
	indexSize := int64(slot(frameNum+1, len(m.streams))) * indexEntrySize
	if m.end+recordSize+chunkHeaderSize+indexSize > math.MaxUint32 {
		return fmt.Errorf("%w: file would exceed 4 GiB", ErrWrite)
	}

	return m.writeRecord(frameNum, chunks)
}

func (m *Movie) writeRecord(frameNum int, chunks [][]byte) error {
	numStreams := len(m.streams)
	first := slot(frameNum, numStreams)
	if n := slot(frameNum+1, numStreams); n > len(m.index) {
		old := len(m.index)
		m.index = m.index.grow(n)
		m.markRepeats(old)
	}

	recordPos := m.end
	if err := m.write(listHeader{typ: TagRec}.marshal()); err != nil {
		return err
	}

	for i, pix := range chunks {
		s := &m.streams[i]
		id := DataChunkID(i, s.Header.Type, s.Format.Compressed())
		size := padded(len(pix))

		buf := make([]byte, chunkHeaderSize+size)
		copy(buf, chunkHeader{tag: id, size: uint32(size)}.marshal())
		copy(buf[chunkHeaderSize:], pix)

		m.index[first+1+i] = IndexEntry{
			ChunkID: id,
			Flags:   IndexKeyframe,
			Offset:  uint32(m.end - m.moviOffset),
			Size:    uint32(size),
		}
		if err := m.write(buf); err != nil {
			return err
		}

		s.Header.Length++
		if err := m.patch(s.headerOffset, s.Header.Marshal()); err != nil {
			return err
		}
	}

	recordSize := uint32(m.end - recordPos - chunkHeaderSize)
	m.index[first] = IndexEntry{
		ChunkID: TagRec,
		Flags:   IndexList,
		Offset:  uint32(recordPos - m.moviOffset),
		Size:    recordSize,
	}
	if err := m.patchUint32(recordPos+4, recordSize); err != nil {
		return err
	}

	if total := uint32(frameNum + 1); total > m.header.TotalFrames {
		m.header.TotalFrames = total
		if err := m.patch(m.headerOffset, m.header.Marshal()); err != nil {
			return err
		}
	}
	return nil
}

// markRepeats fills the data slots from the given slot onwards with
// zero-size entries, frames that are never written repeat the frame
// before them.
func (m *Movie) markRepeats(from int) {
	numStreams := len(m.streams)
	for i := from; i < len(m.index); i++ {
		stream := i%(numStreams+1) - 1
		if stream < 0 {
			continue
		}
		s := m.streams[stream]
		m.index[i] = IndexEntry{ChunkID: DataChunkID(stream, s.Header.Type, s.Format.Compressed())}
	}
}

// finalize appends the index and patches the RIFF and movi sizes.
func (m *Movie) finalize() error {
	idx1Pos := m.end

	buf := make([]byte, 0, chunkHeaderSize+len(m.index)*indexEntrySize)
	buf = append(buf, chunkHeader{
		tag:  TagIdx1,
		size: uint32(len(m.index) * indexEntrySize),
	}.marshal()...)
	for _, e := range m.index {
		buf = append(buf, e.Marshal()...)
	}
	if err := m.write(buf); err != nil {
		return err
	}

	// The movi list size counts from its type tag.
	if err := m.patchUint32(m.moviOffset-4, uint32(idx1Pos-m.moviOffset)); err != nil {
		return err
	}
	if err := m.patchUint32(4, uint32(m.end-chunkHeaderSize)); err != nil {
		return err
	}

	m.logger.Debug().Src("writer").File(m.path).
		Msgf("closed movie, %d frames", m.header.TotalFrames)
	return nil
}

// write appends p at the end of the file.
func (m *Movie) write(p []byte) error {
	n, err := m.w.Write(p)
	m.end += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// patch overwrites bytes at offset and returns to the end of the file.
func (m *Movie) patch(offset int64, p []byte) error {
	if _, err := m.w.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := m.w.Write(p); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := m.w.Seek(m.end, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func (m *Movie) patchUint32(offset int64, v uint32) error {
	buf := make([]byte, 4)
	pos := 0
	putUint32(buf, &pos, v)
	return m.patch(offset, buf)
}

// patchHeaders rewrites the main header and every stream descriptor.
func (m *Movie) patchHeaders() error {
	if err := m.patch(m.headerOffset, m.header.Marshal()); err != nil {
		return err
	}
	for _, s := range m.streams {
		if err := m.patch(s.headerOffset, s.Header.Marshal()); err != nil {
			return err
		}
		if s.Bitmap != nil {
			if err := m.patch(s.formatOffset, s.Bitmap.Marshal()); err != nil {
				return err
			}
		}
	}
	return nil
}
