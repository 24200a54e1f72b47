// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"errors"
	"fmt"
	"io"
	"os"

	"avikit/pkg/log"
	"avikit/pkg/pixfmt"
)

// Handlers of uncompressed video.
var (
	handlerRGB      = FourCC{'R', 'G', 'B', ' '}
	handlerRGBLower = FourCC{'r', 'g', 'b', ' '}
	handlerRAW      = FourCC{'R', 'A', 'W', ' '}
	handlerMJPGLow  = FourCC{'m', 'j', 'p', 'g'}
)

// maxExtraSize limit of the format block of non-video streams.
const maxExtraSize = 64 << 10

// Open opens a movie for reading and parses its headers and index.
func Open(path string, logger *log.Logger) (*Movie, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	m, err := newReader(file, stat.Size(), logger, path)
	if err != nil {
		file.Close()
		return nil, err
	}
	return m, nil
}

// NewReader parses the headers and index of a movie of size bytes.
// r is closed by Close if it is an io.Closer, on error it is left open.
func NewReader(r io.ReadSeeker, size int64, logger *log.Logger) (*Movie, error) {
	return newReader(r, size, logger, "")
}

func newReader(r io.ReadSeeker, size int64, logger *log.Logger, path string) (*Movie, error) {
	m := &Movie{
		path:   path,
		mode:   modeRead,
		logger: logger,
		r:      r,
		size:   size,
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	if err := m.parse(); err != nil {
		m.streams = nil
		m.index = nil
		return nil, err
	}
	if c, ok := r.(io.Closer); ok {
		m.c = c
	}
	return m, nil
}

func (m *Movie) parse() error {
	buf, err := m.read(listHeaderSize)
	if err != nil {
		return err
	}
	pos := 0
	tag, riffSize, form := getFourCC(buf, &pos), getUint32(buf, &pos), getFourCC(buf, &pos)
	if tag != TagRIFF {
		return formatErr("expected RIFF, got %q", tag)
	}
	if riffSize == 0 || int64(riffSize)+chunkHeaderSize > m.size {
		return formatErr("RIFF size %d, file size %d", riffSize, m.size)
	}
	if form != TagAVI {
		return formatErr("expected AVI form, got %q", form)
	}

	if _, err := m.expectList(TagHdrl); err != nil {
		return err
	}
	if err := m.parseMainHeader(); err != nil {
		return err
	}

	if m.header.Streams == 0 || m.header.Streams > maxStreams {
		return formatErr("%d streams", m.header.Streams)
	}
	m.streams = make([]Stream, m.header.Streams)
	for i := range m.streams {
		if err := m.parseStream(&m.streams[i]); err != nil {
			return fmt.Errorf("stream %d: %w", i, err)
		}
	}

	moviTag, moviEnd, err := m.findMovi()
	if err != nil {
		return err
	}
	base := moviTag + 4

	if m.header.Flags&FlagHasIndex == 0 {
		m.logger.Info().Src("reader").File(m.path).Msg("no index flag, rebuilding index")
	} else if err := m.readIndex(moviEnd); err != nil {
		return err
	}
	if m.index == nil {
		if err := m.synthesizeIndex(moviTag, moviEnd); err != nil {
			return err
		}
	}

	m.readOffset = base
	if len(m.index) != 0 && int64(m.index[0].Offset) == base {
		// Some encoders store absolute file positions.
		m.readOffset = 4
		m.logger.Warn().Src("reader").File(m.path).Msg("index offsets are absolute")
	}
	return nil
}

func (m *Movie) parseMainHeader() error {
	size, err := m.expectChunk(TagAvih, mainHeaderSize)
	if err != nil {
		return err
	}
	buf, err := m.read(mainHeaderSize)
	if err != nil {
		return err
	}
	m.header.Unmarshal(buf)
	return m.skip(align(size) - mainHeaderSize)
}

func (m *Movie) parseStream(s *Stream) error {
	strlSize, err := m.expectList(TagStrl)
	if err != nil {
		return err
	}
	strlEnd := m.pos - 4 + align(strlSize)

	size, err := m.expectChunk(TagStrh, streamHeaderSize)
	if err != nil {
		return err
	}
	buf, err := m.read(streamHeaderSize)
	if err != nil {
		return err
	}
	s.Header.Unmarshal(buf)
	if err := m.skip(align(size) - streamHeaderSize); err != nil {
		return err
	}

	if err := m.parseStreamFormat(s); err != nil {
		return err
	}

	s.Format, err = classify(s)
	if err != nil {
		return err
	}

	if m.pos > strlEnd {
		return formatErr("stream list overrun by %d bytes", m.pos-strlEnd)
	}
	if m.pos < strlEnd {
		m.logger.Debug().Src("reader").File(m.path).
			Msgf("skipping %d bytes of stream list", strlEnd-m.pos)
	}
	return m.seek(strlEnd)
}

func (m *Movie) parseStreamFormat(s *Stream) error {
	size, err := m.expectChunk(TagStrf, 1)
	if err != nil {
		return err
	}

	if s.Header.Type == TypeVideo {
		if size < bitmapHeaderSize {
			return formatErr("video format is %d bytes", size)
		}
		buf, err := m.read(bitmapHeaderSize)
		if err != nil {
			return err
		}
		s.Bitmap = &BitmapInfoHeader{}
		s.Bitmap.Unmarshal(buf)
		return m.skip(align(size) - bitmapHeaderSize)
	}

	n := int64(size)
	if n > maxExtraSize {
		n = maxExtraSize
	}
	if s.Extra, err = m.read(n); err != nil {
		return err
	}
	return m.skip(align(size) - n)
}

// classify returns the format in which the frames of a stream are stored.
func classify(s *Stream) (pixfmt.Format, error) {
	if s.Header.Type != TypeVideo {
		return pixfmt.FormatNone, nil
	}

	switch s.Header.Handler {
	case HandlerMJPEG, handlerMJPGLow:
		return pixfmt.FormatMJPEG, nil
	case FourCC{}:
		c := s.Bitmap.Compression
		if c == HandlerMJPEG || c == handlerMJPGLow {
			return pixfmt.FormatMJPEG, nil
		}
		return pixfmt.FormatAVIRGB, nil
	case HandlerDIB, handlerRGB, handlerRGBLower, handlerRAW:
		return pixfmt.FormatAVIRGB, nil
	}
	return pixfmt.FormatNone, formatErr("unsupported handler %q", s.Header.Handler)
}

// findMovi skips chunks until the 'movi' list and returns the position
// of its type tag and the end of the list.
func (m *Movie) findMovi() (int64, int64, error) {
	for {
		if m.pos+chunkHeaderSize > m.size {
			return 0, 0, formatErr("no movi list")
		}
		tag, size, err := m.readChunkHeader()
		if err != nil {
			return 0, 0, err
		}

		if tag == TagLIST {
			if size < 4 {
				return 0, 0, formatErr("LIST is %d bytes", size)
			}
			buf, err := m.read(4)
			if err != nil {
				return 0, 0, err
			}
			pos := 0
			if typ := getFourCC(buf, &pos); typ == TagMovi {
				moviTag := m.pos - 4
				return moviTag, moviTag + align(size), nil
			}
			if err := m.skip(align(size) - 4); err != nil {
				return 0, 0, err
			}
			continue
		}

		m.logger.Debug().Src("reader").File(m.path).Msgf("skipping %q chunk", tag)
		if err := m.skip(align(size)); err != nil {
			return 0, 0, err
		}
	}
}

// readIndex reads the 'idx1' chunk that follows the movi list. The index
// is left nil if the chunk is missing.
func (m *Movie) readIndex(moviEnd int64) error {
	if err := m.seek(moviEnd); err != nil {
		return err
	}
	for m.pos+chunkHeaderSize <= m.size {
		tag, size, err := m.readChunkHeader()
		if err != nil {
			return err
		}
		if tag != TagIdx1 {
			if err := m.skip(align(size)); err != nil {
				return err
			}
			continue
		}

		if size%indexEntrySize != 0 {
			return formatErr("index is %d bytes", size)
		}
		buf, err := m.read(int64(size))
		if err != nil {
			return err
		}
		m.index = make(Index, size/indexEntrySize)
		for i := range m.index {
			m.index[i].Unmarshal(buf[i*indexEntrySize:])
		}
		return nil
	}

	m.logger.Warn().Src("reader").File(m.path).Msg("index is missing, rebuilding index")
	return nil
}

// synthesizeIndex builds the index by walking the movi list.
func (m *Movie) synthesizeIndex(moviTag, moviEnd int64) error {
	end := moviEnd
	if end > m.size {
		end = m.size
	}

	idx := Index{}
	pos := moviTag + 4
	for pos+chunkHeaderSize <= end {
		if err := m.seek(pos); err != nil {
			return err
		}
		tag, size, err := m.readChunkHeader()
		if err != nil {
			return err
		}
		entry := IndexEntry{ChunkID: tag, Offset: uint32(pos - moviTag), Size: size}
		next := pos + chunkHeaderSize + align(size)

		if tag == TagLIST && size >= 4 {
			buf, err := m.read(4)
			if err != nil {
				return err
			}
			p := 0
			if getFourCC(buf, &p) == TagRec {
				entry.ChunkID, entry.Flags = TagRec, IndexList
				idx = append(idx, entry)
				next = pos + listHeaderSize
			}
		} else if tag.IsData() {
			if pos+chunkHeaderSize+int64(size) > end {
				m.logger.Warn().Src("reader").File(m.path).
					Msgf("%q chunk at %d is truncated", tag, pos)
				break
			}
			entry.Flags = IndexKeyframe
			idx = append(idx, entry)
		}
		pos = next
	}

	m.index = idx
	m.logger.Info().Src("reader").File(m.path).Msgf("rebuilt index with %d entries", len(idx))
	return nil
}

// ReadFrame reads a frame of a stream and converts it to format.
func (m *Movie) ReadFrame(format pixfmt.Format, frame, stream int) (*pixfmt.Buffer, error) {
	if m.mode != modeRead {
		return nil, fmt.Errorf("%w: not in read mode", ErrRead)
	}
	if stream < 0 || stream >= len(m.streams) {
		return nil, fmt.Errorf("%w: stream %d", ErrNotFound, stream)
	}
	s := m.streams[stream]
	if s.Format == pixfmt.FormatNone {
		return nil, fmt.Errorf("%w: stream %d is not video", ErrCompression, stream)
	}

	entry, err := m.index.find(stream, frame)
	if err != nil {
		return nil, err
	}

	if err := m.seek(m.readOffset + int64(entry.Offset) - 4); err != nil {
		return nil, err
	}
	tag, size, err := m.readChunkHeader()
	if err != nil {
		return nil, err
	}
	if tag != entry.ChunkID {
		return nil, formatErr("frame %d: expected %q chunk, got %q", frame, entry.ChunkID, tag)
	}
	data, err := m.read(int64(size))
	if err != nil {
		return nil, err
	}

	out, err := pixfmt.Convert(pixfmt.NewBuffer(data), s.Format, format, m.Params(stream))
	if err != nil {
		return nil, fmt.Errorf("stream %d frame %d: %w", stream, frame, err)
	}
	return out, nil
}

func (m *Movie) expectList(typ FourCC) (uint32, error) {
	buf, err := m.read(listHeaderSize)
	if err != nil {
		return 0, err
	}
	pos := 0
	tag, size, got := getFourCC(buf, &pos), getUint32(buf, &pos), getFourCC(buf, &pos)
	if tag != TagLIST || got != typ {
		return 0, formatErr("expected LIST %q, got %q %q", typ, tag, got)
	}
	if size < 4 {
		return 0, formatErr("LIST %q is %d bytes", typ, size)
	}
	return size, nil
}

// expectChunk reads a chunk header and returns the chunk size,
// the chunk must be at least min bytes.
func (m *Movie) expectChunk(tag FourCC, min uint32) (uint32, error) {
	got, size, err := m.readChunkHeader()
	if err != nil {
		return 0, err
	}
	if got != tag {
		return 0, formatErr("expected %q, got %q", tag, got)
	}
	if size < min {
		return 0, formatErr("%q is %d bytes", tag, size)
	}
	return size, nil
}

func (m *Movie) readChunkHeader() (FourCC, uint32, error) {
	buf, err := m.read(chunkHeaderSize)
	if err != nil {
		return FourCC{}, 0, err
	}
	var h chunkHeader
	h.unmarshal(buf)
	return h.tag, h.size, nil
}

// read reads n bytes at the current position.
func (m *Movie) read(n int64) ([]byte, error) {
	if m.pos+n > m.size {
		return nil, formatErr("%d bytes at %d exceed file size %d", n, m.pos, m.size)
	}
	if err := checkAlloc(n); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(m.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, formatErr("unexpected end of file at %d", m.pos)
		}
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	m.pos += n
	return buf, nil
}

func (m *Movie) skip(n int64) error {
	if n == 0 {
		return nil
	}
	return m.seek(m.pos + n)
}

func (m *Movie) seek(pos int64) error {
	if _, err := m.r.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrRead, err)
	}
	m.pos = pos
	return nil
}

// align returns a chunk size rounded up to a word boundary.
func align(size uint32) int64 {
	return (int64(size) + 1) &^ 1
}
