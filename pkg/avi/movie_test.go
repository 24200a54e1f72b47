// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"avikit/pkg/memfile"
	"avikit/pkg/pixfmt"

	"github.com/stretchr/testify/require"
)

// pattern returns n bytes that differ between seeds and neighbours.
func pattern(seed, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + seed*31 + i/5)
	}
	return out
}

func solid(width, height int, r, g, b byte) []byte {
	out := make([]byte, width*height*3)
	for i := 0; i < len(out); i += 3 {
		out[i], out[i+1], out[i+2] = r, g, b
	}
	return out
}

func newTestWriter(t *testing.T, width, height int, formats ...pixfmt.Format) (*Movie, *memfile.File) {
	t.Helper()
	f := &memfile.File{}
	m, err := NewWriter(f, nil, formats...)
	require.NoError(t, err)
	require.NoError(t, m.SetOption(OptionWidth, float64(width)))
	require.NoError(t, m.SetOption(OptionHeight, float64(height)))
	return m, f
}

func reopen(t *testing.T, data []byte) *Movie {
	t.Helper()
	m, err := NewReader(memfile.New(data), int64(len(data)), nil)
	require.NoError(t, err)
	return m
}

func writeFrame(t *testing.T, m *Movie, frameNum int, format pixfmt.Format, pix ...[]byte) {
	t.Helper()
	frames := make([]Frame, len(pix))
	for i, p := range pix {
		frames[i] = Frame{Format: format, Buf: pixfmt.NewBuffer(append([]byte(nil), p...))}
	}
	require.NoError(t, m.WriteFrame(frameNum, frames...))
}

func requireClose(t *testing.T, want, got []byte, tolerance int) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		diff := int(want[i]) - int(got[i])
		if diff < -tolerance || diff > tolerance {
			t.Fatalf("byte %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestWriterLayout(t *testing.T) {
	m, f := newTestWriter(t, 2, 2, pixfmt.FormatAVIRGB)
	writeFrame(t, m, 0, pixfmt.FormatAVIRGB, pattern(0, 16))
	require.NoError(t, m.Close())

	data := f.Bytes()
	require.Len(t, data, 2124)

	u32 := func(pos int) uint32 { return binary.LittleEndian.Uint32(data[pos:]) }

	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, uint32(2116), u32(4))
	require.Equal(t, "AVI LISThdrl", string(data[8:16])+string(data[20:24]))
	require.Equal(t, uint32(192), u32(16))
	require.Equal(t, "avih", string(data[24:28]))
	require.Equal(t, "LIST", string(data[88:92]))
	require.Equal(t, "strlstrh", string(data[96:104]))
	require.Equal(t, "strf", string(data[164:168]))
	require.Equal(t, "JUNK", string(data[212:216]))
	require.Equal(t, uint32(1816), u32(216))

	// Frame data starts at 2048.
	require.Equal(t, "LIST", string(data[2036:2040]))
	require.Equal(t, uint32(40), u32(2040))
	require.Equal(t, "movi", string(data[2044:2048]))
	require.Equal(t, "LIST", string(data[2048:2052]))
	require.Equal(t, uint32(28), u32(2052))
	require.Equal(t, "rec 00db", string(data[2056:2060])+string(data[2060:2064]))
	require.Equal(t, uint32(16), u32(2064))
	require.Equal(t, pattern(0, 16), data[2068:2084])

	require.Equal(t, "idx1", string(data[2084:2088]))
	require.Equal(t, uint32(32), u32(2088))
	expectedIndex := []byte{
		'r', 'e', 'c', ' ', // ChunkID.
		0x01, 0, 0, 0, // Flags.
		0x04, 0, 0, 0, // Offset.
		28, 0, 0, 0, // Size.
		'0', '0', 'd', 'b',
		0x10, 0, 0, 0,
		0x10, 0, 0, 0,
		16, 0, 0, 0,
	}
	require.Equal(t, expectedIndex, data[2092:])

	var h MainHeader
	h.Unmarshal(data[32:])
	require.Equal(t, uint32(1), h.TotalFrames)
	require.Equal(t, uint32(2), h.Width)
	require.Equal(t, FlagHasIndex|FlagMustUseIndex, h.Flags)

	var sh StreamHeader
	sh.Unmarshal(data[108:])
	require.Equal(t, uint32(1), sh.Length)
	require.Equal(t, HandlerDIB, sh.Handler)
}

func TestWriteReadRGB24(t *testing.T) {
	m, f := newTestWriter(t, 4, 3, pixfmt.FormatRGB24)
	frames := [][]byte{pattern(1, 36), pattern(2, 36), pattern(3, 36)}
	for i, pix := range frames {
		writeFrame(t, m, i, pixfmt.FormatRGB24, pix)
	}
	require.NoError(t, m.Close())

	r := reopen(t, f.Bytes())
	defer r.Close()

	require.Equal(t, uint32(3), r.Header().TotalFrames)
	streams := r.Streams()
	require.Len(t, streams, 1)
	require.Equal(t, pixfmt.FormatAVIRGB, streams[0].Format)
	require.Equal(t, uint32(3), streams[0].Header.Length)
	require.Equal(t, 3, r.FrameCount(0))

	for i, pix := range frames {
		buf, err := r.ReadFrame(pixfmt.FormatRGB24, i, 0)
		require.NoError(t, err)
		require.Equal(t, pix, buf.Bytes(), "frame %d", i)
	}
}

func TestWriteReadStreams(t *testing.T) {
	const width, height = 24, 18
	formats := []pixfmt.Format{pixfmt.FormatRGB24, pixfmt.FormatRGBA32, pixfmt.FormatMJPEG}
	m, f := newTestWriter(t, width, height, formats...)

	colors := [][3]byte{{200, 30, 30}, {30, 200, 30}, {30, 30, 200}, {128, 128, 128}}
	frameOf := func(frame, stream int) []byte {
		c := colors[(frame+stream)%len(colors)]
		return solid(width, height, c[0], c[1], c[2])
	}

	// Frame 2 is never written.
	for _, frame := range []int{0, 1, 3} {
		rgba, err := pixfmt.Convert(pixfmt.NewBuffer(frameOf(frame, 1)),
			pixfmt.FormatRGB24, pixfmt.FormatRGBA32, pixfmt.Params{Width: width, Height: height})
		require.NoError(t, err)

		err = m.WriteFrame(frame,
			Frame{Format: pixfmt.FormatRGB24, Buf: pixfmt.NewBuffer(frameOf(frame, 0))},
			Frame{Format: pixfmt.FormatRGBA32, Buf: rgba},
			Frame{Format: pixfmt.FormatRGB24, Buf: pixfmt.NewBuffer(frameOf(frame, 2))},
		)
		require.NoError(t, err)
	}
	require.NoError(t, m.Close())

	data := f.Bytes()
	r := reopen(t, data)
	defer r.Close()

	require.Equal(t, uint32(4), r.Header().TotalFrames)
	require.Equal(t, uint32(3), r.Header().Streams)

	for stream := range formats {
		require.Equal(t, 4, r.FrameCount(stream))
		for frame := 0; frame < 4; frame++ {
			want := frame
			if frame == 2 {
				want = 1
			}
			buf, err := r.ReadFrame(pixfmt.FormatRGB24, frame, stream)
			require.NoError(t, err)

			tolerance := 0
			if stream == 2 {
				tolerance = 8
			}
			requireClose(t, frameOf(want, stream), buf.Bytes(), tolerance)
		}
	}

	t.Run("entriesMatchChunks", func(t *testing.T) {
		for _, e := range r.Index() {
			if e.Size == 0 {
				continue
			}
			pos := r.readOffset + int64(e.Offset) - 4
			size := binary.LittleEndian.Uint32(data[pos+4:])
			require.Equal(t, e.Size, size)

			if e.ChunkID == TagRec {
				require.Equal(t, "LIST", string(data[pos:pos+4]))
				require.Equal(t, "rec ", string(data[pos+8:pos+12]))
				require.Equal(t, IndexList, e.Flags)
				continue
			}
			require.Equal(t, e.ChunkID.String(), string(data[pos:pos+4]))
			require.Equal(t, IndexKeyframe, e.Flags)
		}
	})
	t.Run("rgba", func(t *testing.T) {
		buf, err := r.ReadFrame(pixfmt.FormatRGBA32, 0, 1)
		require.NoError(t, err)
		require.Len(t, buf.Bytes(), width*height*4)
		require.Equal(t, []byte{30, 200, 30, 255}, buf.Bytes()[:4])
	})
}

func TestWriteReadMJPEGInterlaced(t *testing.T) {
	const width, height = 16, 40
	m, f := newTestWriter(t, width, height, pixfmt.FormatMJPEG)
	require.NoError(t, m.SetOption(OptionInterlaced, 1))

	pix := make([]byte, width*height*3)
	for y := 0; y < height; y += 2 {
		row := pix[y*width*3 : (y+1)*width*3]
		for i := range row {
			row[i] = 255
		}
	}
	writeFrame(t, m, 0, pixfmt.FormatRGB24, pix)
	require.NoError(t, m.Close())

	r := reopen(t, f.Bytes())
	require.Equal(t, pixfmt.FormatMJPEG, r.Streams()[0].Format)
	require.Equal(t, HandlerMJPEG, r.Streams()[0].Bitmap.Compression)

	buf, err := r.ReadFrame(pixfmt.FormatRGB24, 0, 0)
	require.NoError(t, err)
	requireClose(t, pix, buf.Bytes(), 16)
}

func TestReadAbsoluteOffsets(t *testing.T) {
	m, f := newTestWriter(t, 4, 3, pixfmt.FormatRGB24, pixfmt.FormatRGB24)
	writeFrame(t, m, 0, pixfmt.FormatRGB24, pattern(1, 36), pattern(2, 36))
	writeFrame(t, m, 1, pixfmt.FormatRGB24, pattern(3, 36), pattern(4, 36))
	entries := len(m.index)
	moviTag := uint32(m.moviOffset)
	require.NoError(t, m.Close())

	data := f.Bytes()
	start := len(data) - entries*indexEntrySize
	for i := 0; i < entries; i++ {
		pos := start + i*indexEntrySize + 8
		offset := binary.LittleEndian.Uint32(data[pos:])
		binary.LittleEndian.PutUint32(data[pos:], offset+moviTag)
	}

	r := reopen(t, data)
	require.Equal(t, int64(4), r.readOffset)

	buf, err := r.ReadFrame(pixfmt.FormatRGB24, 1, 1)
	require.NoError(t, err)
	require.Equal(t, pattern(4, 36), buf.Bytes())
}

func TestReadSynthesizedIndex(t *testing.T) {
	newMovie := func(t *testing.T) ([]byte, Index, int64) {
		m, f := newTestWriter(t, 4, 3, pixfmt.FormatRGB24, pixfmt.FormatMJPEG)
		for i := 0; i < 3; i++ {
			writeFrame(t, m, i, pixfmt.FormatRGB24, pattern(i, 36), solid(4, 3, 90, 90, 90))
		}
		index := m.Index()
		headerOffset := m.headerOffset
		require.NoError(t, m.Close())
		return f.Bytes(), index, headerOffset
	}

	t.Run("flagCleared", func(t *testing.T) {
		data, index, headerOffset := newMovie(t)
		binary.LittleEndian.PutUint32(data[headerOffset+12:], 0)

		r := reopen(t, data)
		require.Equal(t, index, r.Index())

		buf, err := r.ReadFrame(pixfmt.FormatRGB24, 2, 0)
		require.NoError(t, err)
		require.Equal(t, pattern(2, 36), buf.Bytes())
	})
	t.Run("idx1Missing", func(t *testing.T) {
		data, index, _ := newMovie(t)
		data = data[:len(data)-chunkHeaderSize-len(index)*indexEntrySize]
		binary.LittleEndian.PutUint32(data[4:], uint32(len(data)-8))

		r := reopen(t, data)
		require.Equal(t, index, r.Index())
	})
}

func TestOpenErrors(t *testing.T) {
	m, f := newTestWriter(t, 4, 3, pixfmt.FormatRGB24)
	writeFrame(t, m, 0, pixfmt.FormatRGB24, pattern(0, 36))
	headerOffset := m.headerOffset
	strhOffset := m.streams[0].headerOffset
	require.NoError(t, m.Close())
	valid := f.Bytes()

	cases := []struct {
		name   string
		modify func(data []byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"riffTag", func(data []byte) []byte {
			data[0] = 'X'
			return data
		}},
		{"riffSizeZero", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[4:], 0)
			return data
		}},
		{"riffSizeTooLarge", func(data []byte) []byte {
			return data[:len(data)-1]
		}},
		{"form", func(data []byte) []byte {
			copy(data[8:], "WAVE")
			return data
		}},
		{"noStreams", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[headerOffset+24:], 0)
			return data
		}},
		{"tooManyStreams", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[headerOffset+24:], 100)
			return data
		}},
		{"handler", func(data []byte) []byte {
			copy(data[strhOffset+4:], "XVID")
			return data
		}},
		{"indexSize", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[len(data)-36:], 33)
			return data
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.modify(append([]byte(nil), valid...))
			_, err := NewReader(memfile.New(data), int64(len(data)), nil)
			require.ErrorIs(t, err, ErrFormat)
		})
	}

	t.Run("missingFile", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "missing.avi"), nil)
		require.ErrorIs(t, err, ErrOpen)
	})
}

func TestReadFrameErrors(t *testing.T) {
	m, f := newTestWriter(t, 4, 3, pixfmt.FormatRGB24)
	writeFrame(t, m, 0, pixfmt.FormatRGB24, pattern(0, 36))

	_, err := m.ReadFrame(pixfmt.FormatRGB24, 0, 0)
	require.ErrorIs(t, err, ErrRead)
	require.NoError(t, m.Close())

	data := f.Bytes()
	r := reopen(t, append([]byte(nil), data...))

	_, err = r.ReadFrame(pixfmt.FormatRGB24, 1, 0)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.ReadFrame(pixfmt.FormatRGB24, 0, 1)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.ReadFrame(pixfmt.FormatNone, 0, 0)
	require.ErrorIs(t, err, pixfmt.ErrUnsupported)

	require.NoError(t, r.Close())
	_, err = r.ReadFrame(pixfmt.FormatRGB24, 0, 0)
	require.ErrorIs(t, err, ErrRead)

	t.Run("chunkTag", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		copy(corrupt[2060:], "01db")

		r := reopen(t, corrupt)
		_, err := r.ReadFrame(pixfmt.FormatRGB24, 0, 0)
		require.ErrorIs(t, err, ErrFormat)
	})
}

func TestWriteFrameErrors(t *testing.T) {
	t.Run("conversion", func(t *testing.T) {
		m, f := newTestWriter(t, 4, 3, pixfmt.FormatRGB24, pixfmt.FormatRGB24)
		size := f.Size()

		good := pixfmt.NewBuffer(pattern(0, 48))
		short := pixfmt.NewBuffer(pattern(0, 35))
		err := m.WriteFrame(0,
			Frame{Format: pixfmt.FormatRGBA32, Buf: good},
			Frame{Format: pixfmt.FormatRGB24, Buf: short},
		)
		require.ErrorIs(t, err, pixfmt.ErrShortBuffer)
		require.Equal(t, size, f.Size())
		require.True(t, good.Consumed())
		require.True(t, short.Consumed())
		require.Zero(t, m.Header().TotalFrames)
	})
	t.Run("frameCount", func(t *testing.T) {
		m, _ := newTestWriter(t, 4, 3, pixfmt.FormatRGB24)
		buf := pixfmt.NewBuffer(pattern(0, 36))
		err := m.WriteFrame(0)
		require.ErrorIs(t, err, ErrWrite)

		err = m.WriteFrame(-1, Frame{Format: pixfmt.FormatRGB24, Buf: buf})
		require.ErrorIs(t, err, ErrWrite)
		require.True(t, buf.Consumed())
	})
	t.Run("readMode", func(t *testing.T) {
		m, f := newTestWriter(t, 4, 3, pixfmt.FormatRGB24)
		require.NoError(t, m.Close())

		r := reopen(t, f.Bytes())
		err := r.WriteFrame(0, Frame{Format: pixfmt.FormatRGB24, Buf: pixfmt.NewBuffer(pattern(0, 36))})
		require.ErrorIs(t, err, ErrWrite)
		require.Zero(t, r.FrameCount(0))
	})
	t.Run("create", func(t *testing.T) {
		_, err := NewWriter(&memfile.File{}, nil, pixfmt.FormatNone)
		require.ErrorIs(t, err, ErrCompression)

		_, err = NewWriter(&memfile.File{}, nil)
		require.ErrorIs(t, err, ErrFormat)

		_, err = Create(filepath.Join(t.TempDir(), "missing", "a.avi"), nil, pixfmt.FormatRGB24)
		require.ErrorIs(t, err, ErrOpen)
	})
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.avi")

	m, err := Create(path, nil, pixfmt.FormatRGB24)
	require.NoError(t, err)
	require.NoError(t, m.SetOption(OptionWidth, 4))
	require.NoError(t, m.SetOption(OptionHeight, 3))
	writeFrame(t, m, 0, pixfmt.FormatRGB24, pattern(7, 36))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	r, err := Open(path, nil)
	require.NoError(t, err)
	defer r.Close()

	buf, err := r.ReadFrame(pixfmt.FormatRGB24, 0, 0)
	require.NoError(t, err)
	require.Equal(t, pattern(7, 36), buf.Bytes())

	p := r.Params(0)
	require.Equal(t, pixfmt.Params{Width: 4, Height: 3, BitCount: 24, Quality: 90}, p)
}
