// SPDX-License-Identifier: GPL-2.0-or-later

package pixfmt

import (
	"testing"

	"avikit/pkg/mjpeg"

	"github.com/stretchr/testify/require"
)

// gradient returns a RGB24 image where every byte differs from its neighbours.
func gradient(width, height int) []byte {
	out := make([]byte, width*height*3)
	for i := range out {
		out[i] = byte(i*7 + i/3)
	}
	return out
}

func TestConvertIdentity(t *testing.T) {
	for f := FormatRGB24; f <= FormatMJPEG; f++ {
		buf := NewBuffer([]byte{1, 2, 3})
		out, err := Convert(buf, f, f, Params{})
		require.NoError(t, err)
		require.Same(t, buf, out)
		require.False(t, buf.Consumed())
	}
}

func TestConvertRoundTrip(t *testing.T) {
	p := Params{Width: 5, Height: 3}
	formats := []Format{FormatRGB24, FormatRGBA32, FormatAVIRGB}

	originals := map[Format][]byte{}
	for _, f := range formats {
		out, err := Convert(NewBuffer(gradient(5, 3)), FormatRGB24, f, p)
		require.NoError(t, err)
		originals[f] = out.Bytes()
	}

	for _, from := range formats {
		for _, to := range formats {
			if from == to {
				continue
			}
			src := append([]byte(nil), originals[from]...)

			there, err := Convert(NewBuffer(src), from, to, p)
			require.NoError(t, err)
			require.Equal(t, originals[to], there.Bytes(), "%v to %v", from, to)

			back, err := Convert(there, to, from, p)
			require.NoError(t, err)
			require.Equal(t, originals[from], back.Bytes(), "%v to %v and back", from, to)
			require.True(t, there.Consumed())
		}
	}
}

func TestConvertAVIRGB(t *testing.T) {
	t.Run("layout", func(t *testing.T) {
		rgb := []byte{
			1, 2, 3, 4, 5, 6, // Top row.
			7, 8, 9, 10, 11, 12, // Bottom row.
		}
		out, err := Convert(NewBuffer(rgb), FormatRGB24, FormatAVIRGB, Params{Width: 2, Height: 2})
		require.NoError(t, err)

		expected := []byte{
			9, 8, 7, 12, 11, 10, 0, 0, // Bottom row first, padded to 8 bytes.
			3, 2, 1, 6, 5, 4, 0, 0,
		}
		require.Equal(t, expected, out.Bytes())
	})
	t.Run("topDown", func(t *testing.T) {
		dib := []byte{3, 2, 1, 0, 6, 5, 4, 0}
		out, err := Convert(NewBuffer(dib), FormatAVIRGB, FormatRGB24, Params{Width: 1, Height: 2, TopDown: true})
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, out.Bytes())
	})
	t.Run("16bit", func(t *testing.T) {
		dib := []byte{
			0x00, 0x7c, 0xe0, 0x03, // Red, green.
			0x1f, 0x00, 0xff, 0x7f, // Blue, white.
		}
		out, err := Convert(NewBuffer(dib), FormatAVIRGB, FormatRGB24, Params{Width: 2, Height: 2, BitCount: 16})
		require.NoError(t, err)

		expected := []byte{
			0, 0, 255, 255, 255, 255, // Top row is stored last.
			255, 0, 0, 0, 255, 0,
		}
		require.Equal(t, expected, out.Bytes())
	})
	t.Run("short", func(t *testing.T) {
		_, err := Convert(NewBuffer(make([]byte, 7)), FormatAVIRGB, FormatRGB24, Params{Width: 2, Height: 1})
		require.ErrorIs(t, err, ErrShortBuffer)
	})
}

func TestConvertMJPEGToRGBA32(t *testing.T) {
	p := Params{Width: 100, Height: 90, Quality: 90}

	rgb := make([]byte, 100*90*3)
	for i := 0; i < len(rgb); i += 3 {
		rgb[i], rgb[i+1], rgb[i+2] = 10, 120, 240
	}
	encoded, err := Convert(NewBuffer(rgb), FormatRGB24, FormatMJPEG, p)
	require.NoError(t, err)

	out, err := Convert(encoded, FormatMJPEG, FormatRGBA32, p)
	require.NoError(t, err)
	require.Len(t, out.Bytes(), 100*90*4)
	for i := 3; i < out.Len(); i += 4 {
		require.Equal(t, byte(255), out.Bytes()[i])
	}
}

func TestConvertMJPEGInterlaced(t *testing.T) {
	p := Params{Width: 16, Height: 40, Interlaced: true, OddFieldFirst: true}

	// Each field is 20 rows, padded to 32.
	data, err := mjpeg.Encode(make([]byte, 16*40*3), 16, 40, mjpeg.Options{Interlaced: true})
	require.NoError(t, err)

	out, err := Convert(NewBuffer(data), FormatMJPEG, FormatAVIRGB, p)
	require.NoError(t, err)
	require.Len(t, out.Bytes(), 48*40)
}

func TestConvertErrors(t *testing.T) {
	t.Run("consumed", func(t *testing.T) {
		buf := NewBuffer(gradient(1, 1))
		_, err := Convert(buf, FormatRGB24, FormatRGBA32, Params{Width: 1, Height: 1})
		require.NoError(t, err)

		_, err = Convert(buf, FormatRGB24, FormatRGBA32, Params{Width: 1, Height: 1})
		require.ErrorIs(t, err, ErrConsumed)
	})
	t.Run("none", func(t *testing.T) {
		_, err := Convert(NewBuffer(nil), FormatNone, FormatRGB24, Params{})
		require.ErrorIs(t, err, ErrUnsupported)
	})
	t.Run("dimensions", func(t *testing.T) {
		_, err := Convert(NewBuffer(nil), FormatRGB24, FormatRGBA32, Params{})
		require.ErrorIs(t, err, ErrUnsupported)
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("mjpeg")
	require.NoError(t, err)
	require.Equal(t, FormatMJPEG, f)

	_, err = ParseFormat("none")
	require.ErrorIs(t, err, ErrUnsupported)
}
