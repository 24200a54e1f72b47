// SPDX-License-Identifier: GPL-2.0-or-later

package mjpeg

// firstFieldRows returns the number of rows in the first field.
func firstFieldRows(height int, oddFirst bool) int {
	if oddFirst {
		return height / 2
	}
	return (height + 1) / 2
}

// fieldRow maps natural row y to its row in the stacked field layout.
func fieldRow(y, height int, oddFirst bool) int {
	first := 0
	if oddFirst {
		first = 1
	}
	if y&1 == first {
		return y / 2
	}
	return firstFieldRows(height, oddFirst) + y/2
}

// Deinterlace reorders scanlines from natural top-to-bottom order into two
// stacked fields with the first field on top. oddFirst makes rows 1, 3, ...
// the first field.
func Deinterlace(src []byte, width, height, bytesPerPixel int, oddFirst bool) []byte {
	stride := width * bytesPerPixel
	dst := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		row := fieldRow(y, height, oddFirst)
		copy(dst[row*stride:(row+1)*stride], src[y*stride:(y+1)*stride])
	}
	return dst
}

// Interlace is the inverse of Deinterlace.
func Interlace(src []byte, width, height, bytesPerPixel int, oddFirst bool) []byte {
	stride := width * bytesPerPixel
	dst := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		row := fieldRow(y, height, oddFirst)
		copy(dst[y*stride:(y+1)*stride], src[row*stride:(row+1)*stride])
	}
	return dst
}
