// SPDX-License-Identifier: GPL-2.0-or-later

// Package memfile provides an in-memory file for building and parsing
// containers without touching the disk.
package memfile

import (
	"errors"
	"io"
)

// File in-memory io.ReadWriteSeeker.
type File struct {
	buf []byte
	pos int64
}

// New returns a file that holds data. The file takes ownership of data.
func New(data []byte) *File {
	return &File{buf: data}
}

// Read reads from the current position.
func (f *File) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write writes at the current position. Writing past the end of the
// file fills the gap with null bytes.
func (f *File) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		if end <= int64(cap(f.buf)) {
			old := len(f.buf)
			f.buf = f.buf[:end]
			for i := old; int64(i) < f.pos; i++ {
				f.buf[i] = 0
			}
		} else {
			grown := make([]byte, end, end+end/2)
			copy(grown, f.buf)
			f.buf = grown
		}
	}
	n := copy(f.buf[f.pos:], p)
	f.pos += int64(n)
	return n, nil
}

// ErrNegativeResultPos negative result pos.
var ErrNegativeResultPos = errors.New("negative result pos")

// ErrInvalidWhence invalid whence.
var ErrInvalidWhence = errors.New("invalid whence")

// Seek sets the position of the next Read or Write.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = int64(len(f.buf)) + offset
	default:
		return 0, ErrInvalidWhence
	}
	if newPos < 0 {
		return 0, ErrNegativeResultPos
	}
	f.pos = newPos
	return newPos, nil
}

// Bytes returns the content of the file.
func (f *File) Bytes() []byte {
	return f.buf
}

// Size returns the size of the file.
func (f *File) Size() int64 {
	return int64(len(f.buf))
}
