// SPDX-License-Identifier: GPL-2.0-or-later

// Package avi reads and writes RIFF AVI containers.
package avi

// Layout written by this package.
//
// RIFF 'AVI '
//   LIST 'hdrl'
//     avih           mainHeader, 56 bytes.
//     LIST 'strl'    one per stream.
//       strh         streamHeader, 56 bytes.
//       strf         bitmapInfoHeader, 40 bytes.
//   JUNK             pads the header region so frame data starts at 2048.
//   LIST 'movi'
//     LIST 'rec '    one per frame.
//       NNdb|NNdc    one data chunk per stream, padded to 4 bytes.
//   idx1             []indexEntry, 16 bytes each.

import (
	"errors"
	"fmt"
)

// FourCC four character code.
type FourCC [4]byte

func (f FourCC) String() string {
	return string(f[:])
}

// Chunk and list tags.
var (
	TagRIFF = FourCC{'R', 'I', 'F', 'F'}
	TagAVI  = FourCC{'A', 'V', 'I', ' '}
	TagLIST = FourCC{'L', 'I', 'S', 'T'}
	TagHdrl = FourCC{'h', 'd', 'r', 'l'}
	TagAvih = FourCC{'a', 'v', 'i', 'h'}
	TagStrl = FourCC{'s', 't', 'r', 'l'}
	TagStrh = FourCC{'s', 't', 'r', 'h'}
	TagStrf = FourCC{'s', 't', 'r', 'f'}
	TagJUNK = FourCC{'J', 'U', 'N', 'K'}
	TagMovi = FourCC{'m', 'o', 'v', 'i'}
	TagRec  = FourCC{'r', 'e', 'c', ' '}
	TagIdx1 = FourCC{'i', 'd', 'x', '1'}
)

// Stream types.
var (
	TypeVideo = FourCC{'v', 'i', 'd', 's'}
	TypeAudio = FourCC{'a', 'u', 'd', 's'}
	TypeMidi  = FourCC{'m', 'i', 'd', 's'}
	TypeText  = FourCC{'t', 'x', 't', 's'}
)

// Codec tags.
var (
	HandlerDIB   = FourCC{'D', 'I', 'B', ' '}
	HandlerMJPEG = FourCC{'M', 'J', 'P', 'G'}
)

// Main header flags.
const (
	FlagHasIndex       = uint32(0x10)
	FlagMustUseIndex   = uint32(0x20)
	FlagIsInterleaved  = uint32(0x100)
	FlagTrustCKType    = uint32(0x800)
	FlagWasCaptureFile = uint32(0x10000)
	FlagCopyrighted    = uint32(0x20000)
)

// Index entry flags.
const (
	IndexList     = uint32(0x1)
	IndexKeyframe = uint32(0x10)
	IndexNoTime   = uint32(0x100)
)

// Errors.
var (
	ErrOpen        = errors.New("could not open file")
	ErrFormat      = errors.New("invalid format")
	ErrCompression = errors.New("unsupported compression")
	ErrRead        = errors.New("read failed")
	ErrWrite       = errors.New("write failed")
	ErrAlloc       = errors.New("allocation failed")
	ErrNotFound    = errors.New("frame not found")
	ErrOption      = errors.New("invalid option")
)

// maxStreams chunk ids hold the stream number in two digits.
const maxStreams = 99

// DataChunkID returns the tag of a data chunk, for example '00db'.
func DataChunkID(stream int, typ FourCC, compressed bool) FourCC {
	id := FourCC{'0' + byte(stream/10%10), '0' + byte(stream%10), 'd', 'b'}
	switch {
	case typ == TypeAudio:
		id[2], id[3] = 'w', 'b'
	case compressed:
		id[3] = 'c'
	}
	return id
}

// IsData reports if the tag has the shape of a stream data chunk.
func (f FourCC) IsData() bool {
	if !isDigit(f[0]) || !isDigit(f[1]) {
		return false
	}
	if f[2] != 'd' && f[2] != 'w' {
		return false
	}
	return f[3] == 'b' || f[3] == 'c'
}

// Stream returns the stream number of a data chunk tag.
func (f FourCC) Stream() int {
	return int(f[0]-'0')*10 + int(f[1]-'0')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func formatErr(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, v...))
}
