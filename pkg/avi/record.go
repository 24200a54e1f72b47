// SPDX-License-Identifier: GPL-2.0-or-later

package avi

// Record sizes in bytes.
const (
	chunkHeaderSize  = 8
	listHeaderSize   = 12
	mainHeaderSize   = 56
	streamHeaderSize = 56
	bitmapHeaderSize = 40
	indexEntrySize   = 16
)

// MainHeader 'avih' chunk.
type MainHeader struct {
	MicroSecPerFrame    uint32
	MaxBytesPerSec      uint32
	PaddingGranularity  uint32
	Flags               uint32
	TotalFrames         uint32
	InitialFrames       uint32
	Streams             uint32
	SuggestedBufferSize uint32
	Width               uint32
	Height              uint32
	Reserved            [4]uint32
}

// Marshal main header.
func (h MainHeader) Marshal() []byte {
	out := make([]byte, mainHeaderSize)
	pos := 0
	putUint32(out, &pos, h.MicroSecPerFrame)
	putUint32(out, &pos, h.MaxBytesPerSec)
	putUint32(out, &pos, h.PaddingGranularity)
	putUint32(out, &pos, h.Flags)
	putUint32(out, &pos, h.TotalFrames)
	putUint32(out, &pos, h.InitialFrames)
	putUint32(out, &pos, h.Streams)
	putUint32(out, &pos, h.SuggestedBufferSize)
	putUint32(out, &pos, h.Width)
	putUint32(out, &pos, h.Height)
	for _, r := range h.Reserved {
		putUint32(out, &pos, r)
	}
	return out
}

// Unmarshal main header, buf must be at least 56 bytes.
func (h *MainHeader) Unmarshal(buf []byte) {
	pos := 0
	h.MicroSecPerFrame = getUint32(buf, &pos)
	h.MaxBytesPerSec = getUint32(buf, &pos)
	h.PaddingGranularity = getUint32(buf, &pos)
	h.Flags = getUint32(buf, &pos)
	h.TotalFrames = getUint32(buf, &pos)
	h.InitialFrames = getUint32(buf, &pos)
	h.Streams = getUint32(buf, &pos)
	h.SuggestedBufferSize = getUint32(buf, &pos)
	h.Width = getUint32(buf, &pos)
	h.Height = getUint32(buf, &pos)
	for i := range h.Reserved {
		h.Reserved[i] = getUint32(buf, &pos)
	}
}

// Rect bounding rectangle of a stream.
type Rect struct {
	Left   int16
	Top    int16
	Right  int16
	Bottom int16
}

// StreamHeader 'strh' chunk.
type StreamHeader struct {
	Type                FourCC
	Handler             FourCC
	Flags               uint32
	Priority            uint16
	Language            uint16
	InitialFrames       uint32
	Scale               uint32
	Rate                uint32
	Start               uint32
	Length              uint32
	SuggestedBufferSize uint32
	Quality             uint32
	SampleSize          uint32
	Frame               Rect
}

// Marshal stream header.
func (h StreamHeader) Marshal() []byte {
	out := make([]byte, streamHeaderSize)
	pos := 0
	putFourCC(out, &pos, h.Type)
	putFourCC(out, &pos, h.Handler)
	putUint32(out, &pos, h.Flags)
	putUint16(out, &pos, h.Priority)
	putUint16(out, &pos, h.Language)
	putUint32(out, &pos, h.InitialFrames)
	putUint32(out, &pos, h.Scale)
	putUint32(out, &pos, h.Rate)
	putUint32(out, &pos, h.Start)
	putUint32(out, &pos, h.Length)
	putUint32(out, &pos, h.SuggestedBufferSize)
	putUint32(out, &pos, h.Quality)
	putUint32(out, &pos, h.SampleSize)
	putInt16(out, &pos, h.Frame.Left)
	putInt16(out, &pos, h.Frame.Top)
	putInt16(out, &pos, h.Frame.Right)
	putInt16(out, &pos, h.Frame.Bottom)
	return out
}

// Unmarshal stream header, buf must be at least 56 bytes.
func (h *StreamHeader) Unmarshal(buf []byte) {
	pos := 0
	h.Type = getFourCC(buf, &pos)
	h.Handler = getFourCC(buf, &pos)
	h.Flags = getUint32(buf, &pos)
	h.Priority = getUint16(buf, &pos)
	h.Language = getUint16(buf, &pos)
	h.InitialFrames = getUint32(buf, &pos)
	h.Scale = getUint32(buf, &pos)
	h.Rate = getUint32(buf, &pos)
	h.Start = getUint32(buf, &pos)
	h.Length = getUint32(buf, &pos)
	h.SuggestedBufferSize = getUint32(buf, &pos)
	h.Quality = getUint32(buf, &pos)
	h.SampleSize = getUint32(buf, &pos)
	h.Frame.Left = getInt16(buf, &pos)
	h.Frame.Top = getInt16(buf, &pos)
	h.Frame.Right = getInt16(buf, &pos)
	h.Frame.Bottom = getInt16(buf, &pos)
}

// BitmapInfoHeader 'strf' chunk of a video stream.
type BitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32 // Negative for top-down images.
	Planes        uint16
	BitCount      uint16
	Compression   FourCC
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

// Marshal bitmap header.
func (h BitmapInfoHeader) Marshal() []byte {
	out := make([]byte, bitmapHeaderSize)
	pos := 0
	putUint32(out, &pos, h.Size)
	putInt32(out, &pos, h.Width)
	putInt32(out, &pos, h.Height)
	putUint16(out, &pos, h.Planes)
	putUint16(out, &pos, h.BitCount)
	putFourCC(out, &pos, h.Compression)
	putUint32(out, &pos, h.SizeImage)
	putInt32(out, &pos, h.XPelsPerMeter)
	putInt32(out, &pos, h.YPelsPerMeter)
	putUint32(out, &pos, h.ClrUsed)
	putUint32(out, &pos, h.ClrImportant)
	return out
}

// Unmarshal bitmap header, buf must be at least 40 bytes.
func (h *BitmapInfoHeader) Unmarshal(buf []byte) {
	pos := 0
	h.Size = getUint32(buf, &pos)
	h.Width = getInt32(buf, &pos)
	h.Height = getInt32(buf, &pos)
	h.Planes = getUint16(buf, &pos)
	h.BitCount = getUint16(buf, &pos)
	h.Compression = getFourCC(buf, &pos)
	h.SizeImage = getUint32(buf, &pos)
	h.XPelsPerMeter = getInt32(buf, &pos)
	h.YPelsPerMeter = getInt32(buf, &pos)
	h.ClrUsed = getUint32(buf, &pos)
	h.ClrImportant = getUint32(buf, &pos)
}

// IndexEntry 'idx1' entry.
type IndexEntry struct {
	ChunkID FourCC
	Flags   uint32

	// Offset of the chunk header relative to the 'movi' tag.
	Offset uint32

	// Size of the chunk payload, zero repeats the previous frame.
	Size uint32
}

// Marshal index entry.
func (e IndexEntry) Marshal() []byte {
	out := make([]byte, indexEntrySize)
	pos := 0
	putFourCC(out, &pos, e.ChunkID)
	putUint32(out, &pos, e.Flags)
	putUint32(out, &pos, e.Offset)
	putUint32(out, &pos, e.Size)
	return out
}

// Unmarshal index entry, buf must be at least 16 bytes.
func (e *IndexEntry) Unmarshal(buf []byte) {
	pos := 0
	e.ChunkID = getFourCC(buf, &pos)
	e.Flags = getUint32(buf, &pos)
	e.Offset = getUint32(buf, &pos)
	e.Size = getUint32(buf, &pos)
}

type chunkHeader struct {
	tag  FourCC
	size uint32
}

func (h chunkHeader) marshal() []byte {
	out := make([]byte, chunkHeaderSize)
	pos := 0
	putFourCC(out, &pos, h.tag)
	putUint32(out, &pos, h.size)
	return out
}

func (h *chunkHeader) unmarshal(buf []byte) {
	pos := 0
	h.tag = getFourCC(buf, &pos)
	h.size = getUint32(buf, &pos)
}

// listHeader 'LIST' chunk followed by the list type.
type listHeader struct {
	size uint32
	typ  FourCC
}

func (h listHeader) marshal() []byte {
	out := make([]byte, listHeaderSize)
	pos := 0
	putFourCC(out, &pos, TagLIST)
	putUint32(out, &pos, h.size)
	putFourCC(out, &pos, h.typ)
	return out
}

// padded returns size rounded up to a 4 byte boundary.
func padded(size int) int {
	return (size + 3) &^ 3
}
