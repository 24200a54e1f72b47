// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import "fmt"

// Index frame index. The writer reserves streams+1 slots per frame, the
// record entry first followed by one data entry per stream.
type Index []IndexEntry

// slot returns the position of the record entry of a frame.
func slot(frame, streams int) int {
	return frame * (streams + 1)
}

// grow extends the index to n entries, existing entries are kept.
func (idx Index) grow(n int) Index {
	if n <= len(idx) {
		return idx
	}
	if n <= cap(idx) {
		return idx[:n]
	}
	out := make(Index, n, n+n/2)
	copy(out, idx)
	return out
}

// find returns the data entry holding a frame of a stream. A zero-size
// entry repeats the frame before it, the lookup moves back until it
// reaches a frame with data.
func (idx Index) find(stream, frame int) (IndexEntry, error) {
	target := frame
	i, cur := 0, -1

	rewind := true
	for rewind && frame > -1 {
		i, cur, rewind = 0, -1, false

		for cur < frame && i < len(idx) {
			e := idx[i]
			if e.ChunkID.IsData() && e.ChunkID.Stream() == stream {
				if cur == frame-1 && e.Size == 0 {
					rewind = true
					frame--
				} else {
					cur++
				}
			}
			i++
		}
	}

	if frame < 0 || cur != frame || idx[i-1].Size == 0 {
		return IndexEntry{}, fmt.Errorf("%w: stream %d frame %d", ErrNotFound, stream, target)
	}
	return idx[i-1], nil
}

// FrameCount returns the number of data entries of a stream,
// repeated frames included.
func (idx Index) FrameCount(stream int) int {
	n := 0
	for _, e := range idx {
		if e.ChunkID.IsData() && e.ChunkID.Stream() == stream {
			n++
		}
	}
	return n
}
