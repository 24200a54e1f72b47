// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import "encoding/binary"

// All on-disk integers are little-endian regardless of host.

func putFourCC(buf []byte, pos *int, v FourCC) {
	*pos += copy(buf[*pos:], v[:])
}

func putUint16(buf []byte, pos *int, v uint16) {
	binary.LittleEndian.PutUint16(buf[*pos:], v)
	*pos += 2
}

func putUint32(buf []byte, pos *int, v uint32) {
	binary.LittleEndian.PutUint32(buf[*pos:], v)
	*pos += 4
}

func putInt16(buf []byte, pos *int, v int16) {
	putUint16(buf, pos, uint16(v))
}

func putInt32(buf []byte, pos *int, v int32) {
	putUint32(buf, pos, uint32(v))
}

func getFourCC(buf []byte, pos *int) FourCC {
	var v FourCC
	*pos += copy(v[:], buf[*pos:*pos+4])
	return v
}

func getUint16(buf []byte, pos *int) uint16 {
	v := binary.LittleEndian.Uint16(buf[*pos:])
	*pos += 2
	return v
}

func getUint32(buf []byte, pos *int) uint32 {
	v := binary.LittleEndian.Uint32(buf[*pos:])
	*pos += 4
	return v
}

func getInt16(buf []byte, pos *int) int16 {
	return int16(getUint16(buf, pos))
}

func getInt32(buf []byte, pos *int) int32 {
	return int32(getUint32(buf, pos))
}
