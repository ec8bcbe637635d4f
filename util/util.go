package util

import "encoding/binary"

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Rounddown(v int, b int) int {
	return v - (v % b)
}

func Roundup(v int, b int) int {
	return Rounddown(v+b-1, b)
}

// Readn reads the n-byte little-endian word at a[off:]; user memory and
// stack frames use the 32-bit machine's byte order.
func Readn(a []uint8, n int, off int) int {
	switch n {
	case 8:
		return int(binary.LittleEndian.Uint64(a[off:]))
	case 4:
		return int(binary.LittleEndian.Uint32(a[off:]))
	case 2:
		return int(binary.LittleEndian.Uint16(a[off:]))
	case 1:
		return int(a[off])
	}
	panic("no")
}

func Writen(a []uint8, sz int, off int, val int) {
	switch sz {
	case 8:
		binary.LittleEndian.PutUint64(a[off:], uint64(val))
	case 4:
		binary.LittleEndian.PutUint32(a[off:], uint32(val))
	case 2:
		binary.LittleEndian.PutUint16(a[off:], uint16(val))
	case 1:
		a[off] = uint8(val)
	default:
		panic("no")
	}
}
