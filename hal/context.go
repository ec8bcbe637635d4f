package hal

import "encoding/binary"

import "github.com/NomadArchitect/microkernel/defs"

// Context_t is the saved execution context of a thread.
type Context_t struct {
	Pgdir    uintptr
	Stacktop uintptr
	// offset of the saved frame inside the kernel stack
	Sp uintptr
}

const (
	EFLAGS_IF = 1 << 9
	WORDSZ    = 4
	// saved flags, user entry, user stack
	FRAMEWORDS = 3
)

// Forge_stack builds the frame that returns to user mode at entry with the
// user stack at top. the frame is written at the end of stack; the returned
// sp is its offset.
func Forge_stack(top uintptr, stack []byte, entry uintptr) (uintptr, bool) {
	fsz := FRAMEWORDS * WORDSZ
	if top == 0 || top%WORDSZ != 0 || len(stack) < fsz {
		return 0, false
	}
	sp := len(stack)
	push := func(w uintptr) {
		sp -= WORDSZ
		binary.LittleEndian.PutUint32(stack[sp:], uint32(w))
	}
	push(top)
	push(entry)
	push(EFLAGS_IF)
	return uintptr(sp), true
}

// Frame decodes a forged frame.
func Frame(stack []byte, sp uintptr) (flags, entry, top uintptr) {
	if int(sp)+FRAMEWORDS*WORDSZ > len(stack) {
		panic("bad frame")
	}
	w := func(i int) uintptr {
		return uintptr(binary.LittleEndian.Uint32(stack[int(sp)+i*WORDSZ:]))
	}
	return w(0), w(1), w(2)
}

func Context_create(ctx *Context_t, pgdir, stacktop, sp uintptr) defs.Err_t {
	if ctx == nil || sp > stacktop {
		return -defs.EINVAL
	}
	*ctx = Context_t{Pgdir: pgdir, Stacktop: stacktop, Sp: sp}
	return 0
}
