package elf

import "bytes"
import delf "debug/elf"
import "encoding/binary"
import "io"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/vm"

const USER_BASE_VIRT = defs.USER_BASE_VIRT

var log = klog.Mk("elf")

// Loader_i loads an executable image into an address space and returns its
// entry point, or 0 on failure. Check rejects the images Load would reject
// without touching any address space.
type Loader_i interface {
	Check(image []uint8) defs.Err_t
	Load(image []uint8, vmem vm.Vmem_i) uintptr
}

// Elf32_t loads 32-bit little-endian x86 executables.
type Elf32_t struct{}

// _open parses image and validates its header, its loadable segments and
// its entry point.
func (Elf32_t) _open(image []uint8) (*delf.File, defs.Err_t) {
	f, err := delf.NewFile(bytes.NewReader(image))
	if err != nil {
		log.Warn("bad image: %v", err)
		return nil, -defs.EINVAL
	}
	if f.Class != delf.ELFCLASS32 || f.Data != delf.ELFDATA2LSB ||
		f.Machine != delf.EM_386 || f.Type != delf.ET_EXEC {
		log.Warn("not an executable for this machine")
		f.Close()
		return nil, -defs.EINVAL
	}
	nload := 0
	for _, p := range f.Progs {
		if p.Type != delf.PT_LOAD {
			continue
		}
		if !_segok(p) || p.Off+p.Filesz > uint64(len(image)) {
			log.Warn("bad segment at %#x", p.Vaddr)
			f.Close()
			return nil, -defs.EINVAL
		}
		if p.Memsz != 0 {
			nload++
		}
	}
	if nload == 0 || f.Entry != USER_BASE_VIRT {
		log.Warn("bad entry %#x", f.Entry)
		f.Close()
		return nil, -defs.EINVAL
	}
	return f, 0
}

func (e Elf32_t) Check(image []uint8) defs.Err_t {
	f, err := e._open(image)
	if err != 0 {
		return err
	}
	f.Close()
	return 0
}

func (e Elf32_t) Load(image []uint8, vmem vm.Vmem_i) uintptr {
	if vmem == nil {
		return 0
	}
	f, err := e._open(image)
	if err != 0 {
		return 0
	}
	defer f.Close()
	for _, p := range f.Progs {
		if p.Type != delf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		if vmem.Attach(uintptr(p.Vaddr), uintptr(p.Memsz)) != 0 {
			return 0
		}
		buf := make([]uint8, p.Filesz)
		if _, err := io.ReadFull(p.Open(), buf); err != nil {
			log.Warn("short segment: %v", err)
			return 0
		}
		if vmem.K2user(buf, int(p.Vaddr)) != 0 {
			return 0
		}
	}
	return uintptr(f.Entry)
}

func _segok(p *delf.Prog) bool {
	end := p.Vaddr + p.Memsz
	return p.Filesz <= p.Memsz && end >= p.Vaddr &&
		p.Vaddr >= USER_BASE_VIRT && end <= defs.USER_END_VIRT
}

// Mkimage builds an executable with a single segment holding payload at
// vaddr.
func Mkimage(entry, vaddr uint32, payload []uint8) []uint8 {
	const ehsz = 52
	const phsz = 32
	hdr := delf.Header32{
		Type:      uint16(delf.ET_EXEC),
		Machine:   uint16(delf.EM_386),
		Version:   uint32(delf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehsz,
		Ehsize:    ehsz,
		Phentsize: phsz,
		Phnum:     1,
	}
	copy(hdr.Ident[:], delf.ELFMAG)
	hdr.Ident[delf.EI_CLASS] = uint8(delf.ELFCLASS32)
	hdr.Ident[delf.EI_DATA] = uint8(delf.ELFDATA2LSB)
	hdr.Ident[delf.EI_VERSION] = uint8(delf.EV_CURRENT)
	ph := delf.Prog32{
		Type:   uint32(delf.PT_LOAD),
		Off:    ehsz + phsz,
		Vaddr:  vaddr,
		Paddr:  vaddr,
		Filesz: uint32(len(payload)),
		Memsz:  uint32(len(payload)),
		Flags:  uint32(delf.PF_R | delf.PF_X),
		Align:  defs.PAGE_SIZE,
	}
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, &hdr)
	binary.Write(&b, binary.LittleEndian, &ph)
	b.Write(payload)
	return b.Bytes()
}
