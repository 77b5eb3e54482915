package object

import (
	"bytes"
	"encoding/binary"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

const (
	elfHeaderSize  = 64
	elfSectionSize = 64
	etREL          = 1
	emX86_64       = 62
	shtPROGBITS    = 1
	shtSTRTAB      = 3
)

// buildELF lays out an ELF64 ET_REL file:
// [header][section payloads][.shstrtab][section header table].
func buildELF(secs []sink.Section) ([]byte, error) {
	shstr := &bytes.Buffer{}
	shstr.WriteByte(0)
	nameOff := make([]uint32, len(secs)+1)
	for i, s := range secs {
		nameOff[i] = uint32(shstr.Len())
		shstr.WriteString(s.Name)
		shstr.WriteByte(0)
	}
	nameOff[len(secs)] = uint32(shstr.Len())
	shstr.WriteString(".shstrtab")
	shstr.WriteByte(0)

	cur := uint64(elfHeaderSize)
	off := make([]uint64, len(secs))
	for i, s := range secs {
		off[i] = cur
		cur += uint64(len(s.Data))
	}
	shstrOff := cur
	cur += uint64(shstr.Len())
	// section headers are 8-byte aligned
	shoff := (cur + 7) &^ 7
	shnum := uint16(len(secs) + 2)

	le := binary.LittleEndian
	file := &bytes.Buffer{}
	file.Grow(int(shoff) + elfSectionSize*int(shnum))

	ehdr := make([]byte, elfHeaderSize)
	copy(ehdr, []byte{0x7f, 'E', 'L', 'F'})
	ehdr[4] = 2 // ELFCLASS64
	ehdr[5] = 1 // ELFDATA2LSB
	ehdr[6] = 1 // EV_CURRENT
	le.PutUint16(ehdr[16:], etREL)
	le.PutUint16(ehdr[18:], emX86_64)
	le.PutUint32(ehdr[20:], 1) // e_version
	le.PutUint64(ehdr[40:], shoff)
	le.PutUint16(ehdr[52:], elfHeaderSize)
	le.PutUint16(ehdr[58:], elfSectionSize)
	le.PutUint16(ehdr[60:], shnum)
	le.PutUint16(ehdr[62:], shnum-1) // e_shstrndx
	file.Write(ehdr)

	for _, s := range secs {
		file.Write(s.Data)
	}
	file.Write(shstr.Bytes())
	for uint64(file.Len()) < shoff {
		file.WriteByte(0)
	}

	file.Write(make([]byte, elfSectionSize))
	writeShdr := func(name, typ uint32, off, size uint64) {
		sh := make([]byte, elfSectionSize)
		le.PutUint32(sh[0:], name)
		le.PutUint32(sh[4:], typ)
		le.PutUint64(sh[24:], off)
		le.PutUint64(sh[32:], size)
		le.PutUint64(sh[48:], 1) // sh_addralign
		file.Write(sh)
	}
	for i, s := range secs {
		writeShdr(nameOff[i], shtPROGBITS, off[i], uint64(len(s.Data)))
	}
	writeShdr(nameOff[len(secs)], shtSTRTAB, shstrOff, uint64(shstr.Len()))
	return file.Bytes(), nil
}
