package object

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
	oerrors "github.com/orizon-lang/dwarfemit/internal/errors"
)

const (
	coffFileHeaderSize    = 20
	coffSectionHeaderSize = 40
	coffMachineAMD64      = 0x8664

	scnCntInitializedData = 0x00000040
	scnAlign1Bytes        = 0x00100000
	scnMemDiscardable     = 0x02000000
	scnMemRead            = 0x40000000
)

// buildCOFF lays out a PE COFF object:
// [file header][section headers][section data][string table].
// Names longer than eight bytes go to the string table as "/offset".
func buildCOFF(secs []sink.Section) ([]byte, error) {
	if len(secs) > 0xffff {
		return nil, oerrors.EncodingError("too many sections for COFF", map[string]interface{}{"sections": len(secs)})
	}
	strtab := &bytes.Buffer{}
	nameField := make([][8]byte, len(secs))
	for i, s := range secs {
		if len(s.Name) <= 8 {
			copy(nameField[i][:], s.Name)
			continue
		}
		// offsets count the 4-byte size field
		ref := "/" + strconv.Itoa(strtab.Len()+4)
		if len(ref) > 8 {
			return nil, oerrors.EncodingError("string table too large for section names", map[string]interface{}{"section": s.Name})
		}
		copy(nameField[i][:], ref)
		strtab.WriteString(s.Name)
		strtab.WriteByte(0)
	}

	align4 := func(v uint32) uint32 { return (v + 3) &^ 3 }
	cur := uint32(coffFileHeaderSize + coffSectionHeaderSize*len(secs))
	ptr := make([]uint32, len(secs))
	for i, s := range secs {
		if len(s.Data) == 0 {
			continue
		}
		cur = align4(cur)
		ptr[i] = cur
		cur += uint32(len(s.Data))
	}
	symtab := align4(cur)

	le := binary.LittleEndian
	buf := &bytes.Buffer{}
	buf.Grow(int(symtab) + 4 + strtab.Len())
	write := func(v interface{}) { _ = binary.Write(buf, le, v) }

	write(uint16(coffMachineAMD64))
	write(uint16(len(secs)))
	write(uint32(0)) // TimeDateStamp
	// The string table follows an empty symbol table.
	write(symtab)
	write(uint32(0)) // NumberOfSymbols
	write(uint16(0)) // SizeOfOptionalHeader
	write(uint16(0)) // Characteristics

	for i, s := range secs {
		buf.Write(nameField[i][:])
		write(uint32(0)) // VirtualSize
		write(uint32(0)) // VirtualAddress
		write(uint32(len(s.Data)))
		write(ptr[i])
		write(uint32(0)) // PointerToRelocations
		write(uint32(0)) // PointerToLinenumbers
		write(uint16(0))
		write(uint16(0))
		write(uint32(scnCntInitializedData | scnAlign1Bytes | scnMemDiscardable | scnMemRead))
	}

	padTo := func(pos uint32) {
		for uint32(buf.Len()) < pos {
			buf.WriteByte(0)
		}
	}
	for i, s := range secs {
		if len(s.Data) == 0 {
			continue
		}
		padTo(ptr[i])
		buf.Write(s.Data)
	}
	padTo(symtab)
	write(uint32(4 + strtab.Len()))
	buf.Write(strtab.Bytes())
	return buf.Bytes(), nil
}
