package object

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/orizon-lang/dwarfemit/internal/debug/sink"
)

const (
	mhMagic64          = 0xfeedfacf
	cpuTypeX86_64      = 0x01000007
	cpuSubtypeX86_64   = 0x00000003
	mhObject           = 0x1
	lcSegment64        = 0x19
	sAttrDebug         = 0x02000000
	dwarfSegment       = "__DWARF"
	machoSectionPrefix = "__"
)

type machHeader64 struct {
	Magic      uint32
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
	Reserved   uint32
}

type segmentCommand64 struct {
	Cmd      uint32
	Cmdsize  uint32
	Segname  [16]byte
	Vmaddr   uint64
	Vmsize   uint64
	Fileoff  uint64
	Filesize uint64
	Maxprot  int32
	Initprot int32
	Nsects   uint32
	Flags    uint32
}

type section64 struct {
	Sectname  [16]byte
	Segname   [16]byte
	Addr      uint64
	Size      uint64
	Offset    uint32
	Align     uint32
	Reloff    uint32
	Nreloc    uint32
	Flags     uint32
	Reserved1 uint32
	Reserved2 uint32
	Reserved3 uint32
}

func setPaddedName(dst *[16]byte, name string) {
	copy(dst[:], name)
}

// MachOSectionName maps ".debug_info" to "__debug_info". Mach-O section
// names are cut at sixteen bytes.
func MachOSectionName(name string) string {
	n := machoSectionPrefix + strings.TrimPrefix(name, ".")
	if len(n) > 16 {
		n = n[:16]
	}
	return n
}

// buildMachO lays out a 64-bit Mach-O object with a single __DWARF
// segment: [mach_header_64][segment_command_64 + sections][section data].
func buildMachO(secs []sink.Section) ([]byte, error) {
	le := binary.LittleEndian
	mhSize := uint32(binary.Size(machHeader64{}))
	cmdsize := uint32(binary.Size(segmentCommand64{})) + uint32(binary.Size(section64{}))*uint32(len(secs))

	start := mhSize + cmdsize
	offsets := make([]uint32, len(secs))
	cur := start
	for i, s := range secs {
		if len(s.Data) == 0 {
			continue
		}
		offsets[i] = cur
		cur += uint32(len(s.Data))
	}

	buf := &bytes.Buffer{}
	buf.Grow(int(cur))
	mh := machHeader64{
		Magic:      mhMagic64,
		CPUType:    cpuTypeX86_64,
		CPUSubtype: cpuSubtypeX86_64,
		FileType:   mhObject,
		NCmds:      1,
		SizeOfCmds: cmdsize,
	}
	if err := binary.Write(buf, le, mh); err != nil {
		return nil, err
	}

	seg := segmentCommand64{
		Cmd:      lcSegment64,
		Cmdsize:  cmdsize,
		Fileoff:  uint64(start),
		Filesize: uint64(cur - start),
		Maxprot:  7,
		Initprot: 7,
		Nsects:   uint32(len(secs)),
	}
	setPaddedName(&seg.Segname, dwarfSegment)
	if err := binary.Write(buf, le, seg); err != nil {
		return nil, err
	}

	for i, s := range secs {
		sec := section64{
			Size:   uint64(len(s.Data)),
			Offset: offsets[i],
			Flags:  sAttrDebug,
		}
		setPaddedName(&sec.Sectname, MachOSectionName(s.Name))
		setPaddedName(&sec.Segname, dwarfSegment)
		if err := binary.Write(buf, le, sec); err != nil {
			return nil, err
		}
	}

	for _, s := range secs {
		buf.Write(s.Data)
	}
	return buf.Bytes(), nil
}
