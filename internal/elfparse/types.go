package elfparse

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"
)

// Magic is the identification prefix every ELF file starts with.
var Magic = [4]byte{0x7F, 'E', 'L', 'F'}

const (
	identSize = 16

	header32Size = 36 // bytes following e_ident in an Elf32_Ehdr
	header64Size = 48 // bytes following e_ident in an Elf64_Ehdr

	segment32Size = 32
	segment64Size = 56
	section32Size = 40
	section64Size = 64

	// shnXIndex in e_shstrndx means the real index lives in the sh_link
	// field of section 0.
	shnXIndex = 0xffff
	// pnXNum in e_phnum means the real count lives in the sh_info field of
	// section 0.
	pnXNum = 0xffff
)

// Class is the word size of the file (EI_CLASS).
type Class uint8

const (
	Class32 Class = 1
	Class64 Class = 2
)

func (c Class) String() string {
	switch c {
	case Class32:
		return "ELF32"
	case Class64:
		return "ELF64"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

func (c Class) segmentSize() uint64 {
	if c == Class32 {
		return segment32Size
	}
	return segment64Size
}

func (c Class) sectionSize() uint64 {
	if c == Class32 {
		return section32Size
	}
	return section64Size
}

// Data is the byte order of multi-byte fields (EI_DATA).
type Data uint8

const (
	LittleEndian Data = 1
	BigEndian    Data = 2
)

func (d Data) String() string {
	switch d {
	case LittleEndian:
		return "little-endian"
	case BigEndian:
		return "big-endian"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(d))
	}
}

// ByteOrder returns the binary.ByteOrder for d.
func (d Data) ByteOrder() binary.ByteOrder {
	if d == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Type is the object file type (e_type).
type Type uint16

const (
	TypeNone         Type = 0
	TypeRelocatable  Type = 1
	TypeExecutable   Type = 2
	TypeSharedObject Type = 3
	TypeCore         Type = 4
)

var typeNames = map[Type]string{
	TypeNone:         "None",
	TypeRelocatable:  "Relocatable",
	TypeExecutable:   "Executable",
	TypeSharedObject: "Shared Object",
	TypeCore:         "Core",
}

// Known reports whether t is one of the standard types.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(t))
}

// Machine is the target architecture code (e_machine).
type Machine uint16

// String uses the names from debug/elf, e.g. "EM_X86_64".
func (m Machine) String() string {
	return elf.Machine(m).String()
}

// SegmentType is p_type.
type SegmentType uint32

const (
	SegmentNull        SegmentType = 0
	SegmentLoad        SegmentType = 1
	SegmentDynamic     SegmentType = 2
	SegmentInterp      SegmentType = 3
	SegmentNote        SegmentType = 4
	SegmentShlib       SegmentType = 5
	SegmentPhdr        SegmentType = 6
	SegmentTLS         SegmentType = 7
	SegmentGNUEHFrame  SegmentType = 0x6474e550
	SegmentGNUStack    SegmentType = 0x6474e551
	SegmentGNURelro    SegmentType = 0x6474e552
	SegmentGNUProperty SegmentType = 0x6474e553
)

var segmentTypeNames = map[SegmentType]string{
	SegmentNull:        "NULL",
	SegmentLoad:        "LOAD",
	SegmentDynamic:     "DYNAMIC",
	SegmentInterp:      "INTERP",
	SegmentNote:        "NOTE",
	SegmentShlib:       "SHLIB",
	SegmentPhdr:        "PHDR",
	SegmentTLS:         "TLS",
	SegmentGNUEHFrame:  "GNU_EH_FRAME",
	SegmentGNUStack:    "GNU_STACK",
	SegmentGNURelro:    "GNU_RELRO",
	SegmentGNUProperty: "GNU_PROPERTY",
}

func (t SegmentType) String() string {
	if name, ok := segmentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", uint32(t))
}

// SegmentFlags is p_flags.
type SegmentFlags uint32

const (
	SegmentFlagX SegmentFlags = 1 << iota
	SegmentFlagW
	SegmentFlagR
)

// String renders the flags readelf style, e.g. "R-X".
func (f SegmentFlags) String() string {
	var b strings.Builder
	for _, fl := range []struct {
		bit  SegmentFlags
		char byte
	}{{SegmentFlagR, 'R'}, {SegmentFlagW, 'W'}, {SegmentFlagX, 'X'}} {
		if f&fl.bit != 0 {
			b.WriteByte(fl.char)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// SectionType is sh_type.
type SectionType uint32

const (
	SectionNull         SectionType = 0
	SectionProgBits     SectionType = 1
	SectionSymTab       SectionType = 2
	SectionStrTab       SectionType = 3
	SectionRela         SectionType = 4
	SectionHash         SectionType = 5
	SectionDynamic      SectionType = 6
	SectionNote         SectionType = 7
	SectionNoBits       SectionType = 8
	SectionRel          SectionType = 9
	SectionShlib        SectionType = 10
	SectionDynSym       SectionType = 11
	SectionInitArray    SectionType = 14
	SectionFiniArray    SectionType = 15
	SectionPreinitArray SectionType = 16
	SectionGroup        SectionType = 17
	SectionSymTabShndx  SectionType = 18
	SectionGNUAttrs     SectionType = 0x6ffffff5
	SectionGNUHash      SectionType = 0x6ffffff6
	SectionGNUVerdef    SectionType = 0x6ffffffd
	SectionGNUVerneed   SectionType = 0x6ffffffe
	SectionGNUVersym    SectionType = 0x6fffffff
)

var sectionTypeNames = map[SectionType]string{
	SectionNull:         "NULL",
	SectionProgBits:     "PROGBITS",
	SectionSymTab:       "SYMTAB",
	SectionStrTab:       "STRTAB",
	SectionRela:         "RELA",
	SectionHash:         "HASH",
	SectionDynamic:      "DYNAMIC",
	SectionNote:         "NOTE",
	SectionNoBits:       "NOBITS",
	SectionRel:          "REL",
	SectionShlib:        "SHLIB",
	SectionDynSym:       "DYNSYM",
	SectionInitArray:    "INIT_ARRAY",
	SectionFiniArray:    "FINI_ARRAY",
	SectionPreinitArray: "PREINIT_ARRAY",
	SectionGroup:        "GROUP",
	SectionSymTabShndx:  "SYMTAB_SHNDX",
	SectionGNUAttrs:     "GNU_ATTRIBUTES",
	SectionGNUHash:      "GNU_HASH",
	SectionGNUVerdef:    "GNU_VERDEF",
	SectionGNUVerneed:   "GNU_VERNEED",
	SectionGNUVersym:    "GNU_VERSYM",
}

func (t SectionType) String() string {
	if name, ok := sectionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", uint32(t))
}

// Identification is the decoded e_ident block.
type Identification struct {
	Class      Class `json:"class"`
	Data       Data  `json:"data"`
	Version    uint8 `json:"version"`
	OSABI      uint8 `json:"os_abi"`
	ABIVersion uint8 `json:"abi_version"`
}

// FileHeader is the ELF file header normalized to 64-bit widths.
type FileHeader struct {
	Ident     Identification `json:"ident"`
	Type      Type           `json:"type"`
	Machine   Machine        `json:"machine"`
	Version   uint32         `json:"version"`
	Entry     uint64         `json:"entry"`
	PhOff     uint64         `json:"phoff"`
	ShOff     uint64         `json:"shoff"`
	Flags     uint32         `json:"flags"`
	EhSize    uint16         `json:"ehsize"`
	PhEntSize uint16         `json:"phentsize"`
	PhNum     uint16         `json:"phnum"`
	ShEntSize uint16         `json:"shentsize"`
	ShNum     uint16         `json:"shnum"`
	ShStrNdx  uint16         `json:"shstrndx"`
}

// SegmentHeader is one program header table entry.
type SegmentHeader struct {
	Type     SegmentType  `json:"type"`
	Flags    SegmentFlags `json:"flags"`
	Offset   uint64       `json:"offset"`
	VAddr    uint64       `json:"vaddr"`
	PAddr    uint64       `json:"paddr"`
	FileSize uint64       `json:"filesz"`
	MemSize  uint64       `json:"memsz"`
	Align    uint64       `json:"align"`
}

// SectionHeader is one section header table entry. Name is filled by the
// name resolution pass; NameResolved is false when Name is a placeholder.
type SectionHeader struct {
	NameOffset   uint32      `json:"name_offset"`
	Name         string      `json:"name"`
	NameResolved bool        `json:"name_resolved"`
	Type         SectionType `json:"type"`
	Flags        uint64      `json:"flags"`
	Addr         uint64      `json:"addr"`
	Offset       uint64      `json:"offset"`
	Size         uint64      `json:"size"`
	Link         uint32      `json:"link"`
	Info         uint32      `json:"info"`
	AddrAlign    uint64      `json:"addralign"`
	EntSize      uint64      `json:"entsize"`
}

// HasFileData reports whether the section occupies bytes in the file.
func (s SectionHeader) HasFileData() bool {
	return s.Type != SectionNoBits && s.Type != SectionNull
}
