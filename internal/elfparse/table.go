package elfparse

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// tableEnd returns offset + entSize*count, failing on uint64 overflow.
func tableEnd(offset, entSize, count uint64) (uint64, error) {
	hi, length := bits.Mul64(entSize, count)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d entries of %d bytes", ErrArithmeticOverflow, count, entSize)
	}
	end, carry := bits.Add64(offset, length, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: table at %#x of %d bytes", ErrArithmeticOverflow, offset, length)
	}
	return end, nil
}

// readTable decodes count fixed-size records starting at offset. The full
// extent is checked against the source before anything is read, so a
// truncated table never yields partially decoded entries.
func readTable[T any](src ByteSource, stage Stage, offset, entSize, count uint64, decode func(raw []byte) T) ([]T, error) {
	if count == 0 {
		return []T{}, nil
	}
	end, err := tableEnd(offset, entSize, count)
	if err != nil {
		return nil, newDecodeError(stage, -1, offset, err)
	}
	if size := src.Size(); size < 0 || end > uint64(size) {
		return nil, newDecodeError(stage, -1, offset,
			fmt.Errorf("%w: needs %d bytes, file has %d", ErrTruncatedTable, end, src.Size()))
	}

	out := make([]T, 0, count)
	buf := make([]byte, entSize)
	for i := uint64(0); i < count; i++ {
		off := offset + i*entSize
		if err := readInto(src, off, buf); err != nil {
			return nil, newDecodeError(stage, int(i), off, truncation(err, ErrTruncatedTable))
		}
		out = append(out, decode(buf))
	}
	return out, nil
}

// checkEntrySize enforces that a non-empty table uses the record size of
// the file's class.
func checkEntrySize(stage Stage, offset, count uint64, got uint16, want uint64) error {
	if count > 0 && uint64(got) != want {
		return newDecodeError(stage, -1, offset,
			fmt.Errorf("%w: got %d, want %d", ErrInvalidEntrySize, got, want))
	}
	return nil
}

// sectionZero decodes the first section header, which carries the real
// table counts when they do not fit the file header fields.
func sectionZero(src ByteSource, stage Stage, hdr *FileHeader) (SectionHeader, error) {
	want := hdr.Ident.Class.sectionSize()
	if err := checkEntrySize(stage, hdr.ShOff, 1, hdr.ShEntSize, want); err != nil {
		return SectionHeader{}, err
	}
	bo := hdr.Ident.Data.ByteOrder()
	decode := decodeSection64
	if hdr.Ident.Class == Class32 {
		decode = decodeSection32
	}
	first, err := readTable(src, stage, hdr.ShOff, want, 1, func(raw []byte) SectionHeader {
		return decode(bo, raw)
	})
	if err != nil {
		return SectionHeader{}, err
	}
	return first[0], nil
}

// SegmentCount returns the number of program headers. e_phnum == PN_XNUM
// means the count is stored in sh_info of section 0.
func SegmentCount(src ByteSource, hdr *FileHeader) (uint64, error) {
	if hdr.PhNum != pnXNum || hdr.ShOff == 0 {
		return uint64(hdr.PhNum), nil
	}
	first, err := sectionZero(src, StageSegments, hdr)
	if err != nil {
		return 0, err
	}
	return uint64(first.Info), nil
}

// SectionCount returns the number of section headers. e_shnum == 0 with a
// non-zero e_shoff means the count is stored in sh_size of section 0.
func SectionCount(src ByteSource, hdr *FileHeader) (uint64, error) {
	if hdr.ShNum != 0 || hdr.ShOff == 0 {
		return uint64(hdr.ShNum), nil
	}
	first, err := sectionZero(src, StageSections, hdr)
	if err != nil {
		return 0, err
	}
	return first.Size, nil
}

// ReadSegments decodes the program header table described by hdr.
func ReadSegments(src ByteSource, hdr *FileHeader) ([]SegmentHeader, error) {
	count, err := SegmentCount(src, hdr)
	if err != nil {
		return nil, err
	}
	want := hdr.Ident.Class.segmentSize()
	if err := checkEntrySize(StageSegments, hdr.PhOff, count, hdr.PhEntSize, want); err != nil {
		return nil, err
	}
	bo := hdr.Ident.Data.ByteOrder()
	decode := decodeSegment64
	if hdr.Ident.Class == Class32 {
		decode = decodeSegment32
	}
	return readTable(src, StageSegments, hdr.PhOff, want, count, func(raw []byte) SegmentHeader {
		return decode(bo, raw)
	})
}

// ReadSections decodes the section header table described by hdr. Names
// are left unresolved.
func ReadSections(src ByteSource, hdr *FileHeader) ([]SectionHeader, error) {
	count, err := SectionCount(src, hdr)
	if err != nil {
		return nil, err
	}
	want := hdr.Ident.Class.sectionSize()
	if err := checkEntrySize(StageSections, hdr.ShOff, count, hdr.ShEntSize, want); err != nil {
		return nil, err
	}
	bo := hdr.Ident.Data.ByteOrder()
	decode := decodeSection64
	if hdr.Ident.Class == Class32 {
		decode = decodeSection32
	}
	return readTable(src, StageSections, hdr.ShOff, want, count, func(raw []byte) SectionHeader {
		return decode(bo, raw)
	})
}

func decodeSegment32(bo binary.ByteOrder, raw []byte) SegmentHeader {
	return SegmentHeader{
		Type:     SegmentType(bo.Uint32(raw[0:])),
		Offset:   uint64(bo.Uint32(raw[4:])),
		VAddr:    uint64(bo.Uint32(raw[8:])),
		PAddr:    uint64(bo.Uint32(raw[12:])),
		FileSize: uint64(bo.Uint32(raw[16:])),
		MemSize:  uint64(bo.Uint32(raw[20:])),
		Flags:    SegmentFlags(bo.Uint32(raw[24:])),
		Align:    uint64(bo.Uint32(raw[28:])),
	}
}

func decodeSegment64(bo binary.ByteOrder, raw []byte) SegmentHeader {
	return SegmentHeader{
		Type:     SegmentType(bo.Uint32(raw[0:])),
		Flags:    SegmentFlags(bo.Uint32(raw[4:])),
		Offset:   bo.Uint64(raw[8:]),
		VAddr:    bo.Uint64(raw[16:]),
		PAddr:    bo.Uint64(raw[24:]),
		FileSize: bo.Uint64(raw[32:]),
		MemSize:  bo.Uint64(raw[40:]),
		Align:    bo.Uint64(raw[48:]),
	}
}

func decodeSection32(bo binary.ByteOrder, raw []byte) SectionHeader {
	return SectionHeader{
		NameOffset: bo.Uint32(raw[0:]),
		Type:       SectionType(bo.Uint32(raw[4:])),
		Flags:      uint64(bo.Uint32(raw[8:])),
		Addr:       uint64(bo.Uint32(raw[12:])),
		Offset:     uint64(bo.Uint32(raw[16:])),
		Size:       uint64(bo.Uint32(raw[20:])),
		Link:       bo.Uint32(raw[24:]),
		Info:       bo.Uint32(raw[28:]),
		AddrAlign:  uint64(bo.Uint32(raw[32:])),
		EntSize:    uint64(bo.Uint32(raw[36:])),
	}
}

func decodeSection64(bo binary.ByteOrder, raw []byte) SectionHeader {
	return SectionHeader{
		NameOffset: bo.Uint32(raw[0:]),
		Type:       SectionType(bo.Uint32(raw[4:])),
		Flags:      bo.Uint64(raw[8:]),
		Addr:       bo.Uint64(raw[16:]),
		Offset:     bo.Uint64(raw[24:]),
		Size:       bo.Uint64(raw[32:]),
		Link:       bo.Uint32(raw[40:]),
		Info:       bo.Uint32(raw[44:]),
		AddrAlign:  bo.Uint64(raw[48:]),
		EntSize:    bo.Uint64(raw[56:]),
	}
}
