package elfparse

import (
	"bytes"
	"encoding/binary"
	"io"
)

// encodeHeader is the inverse of DecodeHeader.
func encodeHeader(h FileHeader) []byte {
	bo := h.Ident.Data.ByteOrder()
	size := identSize + header64Size
	if h.Ident.Class == Class32 {
		size = identSize + header32Size
	}
	b := make([]byte, size)
	copy(b, Magic[:])
	b[4] = byte(h.Ident.Class)
	b[5] = byte(h.Ident.Data)
	b[6] = h.Ident.Version
	b[7] = h.Ident.OSABI
	b[8] = h.Ident.ABIVersion

	raw := b[identSize:]
	bo.PutUint16(raw[0:], uint16(h.Type))
	bo.PutUint16(raw[2:], uint16(h.Machine))
	bo.PutUint32(raw[4:], h.Version)
	var tail []byte
	if h.Ident.Class == Class32 {
		bo.PutUint32(raw[8:], uint32(h.Entry))
		bo.PutUint32(raw[12:], uint32(h.PhOff))
		bo.PutUint32(raw[16:], uint32(h.ShOff))
		tail = raw[20:]
	} else {
		bo.PutUint64(raw[8:], h.Entry)
		bo.PutUint64(raw[16:], h.PhOff)
		bo.PutUint64(raw[24:], h.ShOff)
		tail = raw[32:]
	}
	bo.PutUint32(tail[0:], h.Flags)
	bo.PutUint16(tail[4:], h.EhSize)
	bo.PutUint16(tail[6:], h.PhEntSize)
	bo.PutUint16(tail[8:], h.PhNum)
	bo.PutUint16(tail[10:], h.ShEntSize)
	bo.PutUint16(tail[12:], h.ShNum)
	bo.PutUint16(tail[14:], h.ShStrNdx)
	return b
}

func encodeSegment(class Class, bo binary.ByteOrder, s SegmentHeader) []byte {
	if class == Class32 {
		b := make([]byte, segment32Size)
		for i, v := range []uint32{uint32(s.Type), uint32(s.Offset), uint32(s.VAddr), uint32(s.PAddr),
			uint32(s.FileSize), uint32(s.MemSize), uint32(s.Flags), uint32(s.Align)} {
			bo.PutUint32(b[i*4:], v)
		}
		return b
	}
	b := make([]byte, segment64Size)
	bo.PutUint32(b[0:], uint32(s.Type))
	bo.PutUint32(b[4:], uint32(s.Flags))
	for i, v := range []uint64{s.Offset, s.VAddr, s.PAddr, s.FileSize, s.MemSize, s.Align} {
		bo.PutUint64(b[8+i*8:], v)
	}
	return b
}

func encodeSection(class Class, bo binary.ByteOrder, s SectionHeader) []byte {
	if class == Class32 {
		b := make([]byte, section32Size)
		for i, v := range []uint32{s.NameOffset, uint32(s.Type), uint32(s.Flags), uint32(s.Addr),
			uint32(s.Offset), uint32(s.Size), s.Link, s.Info, uint32(s.AddrAlign), uint32(s.EntSize)} {
			bo.PutUint32(b[i*4:], v)
		}
		return b
	}
	b := make([]byte, section64Size)
	bo.PutUint32(b[0:], s.NameOffset)
	bo.PutUint32(b[4:], uint32(s.Type))
	bo.PutUint64(b[8:], s.Flags)
	bo.PutUint64(b[16:], s.Addr)
	bo.PutUint64(b[24:], s.Offset)
	bo.PutUint64(b[32:], s.Size)
	bo.PutUint32(b[40:], s.Link)
	bo.PutUint32(b[44:], s.Info)
	bo.PutUint64(b[48:], s.AddrAlign)
	bo.PutUint64(b[56:], s.EntSize)
	return b
}

type fixtureSection struct {
	name    string
	typ     SectionType
	addr    uint64
	content []byte
	// size overrides len(content), e.g. for NOBITS sections.
	size uint64
}

// fixture lays out a complete ELF image: header, program headers, section
// contents, the .shstrtab string table (appended as the last section) and
// finally the section header table.
type fixture struct {
	class    Class
	data     Data
	typ      Type
	machine  Machine
	entry    uint64
	segments []SegmentHeader
	sections []fixtureSection
}

func (f fixture) build() []byte {
	if f.class == 0 {
		f.class = Class64
	}
	if f.data == 0 {
		f.data = LittleEndian
	}
	bo := f.data.ByteOrder()
	hdr := FileHeader{
		Ident:     Identification{Class: f.class, Data: f.data, Version: 1},
		Type:      f.typ,
		Machine:   f.machine,
		Version:   1,
		Entry:     f.entry,
		PhNum:     uint16(len(f.segments)),
		PhEntSize: uint16(f.class.segmentSize()),
		ShEntSize: uint16(f.class.sectionSize()),
	}
	ehsize := identSize + header64Size
	if f.class == Class32 {
		ehsize = identSize + header32Size
	}
	hdr.EhSize = uint16(ehsize)
	if len(f.segments) > 0 {
		hdr.PhOff = uint64(ehsize)
	}

	var body bytes.Buffer
	body.Write(make([]byte, ehsize))
	for _, s := range f.segments {
		body.Write(encodeSegment(f.class, bo, s))
	}

	var strtab bytes.Buffer
	strtab.WriteByte(0)
	nameOffset := func(name string) uint32 {
		if name == "" {
			return 0
		}
		off := uint32(strtab.Len())
		strtab.WriteString(name)
		strtab.WriteByte(0)
		return off
	}

	headers := make([]SectionHeader, 0, len(f.sections)+1)
	for _, s := range f.sections {
		sh := SectionHeader{
			NameOffset: nameOffset(s.name),
			Type:       s.typ,
			Addr:       s.addr,
			Size:       uint64(len(s.content)),
		}
		if s.size != 0 {
			sh.Size = s.size
		}
		if len(s.content) > 0 {
			sh.Offset = uint64(body.Len())
			body.Write(s.content)
		}
		headers = append(headers, sh)
	}
	shstrName := nameOffset(".shstrtab")
	headers = append(headers, SectionHeader{
		NameOffset: shstrName,
		Type:       SectionStrTab,
		Offset:     uint64(body.Len()),
		Size:       uint64(strtab.Len()),
	})
	body.Write(strtab.Bytes())
	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}

	hdr.ShOff = uint64(body.Len())
	hdr.ShNum = uint16(len(headers))
	hdr.ShStrNdx = uint16(len(headers) - 1)
	for _, sh := range headers {
		body.Write(encodeSection(f.class, bo, sh))
	}

	out := body.Bytes()
	copy(out, encodeHeader(hdr))
	return out
}

// countingSource records the byte range touched by ReadAt.
type countingSource struct {
	*bytes.Reader
	minOff int64
	maxEnd int64
	reads  int
}

func newCountingSource(b []byte) *countingSource {
	return &countingSource{Reader: bytes.NewReader(b), minOff: -1}
}

func (c *countingSource) ReadAt(p []byte, off int64) (int, error) {
	c.reads++
	if c.minOff < 0 || off < c.minOff {
		c.minOff = off
	}
	if end := off + int64(len(p)); end > c.maxEnd {
		c.maxEnd = end
	}
	return c.Reader.ReadAt(p, off)
}

// failingSource reports a fixed size but fails every read.
type failingSource struct {
	size int64
	err  error
}

func (f failingSource) ReadAt([]byte, int64) (int, error) { return 0, f.err }
func (f failingSource) Size() int64                       { return f.size }

var _ io.ReaderAt = failingSource{}
