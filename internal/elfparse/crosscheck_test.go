package elfparse

import (
	"bytes"
	"debug/elf"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeAgreesWithDebugELF decodes the same images with this package
// and with the standard library reader and compares every shared field.
func TestDecodeAgreesWithDebugELF(t *testing.T) {
	for _, class := range []Class{Class32, Class64} {
		for _, data := range []Data{LittleEndian, BigEndian} {
			t.Run(fmt.Sprintf("%s/%s", class, data), func(t *testing.T) {
				raw := fixture{
					class:   class,
					data:    data,
					typ:     TypeExecutable,
					machine: Machine(elf.EM_AARCH64),
					entry:   0x401000,
					segments: []SegmentHeader{
						{Type: SegmentLoad, Flags: SegmentFlagR | SegmentFlagX, VAddr: 0x400000, PAddr: 0x400000, FileSize: 0x34, MemSize: 0x34, Align: 0x1000},
						{Type: SegmentGNUStack, Flags: SegmentFlagR | SegmentFlagW, Align: 16},
					},
					sections: []fixtureSection{
						{typ: SectionNull},
						{name: ".text", typ: SectionProgBits, addr: 0x401000, content: bytes.Repeat([]byte{0xd5}, 24)},
						{name: ".data", typ: SectionProgBits, addr: 0x402000, content: []byte{1, 2, 3, 4}},
						{name: ".bss", typ: SectionNoBits, addr: 0x403000, size: 0x800},
					},
				}.build()

				img, err := Decode(bytes.NewReader(raw))
				require.NoError(t, err)
				ref, err := elf.NewFile(bytes.NewReader(raw))
				require.NoError(t, err)

				assert.Equal(t, uint8(ref.Class), uint8(img.Ident.Class))
				assert.Equal(t, uint8(ref.Data), uint8(img.Ident.Data))
				assert.Equal(t, uint16(ref.Type), uint16(img.Header.Type))
				assert.Equal(t, ref.Machine.String(), img.Header.Machine.String())
				assert.Equal(t, ref.Entry, img.Header.Entry)

				require.Len(t, img.Segments, len(ref.Progs))
				for i, p := range ref.Progs {
					seg := img.Segments[i]
					assert.Equal(t, uint32(p.Type), uint32(seg.Type), "segment %d type", i)
					assert.Equal(t, uint32(p.Flags), uint32(seg.Flags), "segment %d flags", i)
					assert.Equal(t, p.Off, seg.Offset, "segment %d offset", i)
					assert.Equal(t, p.Vaddr, seg.VAddr, "segment %d vaddr", i)
					assert.Equal(t, p.Filesz, seg.FileSize, "segment %d filesz", i)
					assert.Equal(t, p.Memsz, seg.MemSize, "segment %d memsz", i)
					assert.Equal(t, p.Align, seg.Align, "segment %d align", i)
				}

				require.Len(t, img.Sections, len(ref.Sections))
				for i, s := range ref.Sections {
					sec := img.Sections[i]
					assert.True(t, sec.NameResolved, "section %d", i)
					assert.Equal(t, s.Name, sec.Name, "section %d name", i)
					assert.Equal(t, uint32(s.Type), uint32(sec.Type), "section %d type", i)
					assert.Equal(t, s.Addr, sec.Addr, "section %d addr", i)
					assert.Equal(t, s.Offset, sec.Offset, "section %d offset", i)
					assert.Equal(t, s.Size, sec.Size, "section %d size", i)
				}
			})
		}
	}
}
