package elfparse

import (
	"bytes"
	"fmt"
	"math/bits"
	"strings"
)

const nameChunkSize = 128

// ResolveName returns the NUL-terminated string at nameOff inside the
// string table occupying [strtabOff, strtabOff+strtabSize). It never
// reads outside that range.
func ResolveName(src ByteSource, strtabOff, strtabSize, nameOff uint64) (string, error) {
	if nameOff >= strtabSize {
		return "", fmt.Errorf("%w: offset %d, table size %d", ErrNameOffsetOutOfRange, nameOff, strtabSize)
	}
	start, carry := bits.Add64(strtabOff, nameOff, 0)
	if carry != 0 {
		return "", fmt.Errorf("%w: string table at %#x", ErrArithmeticOverflow, strtabOff)
	}

	limit := strtabSize - nameOff
	var tmp [nameChunkSize]byte
	var sb strings.Builder
	for read := uint64(0); read < limit; {
		n := min(uint64(nameChunkSize), limit-read)
		if avail := remaining(src, start+read); avail < n {
			if avail == 0 {
				return "", fmt.Errorf("%w: string table runs past end of file", ErrUnterminatedName)
			}
			n = avail
		}
		chunk := tmp[:n]
		if err := readInto(src, start+read, chunk); err != nil {
			return "", err
		}
		if idx := bytes.IndexByte(chunk, 0); idx >= 0 {
			sb.Write(chunk[:idx])
			return sb.String(), nil
		}
		sb.Write(chunk)
		read += n
	}
	return "", fmt.Errorf("%w: no terminator within %d bytes", ErrUnterminatedName, limit)
}

// stringTableIndex returns the index of the section name string table,
// following the extended numbering escape when e_shstrndx is SHN_XINDEX.
func stringTableIndex(hdr *FileHeader, sections []SectionHeader) uint32 {
	if hdr.ShStrNdx == shnXIndex && len(sections) > 0 {
		return sections[0].Link
	}
	return uint32(hdr.ShStrNdx)
}

// resolveSectionNames fills in Name for every section. Recoverable
// problems are returned as warnings; the error is non-nil only for
// failures that abort the names stage.
func resolveSectionNames(src ByteSource, hdr *FileHeader, sections []SectionHeader, placeholder func(SectionHeader) string) ([]*DecodeError, error) {
	if len(sections) == 0 {
		return nil, nil
	}
	var warnings []*DecodeError

	idx := stringTableIndex(hdr, sections)
	if uint64(idx) >= uint64(len(sections)) || sections[idx].Type != SectionStrTab {
		warnings = append(warnings, newDecodeError(StageNames, int(idx), hdr.ShOff,
			fmt.Errorf("%w: %d (of %d sections)", ErrInvalidStringTableIndex, idx, len(sections))))
		for i := range sections {
			sections[i].Name = placeholder(sections[i])
		}
		return warnings, nil
	}

	strtab := sections[idx]
	for i := range sections {
		name, err := ResolveName(src, strtab.Offset, strtab.Size, uint64(sections[i].NameOffset))
		if err != nil {
			derr := newDecodeError(StageNames, i, strtab.Offset+uint64(sections[i].NameOffset), err)
			if !IsRecoverable(err) {
				for j := i; j < len(sections); j++ {
					sections[j].Name = placeholder(sections[j])
				}
				return warnings, derr
			}
			warnings = append(warnings, derr)
			sections[i].Name = placeholder(sections[i])
			continue
		}
		sections[i].Name = name
		sections[i].NameResolved = true
	}
	return warnings, nil
}
