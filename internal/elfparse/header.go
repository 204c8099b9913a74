package elfparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DecodeIdentification validates the magic and decodes e_ident.
func DecodeIdentification(src ByteSource) (*Identification, error) {
	magic := make([]byte, len(Magic))
	if err := readInto(src, 0, magic); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, newDecodeError(StageIdentify, -1, 0, fmt.Errorf("%w: file shorter than magic", ErrInvalidMagic))
		}
		return nil, newDecodeError(StageIdentify, -1, 0, err)
	}
	if !bytes.Equal(magic, Magic[:]) {
		return nil, newDecodeError(StageIdentify, -1, 0, fmt.Errorf("%w: % x", ErrInvalidMagic, magic))
	}

	rest := make([]byte, identSize-len(Magic))
	if err := readInto(src, uint64(len(Magic)), rest); err != nil {
		return nil, newDecodeError(StageIdentify, -1, uint64(len(Magic)), truncation(err, ErrTruncatedHeader))
	}

	ident := &Identification{
		Class:      Class(rest[0]),
		Data:       Data(rest[1]),
		Version:    rest[2],
		OSABI:      rest[3],
		ABIVersion: rest[4],
	}
	if ident.Class != Class32 && ident.Class != Class64 {
		return nil, newDecodeError(StageIdentify, -1, 4, fmt.Errorf("%w: %d", ErrInvalidClass, rest[0]))
	}
	if ident.Data != LittleEndian && ident.Data != BigEndian {
		return nil, newDecodeError(StageIdentify, -1, 5, fmt.Errorf("%w: %d", ErrInvalidEncoding, rest[1]))
	}
	return ident, nil
}

// DecodeHeader decodes the complete file header, including e_ident.
func DecodeHeader(src ByteSource) (*FileHeader, error) {
	ident, err := DecodeIdentification(src)
	if err != nil {
		return nil, err
	}
	return decodeFileHeader(src, *ident)
}

// decodeFileHeader reads the class-specific part that follows e_ident.
func decodeFileHeader(src ByteSource, ident Identification) (*FileHeader, error) {
	size := header64Size
	if ident.Class == Class32 {
		size = header32Size
	}
	raw, err := readAt(src, identSize, size)
	if err != nil {
		return nil, newDecodeError(StageHeader, -1, identSize, truncation(err, ErrTruncatedHeader))
	}

	bo := ident.Data.ByteOrder()
	hdr := &FileHeader{
		Ident:   ident,
		Type:    Type(bo.Uint16(raw[0:])),
		Machine: Machine(bo.Uint16(raw[2:])),
		Version: bo.Uint32(raw[4:]),
	}

	// Everything after e_version differs only in the width of the three
	// address fields.
	var tail []byte
	if ident.Class == Class32 {
		hdr.Entry = uint64(bo.Uint32(raw[8:]))
		hdr.PhOff = uint64(bo.Uint32(raw[12:]))
		hdr.ShOff = uint64(bo.Uint32(raw[16:]))
		tail = raw[20:]
	} else {
		hdr.Entry = bo.Uint64(raw[8:])
		hdr.PhOff = bo.Uint64(raw[16:])
		hdr.ShOff = bo.Uint64(raw[24:])
		tail = raw[32:]
	}
	hdr.Flags = bo.Uint32(tail[0:])
	hdr.EhSize = bo.Uint16(tail[4:])
	hdr.PhEntSize = bo.Uint16(tail[6:])
	hdr.PhNum = bo.Uint16(tail[8:])
	hdr.ShEntSize = bo.Uint16(tail[10:])
	hdr.ShNum = bo.Uint16(tail[12:])
	hdr.ShStrNdx = bo.Uint16(tail[14:])
	return hdr, nil
}

// truncation maps a short read onto kind and passes other errors through.
func truncation(err error, kind error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}
