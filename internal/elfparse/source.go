package elfparse

import (
	"fmt"
	"io"
)

// ByteSource is a random-access, read-only view of an ELF file.
// *bytes.Reader and *io.SectionReader both satisfy it.
type ByteSource interface {
	io.ReaderAt
	// Size returns the total number of bytes available.
	Size() int64
}

// readAt reads exactly n bytes at off. A short read is reported as
// io.ErrUnexpectedEOF so callers can map it to a truncation error.
func readAt(src ByteSource, off uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := readInto(src, off, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readInto fills buf from off.
func readInto(src ByteSource, off uint64, buf []byte) error {
	if off > uint64(maxInt64) {
		return fmt.Errorf("offset %#x: %w", off, ErrArithmeticOverflow)
	}
	if remaining(src, off) < uint64(len(buf)) {
		return io.ErrUnexpectedEOF
	}
	got, err := src.ReadAt(buf, int64(off))
	if got == len(buf) {
		// ReaderAt may return io.EOF together with a full read at the end of input.
		return nil
	}
	if err == nil || err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read %d bytes at %#x: %w: %w", len(buf), off, ErrIO, err)
}

// remaining returns how many bytes are available from off to the end of src.
func remaining(src ByteSource, off uint64) uint64 {
	size := src.Size()
	if size <= 0 || off >= uint64(size) {
		return 0
	}
	return uint64(size) - off
}

const maxInt64 = 1<<63 - 1
