package elfparse

import (
	"errors"
	"fmt"
)

// Decode error kinds. Every error returned by this package wraps exactly
// one of these, so callers can classify failures with errors.Is.
var (
	ErrInvalidMagic         = errors.New("invalid ELF magic")
	ErrInvalidClass         = errors.New("invalid ELF class")
	ErrInvalidEncoding      = errors.New("invalid ELF data encoding")
	ErrTruncatedHeader      = errors.New("truncated ELF header")
	ErrTruncatedTable       = errors.New("truncated header table")
	ErrArithmeticOverflow   = errors.New("arithmetic overflow in bounds computation")
	ErrInvalidEntrySize     = errors.New("unexpected table entry size")
	ErrNameOffsetOutOfRange = errors.New("name offset outside string table")
	ErrIO                   = errors.New("I/O error")

	// Recoverable kinds. They are collected as Image.Warnings and never
	// abort a decode.
	ErrUnterminatedName        = errors.New("unterminated name in string table")
	ErrInvalidStringTableIndex = errors.New("invalid section name string table index")
	ErrSegmentOutOfBounds      = errors.New("segment extends past end of file")
	ErrSectionOutOfBounds      = errors.New("section extends past end of file")
)

var errorKinds = []error{
	ErrInvalidMagic,
	ErrInvalidClass,
	ErrInvalidEncoding,
	ErrTruncatedHeader,
	ErrTruncatedTable,
	ErrArithmeticOverflow,
	ErrInvalidEntrySize,
	ErrNameOffsetOutOfRange,
	ErrUnterminatedName,
	ErrInvalidStringTableIndex,
	ErrSegmentOutOfBounds,
	ErrSectionOutOfBounds,
	ErrIO,
}

// Stage identifies the step of the decode pipeline an error belongs to.
type Stage int

const (
	StageIdentify Stage = iota
	StageHeader
	StageSegments
	StageSections
	StageNames
)

func (s Stage) String() string {
	switch s {
	case StageIdentify:
		return "identify"
	case StageHeader:
		return "header"
	case StageSegments:
		return "segments"
	case StageSections:
		return "sections"
	case StageNames:
		return "names"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// DecodeError describes a failure (or a warning) at a specific point of
// the decode. Index is the table entry involved, or -1.
type DecodeError struct {
	Stage  Stage
	Index  int
	Offset uint64
	Err    error
}

func newDecodeError(stage Stage, index int, offset uint64, err error) *DecodeError {
	return &DecodeError{Stage: stage, Index: index, Offset: offset, Err: err}
}

func (e *DecodeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("elf %s: entry %d at %#x: %v", e.Stage, e.Index, e.Offset, e.Err)
	}
	return fmt.Sprintf("elf %s at %#x: %v", e.Stage, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Kind returns the sentinel error this failure is classified as, or nil
// if it wraps none of them.
func (e *DecodeError) Kind() error {
	return KindOf(e)
}

// Recoverable reports whether the error is a warning kind.
func (e *DecodeError) Recoverable() bool {
	return IsRecoverable(e)
}

// KindOf returns the sentinel kind wrapped by err, or nil.
func KindOf(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsRecoverable reports whether err is one of the kinds that degrade to a
// warning instead of aborting the decode.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case ErrUnterminatedName, ErrInvalidStringTableIndex, ErrSegmentOutOfBounds, ErrSectionOutOfBounds:
		return true
	}
	return false
}
