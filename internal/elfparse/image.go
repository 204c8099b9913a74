package elfparse

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// State is the position of a decode in the pipeline. Each state means the
// corresponding stage completed successfully.
type State int

const (
	StateStart State = iota
	StateIdentified
	StateHeaderRead
	StateSegmentsRead
	StateSectionsRead
	StateNamesResolved
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateIdentified:
		return "identified"
	case StateHeaderRead:
		return "header-read"
	case StateSegmentsRead:
		return "segments-read"
	case StateSectionsRead:
		return "sections-read"
	case StateNamesResolved:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Image is the result of one decode. On failure it holds everything that
// was decoded before the failing stage.
type Image struct {
	FileSize int64           `json:"file_size"`
	State    State           `json:"-"`
	Ident    *Identification `json:"ident,omitempty"`
	Header   *FileHeader     `json:"header,omitempty"`
	Segments []SegmentHeader `json:"segments"`
	Sections []SectionHeader `json:"sections"`
	Warnings []*DecodeError  `json:"-"`
	Err      *DecodeError    `json:"-"`
}

// Done reports whether every stage completed.
func (img *Image) Done() bool {
	return img.State == StateNamesResolved
}

// Failed reports whether the decode ended in the failed state, and at
// which stage.
func (img *Image) Failed() (Stage, bool) {
	if img.Err == nil {
		return 0, false
	}
	return img.Err.Stage, true
}

// WarningsErr folds all warnings into a single error, or nil if there
// are none.
func (img *Image) WarningsErr() error {
	var result *multierror.Error
	for _, w := range img.Warnings {
		result = multierror.Append(result, w)
	}
	return result.ErrorOrNil()
}

// Section returns the first section with the given resolved name.
func (img *Image) Section(name string) *SectionHeader {
	for i := range img.Sections {
		s := &img.Sections[i]
		if s.NameResolved && s.Name == name {
			return s
		}
	}
	return nil
}

// Option configures a decode.
type Option func(*decoder)

// WithTrace emits a debug entry per stage and per table entry to logger.
func WithTrace(logger logrus.FieldLogger) Option {
	return func(d *decoder) {
		if logger != nil {
			d.trace = logger
		}
	}
}

// WithPlaceholder sets the function producing names for sections whose
// name could not be resolved.
func WithPlaceholder(fn func(SectionHeader) string) Option {
	return func(d *decoder) {
		if fn != nil {
			d.placeholder = fn
		}
	}
}

// DefaultPlaceholder names an unresolved section after its name offset.
func DefaultPlaceholder(s SectionHeader) string {
	return fmt.Sprintf("<unresolved:%#x>", s.NameOffset)
}

type decoder struct {
	src         ByteSource
	trace       logrus.FieldLogger
	placeholder func(SectionHeader) string
	img         *Image
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// Decode runs identify, header, segments, sections and names in order.
// The returned Image is never nil. If a stage fails, the error is a
// *DecodeError for that stage and the Image holds the partial result.
func Decode(src ByteSource, opts ...Option) (*Image, error) {
	d := &decoder{
		src:         src,
		placeholder: DefaultPlaceholder,
		img:         &Image{FileSize: src.Size(), State: StateStart},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.trace == nil {
		d.trace = discardLogger()
	}

	if err := d.run(); err != nil {
		d.img.Err = err
		d.trace.WithFields(logrus.Fields{
			"stage": err.Stage.String(),
			"state": d.img.State.String(),
		}).WithError(err).Debug("decode failed")
		return d.img, err
	}
	return d.img, nil
}

func (d *decoder) run() *DecodeError {
	img := d.img

	ident, err := DecodeIdentification(d.src)
	if err != nil {
		return asDecodeError(StageIdentify, err)
	}
	img.Ident = ident
	img.State = StateIdentified
	d.trace.WithFields(logrus.Fields{
		"stage": StageIdentify.String(),
		"class": ident.Class.String(),
		"data":  ident.Data.String(),
	}).Debug("identified")

	hdr, err := decodeFileHeader(d.src, *ident)
	if err != nil {
		return asDecodeError(StageHeader, err)
	}
	img.Header = hdr
	img.State = StateHeaderRead
	d.trace.WithFields(logrus.Fields{
		"stage":   StageHeader.String(),
		"type":    hdr.Type.String(),
		"machine": hdr.Machine.String(),
		"entry":   fmt.Sprintf("%#x", hdr.Entry),
		"phnum":   hdr.PhNum,
		"shnum":   hdr.ShNum,
	}).Debug("header decoded")

	segments, err := ReadSegments(d.src, hdr)
	if err != nil {
		return asDecodeError(StageSegments, err)
	}
	img.Segments = segments
	img.State = StateSegmentsRead
	for i, seg := range segments {
		d.trace.WithFields(logrus.Fields{
			"stage":  StageSegments.String(),
			"index":  i,
			"type":   seg.Type.String(),
			"offset": seg.Offset,
			"filesz": seg.FileSize,
		}).Debug("segment")
		if !fitsInFile(seg.Offset, seg.FileSize, img.FileSize) {
			d.warn(newDecodeError(StageSegments, i, seg.Offset,
				fmt.Errorf("%w: %d bytes at %#x", ErrSegmentOutOfBounds, seg.FileSize, seg.Offset)))
		}
	}

	sections, err := ReadSections(d.src, hdr)
	if err != nil {
		return asDecodeError(StageSections, err)
	}
	img.Sections = sections
	img.State = StateSectionsRead
	for i, sec := range sections {
		d.trace.WithFields(logrus.Fields{
			"stage":  StageSections.String(),
			"index":  i,
			"type":   sec.Type.String(),
			"offset": sec.Offset,
			"size":   sec.Size,
		}).Debug("section")
		if sec.HasFileData() && !fitsInFile(sec.Offset, sec.Size, img.FileSize) {
			d.warn(newDecodeError(StageSections, i, sec.Offset,
				fmt.Errorf("%w: %d bytes at %#x", ErrSectionOutOfBounds, sec.Size, sec.Offset)))
		}
	}

	warnings, err := resolveSectionNames(d.src, hdr, img.Sections, d.placeholder)
	for _, w := range warnings {
		d.warn(w)
	}
	if err != nil {
		return asDecodeError(StageNames, err)
	}
	img.State = StateNamesResolved
	d.trace.WithFields(logrus.Fields{
		"stage":    StageNames.String(),
		"sections": len(img.Sections),
		"warnings": len(img.Warnings),
	}).Debug("names resolved")
	return nil
}

func (d *decoder) warn(w *DecodeError) {
	d.img.Warnings = append(d.img.Warnings, w)
	d.trace.WithFields(logrus.Fields{
		"stage": w.Stage.String(),
		"index": w.Index,
	}).Warn(w.Err.Error())
}

// asDecodeError attaches stage to err unless it already carries one.
func asDecodeError(stage Stage, err error) *DecodeError {
	if derr, ok := err.(*DecodeError); ok {
		return derr
	}
	return newDecodeError(stage, -1, 0, err)
}

func fitsInFile(offset, size uint64, fileSize int64) bool {
	end, err := tableEnd(offset, size, 1)
	return err == nil && fileSize >= 0 && end <= uint64(fileSize)
}
