package checks

import (
	"errors"
	"fmt"

	"github.com/raven-betanet/elf-inspector/internal/elfparse"
)

// DefaultRegistry returns a registry holding every structural check.
// In strict mode decode warnings fail the decode-warnings check.
func DefaultRegistry(strict bool) *CheckRegistry {
	registry := NewCheckRegistry()
	for _, check := range []StructuralCheck{
		&HeaderIdentityCheck{},
		&SegmentBoundsCheck{},
		&SectionBoundsCheck{},
		&SectionNamesCheck{},
		&EntryPointCheck{},
		&SegmentAlignmentCheck{},
		&SegmentHardeningCheck{},
		&DecodeWarningsCheck{Strict: strict},
	} {
		// IDs are distinct constants, so Register cannot fail here.
		_ = registry.Register(check)
	}
	return registry
}

func skipped(message string) CheckResult {
	return CheckResult{Status: StatusSkip, Message: message}
}

// requireState skips a check whose input was never decoded.
func requireState(img *elfparse.Image, state elfparse.State) (CheckResult, bool) {
	if img == nil {
		return CheckResult{Status: StatusError, Message: "no image"}, false
	}
	if img.State < state {
		return skipped(fmt.Sprintf("decode stopped at %s", img.State)), false
	}
	return CheckResult{}, true
}

func verdict(issues []string, pass string, details map[string]interface{}) CheckResult {
	if len(issues) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%d issue(s) found", len(issues)),
			Issues:  issues,
			Details: details,
		}
	}
	return CheckResult{Status: StatusPass, Message: pass, Details: details}
}

func expectedHeaderSize(class elfparse.Class) uint16 {
	if class == elfparse.Class32 {
		return 52
	}
	return 64
}

// HeaderIdentityCheck validates identification and file header fields
type HeaderIdentityCheck struct{}

func (c *HeaderIdentityCheck) ID() string { return "header-identity" }

func (c *HeaderIdentityCheck) Description() string {
	return "ELF identification and file header decode cleanly"
}

func (c *HeaderIdentityCheck) Execute(img *elfparse.Image) CheckResult {
	if img == nil || img.Header == nil {
		msg := "file header not decoded"
		if img != nil && img.Err != nil {
			msg = img.Err.Error()
		}
		return CheckResult{Status: StatusFail, Message: msg}
	}

	hdr := img.Header
	var issues []string
	// 0xfe00-0xffff are reserved for OS and processor specific types.
	if !hdr.Type.Known() && hdr.Type < 0xfe00 {
		issues = append(issues, fmt.Sprintf("unrecognized object type %s", hdr.Type))
	}
	if want := expectedHeaderSize(hdr.Ident.Class); hdr.EhSize != want {
		issues = append(issues, fmt.Sprintf("e_ehsize is %d, expected %d", hdr.EhSize, want))
	}
	if hdr.Ident.Version != 1 || hdr.Version != 1 {
		issues = append(issues, fmt.Sprintf("unexpected ELF version (ident %d, header %d)", hdr.Ident.Version, hdr.Version))
	}

	return verdict(issues, "header is well formed", map[string]interface{}{
		"class":   hdr.Ident.Class.String(),
		"data":    hdr.Ident.Data.String(),
		"type":    hdr.Type.String(),
		"machine": hdr.Machine.String(),
	})
}

// SegmentBoundsCheck validates that segments lie within the file
type SegmentBoundsCheck struct{}

func (c *SegmentBoundsCheck) ID() string { return "segment-bounds" }

func (c *SegmentBoundsCheck) Description() string {
	return "Program headers reference data inside the file"
}

func (c *SegmentBoundsCheck) Execute(img *elfparse.Image) CheckResult {
	if res, ok := requireState(img, elfparse.StateSegmentsRead); !ok {
		return res
	}

	var issues []string
	for i, seg := range img.Segments {
		if end := seg.Offset + seg.FileSize; end < seg.Offset || end > uint64(img.FileSize) {
			issues = append(issues, fmt.Sprintf("segment %d (%s): %d bytes at %#x exceed file size %d",
				i, seg.Type, seg.FileSize, seg.Offset, img.FileSize))
		}
		if seg.Type == elfparse.SegmentLoad && seg.MemSize < seg.FileSize {
			issues = append(issues, fmt.Sprintf("segment %d (LOAD): memsz %#x smaller than filesz %#x",
				i, seg.MemSize, seg.FileSize))
		}
	}
	return verdict(issues, fmt.Sprintf("%d segment(s) within bounds", len(img.Segments)), nil)
}

// SectionBoundsCheck validates that sections with file data lie within the file
type SectionBoundsCheck struct{}

func (c *SectionBoundsCheck) ID() string { return "section-bounds" }

func (c *SectionBoundsCheck) Description() string {
	return "Section headers reference data inside the file"
}

func (c *SectionBoundsCheck) Execute(img *elfparse.Image) CheckResult {
	if res, ok := requireState(img, elfparse.StateSectionsRead); !ok {
		return res
	}

	var issues []string
	for i, sec := range img.Sections {
		if !sec.HasFileData() {
			continue
		}
		if end := sec.Offset + sec.Size; end < sec.Offset || end > uint64(img.FileSize) {
			issues = append(issues, fmt.Sprintf("section %d (%s): %d bytes at %#x exceed file size %d",
				i, sec.Name, sec.Size, sec.Offset, img.FileSize))
		}
	}
	return verdict(issues, fmt.Sprintf("%d section(s) within bounds", len(img.Sections)), nil)
}

// SectionNamesCheck validates the section name string table
type SectionNamesCheck struct{}

func (c *SectionNamesCheck) ID() string { return "section-names" }

func (c *SectionNamesCheck) Description() string {
	return "Every section name resolves through the section name string table"
}

func (c *SectionNamesCheck) Execute(img *elfparse.Image) CheckResult {
	if res, ok := requireState(img, elfparse.StateSectionsRead); !ok {
		return res
	}
	if len(img.Sections) == 0 {
		return CheckResult{Status: StatusPass, Message: "no section headers"}
	}

	var issues []string
	if stage, failed := img.Failed(); failed && stage == elfparse.StageNames {
		issues = append(issues, img.Err.Error())
	}
	for _, w := range img.Warnings {
		if errors.Is(w, elfparse.ErrInvalidStringTableIndex) || errors.Is(w, elfparse.ErrUnterminatedName) {
			issues = append(issues, w.Error())
		}
	}
	return verdict(issues, "all section names resolved", nil)
}

// EntryPointCheck validates that the entry point is mapped executable
type EntryPointCheck struct{}

func (c *EntryPointCheck) ID() string { return "entry-point" }

func (c *EntryPointCheck) Description() string {
	return "Entry point lies inside an executable LOAD segment"
}

func (c *EntryPointCheck) Execute(img *elfparse.Image) CheckResult {
	if res, ok := requireState(img, elfparse.StateSegmentsRead); !ok {
		return res
	}
	hdr := img.Header
	if hdr.Type != elfparse.TypeExecutable && hdr.Type != elfparse.TypeSharedObject {
		return skipped(fmt.Sprintf("not applicable to %s files", hdr.Type))
	}
	if hdr.Entry == 0 {
		return skipped("no entry point")
	}

	details := map[string]interface{}{"entry": fmt.Sprintf("%#x", hdr.Entry)}
	for i, seg := range img.Segments {
		if seg.Type != elfparse.SegmentLoad {
			continue
		}
		if hdr.Entry >= seg.VAddr && hdr.Entry-seg.VAddr < seg.MemSize {
			details["segment"] = i
			if seg.Flags&elfparse.SegmentFlagX == 0 {
				return verdict([]string{fmt.Sprintf("entry %#x is in non-executable segment %d (%s)",
					hdr.Entry, i, seg.Flags)}, "", details)
			}
			return verdict(nil, fmt.Sprintf("entry %#x in segment %d", hdr.Entry, i), details)
		}
	}
	return verdict([]string{fmt.Sprintf("entry %#x is not covered by any LOAD segment", hdr.Entry)}, "", details)
}

// SegmentAlignmentCheck validates LOAD segment alignment constraints
type SegmentAlignmentCheck struct{}

func (c *SegmentAlignmentCheck) ID() string { return "segment-alignment" }

func (c *SegmentAlignmentCheck) Description() string {
	return "LOAD segments use power-of-two alignment congruent with their file offset"
}

func (c *SegmentAlignmentCheck) Execute(img *elfparse.Image) CheckResult {
	if res, ok := requireState(img, elfparse.StateSegmentsRead); !ok {
		return res
	}

	var issues []string
	for i, seg := range img.Segments {
		if seg.Type != elfparse.SegmentLoad || seg.Align <= 1 {
			continue
		}
		if seg.Align&(seg.Align-1) != 0 {
			issues = append(issues, fmt.Sprintf("segment %d: alignment %#x is not a power of two", i, seg.Align))
			continue
		}
		if seg.VAddr%seg.Align != seg.Offset%seg.Align {
			issues = append(issues, fmt.Sprintf("segment %d: vaddr %#x and offset %#x differ modulo %#x",
				i, seg.VAddr, seg.Offset, seg.Align))
		}
	}
	return verdict(issues, "LOAD segments are aligned", nil)
}

// SegmentHardeningCheck reports exploit mitigations visible in the program
// headers. Only an executable stack fails the check.
type SegmentHardeningCheck struct{}

func (c *SegmentHardeningCheck) ID() string { return "segment-hardening" }

func (c *SegmentHardeningCheck) Description() string {
	return "Non-executable stack, RELRO and PIE as declared by program headers"
}

func (c *SegmentHardeningCheck) Execute(img *elfparse.Image) CheckResult {
	if res, ok := requireState(img, elfparse.StateSegmentsRead); !ok {
		return res
	}
	hdr := img.Header
	if hdr.Type != elfparse.TypeExecutable && hdr.Type != elfparse.TypeSharedObject {
		return skipped(fmt.Sprintf("not applicable to %s files", hdr.Type))
	}

	nx, relro, interp := false, false, false
	for _, seg := range img.Segments {
		switch seg.Type {
		case elfparse.SegmentGNUStack:
			nx = seg.Flags&elfparse.SegmentFlagX == 0
		case elfparse.SegmentGNURelro:
			relro = true
		case elfparse.SegmentInterp:
			interp = true
		}
	}
	details := map[string]interface{}{
		"nx":    nx,
		"relro": relro,
		"pie":   hdr.Type == elfparse.TypeSharedObject && interp,
	}
	if img.State >= elfparse.StateNamesResolved {
		details["stripped"] = img.Section(".symtab") == nil
	}

	var issues []string
	if !nx {
		issues = append(issues, "stack is executable or GNU_STACK is missing")
	}
	return verdict(issues, "stack is non-executable", details)
}

// DecodeWarningsCheck surfaces recoverable decode problems. It only fails
// in strict mode, or when the decode itself failed.
type DecodeWarningsCheck struct {
	Strict bool
}

func (c *DecodeWarningsCheck) ID() string { return "decode-warnings" }

func (c *DecodeWarningsCheck) Description() string {
	return "Decode completed without recoverable problems"
}

func (c *DecodeWarningsCheck) Execute(img *elfparse.Image) CheckResult {
	if img == nil {
		return CheckResult{Status: StatusError, Message: "no image"}
	}
	if img.Err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("decode failed during %s", img.Err.Stage),
			Issues:  []string{img.Err.Error()},
		}
	}

	issues := make([]string, 0, len(img.Warnings))
	for _, w := range img.Warnings {
		issues = append(issues, w.Error())
	}
	if len(issues) == 0 {
		return CheckResult{Status: StatusPass, Message: "no warnings"}
	}
	if c.Strict {
		return verdict(issues, "", nil)
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d warning(s), not fatal outside strict mode", len(issues)),
		Issues:  issues,
	}
}
