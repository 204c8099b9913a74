package report

import (
	"github.com/raven-betanet/elf-inspector/internal/checks"
	"github.com/raven-betanet/elf-inspector/internal/elfparse"
)

func sampleImage() *elfparse.Image {
	ident := elfparse.Identification{Class: elfparse.Class64, Data: elfparse.LittleEndian, Version: 1}
	return &elfparse.Image{
		FileSize: 0x3000,
		State:    elfparse.StateNamesResolved,
		Ident:    &ident,
		Header: &elfparse.FileHeader{
			Ident:     ident,
			Type:      elfparse.TypeExecutable,
			Machine:   62,
			Version:   1,
			Entry:     0x401000,
			PhOff:     64,
			ShOff:     0x2000,
			EhSize:    64,
			PhEntSize: 56,
			PhNum:     1,
			ShEntSize: 64,
			ShNum:     3,
			ShStrNdx:  2,
		},
		Segments: []elfparse.SegmentHeader{
			{Type: elfparse.SegmentLoad, Flags: elfparse.SegmentFlagR | elfparse.SegmentFlagX, Offset: 0x1000, VAddr: 0x401000, PAddr: 0x401000, FileSize: 0x1000, MemSize: 0x1000, Align: 0x1000},
		},
		Sections: []elfparse.SectionHeader{
			{Name: ".text", NameResolved: true, NameOffset: 1, Type: elfparse.SectionProgBits, Addr: 0x401000, Offset: 0x1000, Size: 0x1000, AddrAlign: 16},
			{Name: "<unresolved:0x99>", NameOffset: 0x99, Type: elfparse.SectionProgBits, Offset: 0x1800, Size: 0x10},
			{Name: ".shstrtab", NameResolved: true, NameOffset: 7, Type: elfparse.SectionStrTab, Offset: 0x1f00, Size: 0x11, AddrAlign: 1},
		},
		Warnings: []*elfparse.DecodeError{
			{Stage: elfparse.StageNames, Index: 1, Offset: 0x1f00, Err: elfparse.ErrUnterminatedName},
		},
	}
}

func sampleReport() *checks.CheckReport {
	return &checks.CheckReport{
		Path: "a.out",
		Results: []checks.CheckResult{
			{ID: "header-identity", Status: checks.StatusPass, Message: "header decoded"},
			{ID: "section-names", Status: checks.StatusFail, Message: "1 unresolved name", Issues: []string{"section 1 has no name"}},
			{ID: "segment-alignment", Status: checks.StatusSkip, Message: "skipped by configuration"},
		},
		Summary: checks.CheckSummary{Total: 3, Passed: 1, Failed: 1, Skipped: 1},
	}
}
