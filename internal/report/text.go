package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/raven-betanet/elf-inspector/internal/checks"
	"github.com/raven-betanet/elf-inspector/internal/elfparse"
)

// Options control text rendering
type Options struct {
	Color      bool
	HumanSizes bool
}

type palette struct {
	pass, fail, skip, warn, title func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		pass:  mk(color.FgGreen),
		fail:  mk(color.FgRed, color.Bold),
		skip:  mk(color.FgCyan),
		warn:  mk(color.FgYellow),
		title: mk(color.Bold),
	}
}

func (o Options) size(n uint64) string {
	if o.HumanSizes {
		return humanize.IBytes(n)
	}
	return strconv.FormatUint(n, 10)
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%08x", v)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// WriteImage renders a decoded (possibly partial) image
func WriteImage(w io.Writer, path string, img *elfparse.Image, opts Options) error {
	p := newPalette(opts.Color)
	ew := &errWriter{w: w}

	ew.printf("%s %s (%s)\n", p.title("File:"), path, opts.size(uint64(img.FileSize)))
	if img.Ident != nil {
		ew.printf("Class: %s  Data: %s  OS/ABI: %d  ABI version: %d\n",
			img.Ident.Class, img.Ident.Data, img.Ident.OSABI, img.Ident.ABIVersion)
	}
	if hdr := img.Header; hdr != nil {
		ew.printf("Type: %s\n", hdr.Type)
		ew.printf("Architecture: %s\n", hdr.Machine)
		ew.printf("Version: %d\n", hdr.Version)
		ew.printf("Entry: %s\n", hex(hdr.Entry))
		ew.printf("Flags: %#x\n", hdr.Flags)
		ew.printf("Program Header Table Offset: %d (%d x %d bytes)\n", hdr.PhOff, hdr.PhNum, hdr.PhEntSize)
		ew.printf("Section Header Table Offset: %d (%d x %d bytes)\n", hdr.ShOff, hdr.ShNum, hdr.ShEntSize)
		ew.printf("Section Name Table Index: %d\n", hdr.ShStrNdx)
		ew.printf("Header Size: %d\n", hdr.EhSize)
	}
	if ew.err != nil {
		return ew.err
	}

	if img.State >= elfparse.StateSegmentsRead {
		ew.printf("\n%s\n", p.title(fmt.Sprintf("Segments (%d):", len(img.Segments))))
		table := newTable(ew, []string{"#", "Type", "Flags", "Offset", "VirtAddr", "PhysAddr", "FileSize", "MemSize", "Align"})
		for i, seg := range img.Segments {
			table.Append([]string{
				strconv.Itoa(i),
				seg.Type.String(),
				seg.Flags.String(),
				hex(seg.Offset),
				hex(seg.VAddr),
				hex(seg.PAddr),
				opts.size(seg.FileSize),
				opts.size(seg.MemSize),
				fmt.Sprintf("%#x", seg.Align),
			})
		}
		table.Render()
	}

	if img.State >= elfparse.StateSectionsRead {
		ew.printf("\n%s\n", p.title(fmt.Sprintf("Sections (%d):", len(img.Sections))))
		table := newTable(ew, []string{"#", "Name", "Type", "Address", "Offset", "Size", "Link", "Info", "Align"})
		for i, sec := range img.Sections {
			name := sec.Name
			if !sec.NameResolved {
				name = p.warn(name)
			}
			table.Append([]string{
				strconv.Itoa(i),
				name,
				sec.Type.String(),
				hex(sec.Addr),
				hex(sec.Offset),
				opts.size(sec.Size),
				strconv.FormatUint(uint64(sec.Link), 10),
				strconv.FormatUint(uint64(sec.Info), 10),
				fmt.Sprintf("%#x", sec.AddrAlign),
			})
		}
		table.Render()
	}

	if len(img.Warnings) > 0 {
		ew.printf("\n%s\n", p.warn(fmt.Sprintf("Warnings (%d):", len(img.Warnings))))
		for _, warning := range img.Warnings {
			ew.printf("  - %v\n", warning)
		}
	}
	if img.Err != nil {
		ew.printf("\n%s %v\n", p.fail("Decode failed:"), img.Err)
	}
	return ew.err
}

// WriteChecks renders a structural check report
func WriteChecks(w io.Writer, report *checks.CheckReport, opts Options) error {
	p := newPalette(opts.Color)
	ew := &errWriter{w: w}

	ew.printf("\n%s\n", p.title("Structural checks:"))
	table := newTable(ew, []string{"Check", "Status", "Message"})
	for _, result := range report.Results {
		table.Append([]string{result.ID, statusLabel(p, result.Status), result.Message})
	}
	table.Render()

	for _, result := range report.Results {
		if len(result.Issues) == 0 {
			continue
		}
		ew.printf("\n%s:\n", result.ID)
		for _, issue := range result.Issues {
			ew.printf("  - %s\n", issue)
		}
	}

	s := report.Summary
	overall := p.pass("PASS")
	if !report.Passed() {
		overall = p.fail("FAIL")
	}
	ew.printf("\nSummary: %d checks, %d passed, %d failed, %d skipped, %d errors: %s\n",
		s.Total, s.Passed, s.Failed, s.Skipped, s.Errors, overall)
	return ew.err
}

func statusLabel(p palette, status checks.CheckStatus) string {
	switch status {
	case checks.StatusPass:
		return p.pass("PASS")
	case checks.StatusFail:
		return p.fail("FAIL")
	case checks.StatusSkip:
		return p.skip("SKIP")
	default:
		return p.warn("ERROR")
	}
}

// errWriter remembers the first write error so rendering code can stay linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(b)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(e, format, args...)
}
