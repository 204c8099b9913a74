package report

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raven-betanet/elf-inspector/internal/elfparse"
)

func TestWriteImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteImage(&buf, "a.out", sampleImage(), Options{}))
	out := buf.String()

	for _, want := range []string{
		"File: a.out (12288)",
		"Class: ELF64  Data: little-endian",
		"Type: Executable",
		"Architecture: EM_X86_64",
		"Entry: 0x00401000",
		"Program Header Table Offset: 64 (1 x 56 bytes)",
		"Section Header Table Offset: 8192 (3 x 64 bytes)",
		"Header Size: 64",
		"Segments (1):",
		"LOAD",
		"R-X",
		"Sections (3):",
		".text",
		"<unresolved:0x99>",
		"STRTAB",
		"Warnings (1):",
		"unterminated name in string table",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Decode failed")
	assert.NotContains(t, out, "\x1b[", "color disabled")
}

func TestWriteImage_HumanSizes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteImage(&buf, "a.out", sampleImage(), Options{HumanSizes: true}))

	assert.Contains(t, buf.String(), "(12 KiB)")
	assert.Contains(t, buf.String(), "4.0 KiB")
}

func TestWriteImage_Partial(t *testing.T) {
	img := sampleImage()
	img.State = elfparse.StateSegmentsRead
	img.Sections = nil
	img.Warnings = nil
	img.Err = &elfparse.DecodeError{Stage: elfparse.StageSections, Index: -1, Offset: 0x2000, Err: elfparse.ErrTruncatedTable}

	var buf bytes.Buffer
	require.NoError(t, WriteImage(&buf, "a.out", img, Options{}))
	out := buf.String()

	assert.Contains(t, out, "Segments (1):")
	assert.NotContains(t, out, "Sections (")
	assert.Contains(t, out, "Decode failed:")
	assert.Contains(t, out, "truncated header table")
}

func TestWriteImage_Color(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteImage(&buf, "a.out", sampleImage(), Options{Color: true}))

	assert.Contains(t, buf.String(), "\x1b[")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteImage_WriteError(t *testing.T) {
	err := WriteImage(failWriter{}, "a.out", sampleImage(), Options{})
	assert.EqualError(t, err, "disk full")
}

func TestWriteChecks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChecks(&buf, sampleReport(), Options{}))
	out := buf.String()

	assert.Contains(t, out, "Structural checks:")
	assert.Contains(t, out, "header-identity")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "SKIP")
	assert.Contains(t, out, "section 1 has no name")
	assert.Contains(t, out, "Summary: 3 checks, 1 passed, 1 failed, 1 skipped, 0 errors: FAIL")
}
