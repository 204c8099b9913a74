package elfparse

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveName(t *testing.T) {
	// 8 bytes of padding, then the table, then trailing garbage that must
	// never be read.
	table := []byte("\x00.text\x00.data\x00")
	data := append(append(make([]byte, 8), table...), []byte("GARBAGE")...)
	off, size := uint64(8), uint64(len(table))

	tests := []struct {
		nameOff uint64
		want    string
	}{
		{0, ""},
		{1, ".text"},
		{2, "text"},
		{7, ".data"},
		{12, ""},
	}
	for _, tt := range tests {
		src := newCountingSource(data)
		got, err := ResolveName(src, off, size, tt.nameOff)
		require.NoError(t, err, "offset %d", tt.nameOff)
		assert.Equal(t, tt.want, got)
		assert.GreaterOrEqual(t, src.minOff, int64(off))
		assert.LessOrEqual(t, src.maxEnd, int64(off+size))
	}
}

func TestResolveName_OffsetOutOfRange(t *testing.T) {
	data := []byte("\x00.text\x00")
	for _, nameOff := range []uint64{7, 8, 1 << 32} {
		src := newCountingSource(data)
		_, err := ResolveName(src, 0, uint64(len(data)), nameOff)
		require.ErrorIs(t, err, ErrNameOffsetOutOfRange)
		assert.Zero(t, src.reads)
		assert.False(t, IsRecoverable(err))
	}
}

func TestResolveName_Unterminated(t *testing.T) {
	// The table claims 6 bytes; the terminator sits just past its end.
	data := []byte("\x00.text\x00")
	src := newCountingSource(data)
	_, err := ResolveName(src, 0, 6, 1)
	require.ErrorIs(t, err, ErrUnterminatedName)
	assert.True(t, IsRecoverable(err))
	assert.LessOrEqual(t, src.maxEnd, int64(6))
}

func TestResolveName_TableRunsPastEOF(t *testing.T) {
	data := []byte("\x00.te")
	_, err := ResolveName(bytes.NewReader(data), 0, 4096, 1)
	require.ErrorIs(t, err, ErrUnterminatedName)
}

func TestResolveName_LongName(t *testing.T) {
	long := strings.Repeat("x", 3*nameChunkSize+17)
	table := []byte("\x00" + long + "\x00")
	got, err := ResolveName(bytes.NewReader(table), 0, uint64(len(table)), 1)
	require.NoError(t, err)
	assert.Equal(t, long, got)
}

func TestResolveSectionNames_InvalidIndex(t *testing.T) {
	raw := fixture{
		sections: []fixtureSection{
			{},
			{name: ".text", typ: SectionProgBits, content: []byte{0xc3}},
		},
	}.build()
	src := bytes.NewReader(raw)
	hdr, err := DecodeHeader(src)
	require.NoError(t, err)
	secs, err := ReadSections(src, hdr)
	require.NoError(t, err)

	for _, idx := range []uint16{1, 9} {
		hdr.ShStrNdx = idx
		cp := append([]SectionHeader(nil), secs...)
		warnings, err := resolveSectionNames(src, hdr, cp, DefaultPlaceholder)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.ErrorIs(t, warnings[0], ErrInvalidStringTableIndex)
		for _, s := range cp {
			assert.False(t, s.NameResolved)
			assert.True(t, strings.HasPrefix(s.Name, "<unresolved:"), s.Name)
		}
	}
}

func TestResolveSectionNames_ExtendedIndex(t *testing.T) {
	raw := fixture{
		sections: []fixtureSection{
			{},
			{name: ".text", typ: SectionProgBits, content: []byte{0xc3}},
		},
	}.build()
	src := bytes.NewReader(raw)
	hdr, err := DecodeHeader(src)
	require.NoError(t, err)
	secs, err := ReadSections(src, hdr)
	require.NoError(t, err)

	secs[0].Link = uint32(hdr.ShStrNdx)
	hdr.ShStrNdx = shnXIndex
	warnings, err := resolveSectionNames(src, hdr, secs, DefaultPlaceholder)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, ".text", secs[1].Name)
	assert.Equal(t, ".shstrtab", secs[2].Name)
}
