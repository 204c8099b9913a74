package utils

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// FileSource is an open file exposed as a random-access byte source with a
// known size. It satisfies elfparse.ByteSource.
type FileSource struct {
	*io.SectionReader
	Path string
	file afero.File
}

// OpenSource opens path on fs for decoding. The caller must Close it.
func OpenSource(fs afero.Fs, path string) (*FileSource, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &FileSource{
		SectionReader: io.NewSectionReader(file, 0, info.Size()),
		Path:          path,
		file:          file,
	}, nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
