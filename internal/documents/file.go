package documents

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	apperrors "github.com/ironsheep/textdet/internal/errors"
)

// File is a document input: either a path on disk or an in-memory buffer.
// Exactly one of the fields must be set.
type File struct {
	Path string
	Data []byte
}

// FromPath returns a File reading from path.
func FromPath(path string) File {
	return File{Path: path}
}

// FromBytes returns a File backed by data.
func FromBytes(data []byte) File {
	return File{Data: data}
}

// String names the file for logs and error messages.
func (f File) String() string {
	if f.Path != "" {
		return f.Path
	}
	return fmt.Sprintf("<%d bytes>", len(f.Data))
}

func (f File) validate() error {
	switch {
	case f.Path != "" && f.Data != nil:
		return apperrors.NewUnsupportedTypeError("file has both a path and a byte buffer")
	case f.Path == "" && f.Data == nil:
		return apperrors.NewUnsupportedTypeError("file has neither a path nor a byte buffer")
	}
	return nil
}

// checkPath confirms that a path names a readable regular file.
func checkPath(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewFileNotFoundError(path, err)
		}
		return nil, apperrors.NewFileNotFoundError(path, fmt.Errorf("unable to access file: %w", err))
	}
	if !info.Mode().IsRegular() {
		return nil, apperrors.NewFileNotFoundError(path, fmt.Errorf("not a regular file"))
	}
	return info, nil
}

// bytes returns the file contents.
func (f File) bytes() ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if f.Data != nil {
		return f.Data, nil
	}
	if _, err := checkPath(f.Path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, apperrors.NewFileNotFoundError(f.Path, err)
	}
	return data, nil
}
