// Package downloads persists files received from the relay.
package downloads

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrFileWrite wraps every failure to save an inbound file.
var ErrFileWrite = errors.New("file write error")

// Saver writes inbound payloads into a single directory.
//
// The sender-provided filename is joined to the directory as is: an existing
// file with the same name is overwritten and names containing path elements
// are not sanitized.
type Saver struct {
	fs  afero.Fs
	dir string
}

// NewSaver stores files under dir on fs.
func NewSaver(fs afero.Fs, dir string) *Saver {
	return &Saver{fs: fs, dir: dir}
}

// NewOSSaver stores files under dir on the local disk. An empty dir selects
// the Downloads folder in the user's home directory.
func NewOSSaver(dir string) (*Saver, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	return NewSaver(afero.NewOsFs(), dir), nil
}

// DefaultDir returns ~/Downloads.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, "Downloads"), nil
}

// Dir returns the target directory.
func (s *Saver) Dir() string {
	return s.dir
}

// Save writes data to <dir>/<filename> and returns the path written.
func (s *Saver) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filename)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("%w: %v", ErrFileWrite, err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return path, fmt.Errorf("%w: %v", ErrFileWrite, err)
	}
	return path, nil
}
