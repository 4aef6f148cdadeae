package storage

import (
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var ErrNotFound = errors.New("File not found")

// Storage is an abstraction of a blob store (eg GCS, or a directory)
type Storage interface {
	// When finished, you must close the WriteCloser.
	// The file only becomes visible when Close succeeds.
	WriteFile(name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader.
	// Returns ErrNotFound if the file does not exist.
	ReadFile(name string) (*File, error)

	DeleteFile(name string) error

	// List returns the names of all files that start with prefix and end with suffix, sorted
	List(prefix, suffix string) ([]string, error)
}

// Aborter is implemented by writers that can discard what has been written so far
type Aborter interface {
	Abort()
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// WriteFile copies content into a new file. If the copy fails, the file is discarded.
func WriteFile(s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	if err != nil {
		if a, ok := f.(Aborter); ok {
			a.Abort()
		} else {
			f.Close()
		}
		return err
	}
	return f.Close()
}

func ReadFile(s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}

// Exists returns true if the file can be opened
func Exists(s Storage, name string) bool {
	f, err := s.ReadFile(name)
	if err != nil {
		return false
	}
	f.Reader.Close()
	return true
}

// prefixed scopes a store to a sub-path
type prefixed struct {
	inner  Storage
	prefix string
}

// WithPrefix returns a store whose names are all relative to prefix
func WithPrefix(s Storage, prefix string) Storage {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" || prefix == "." {
		return s
	}
	return &prefixed{inner: s, prefix: prefix + "/"}
}

func (p *prefixed) full(name string) string {
	return p.prefix + strings.TrimPrefix(path.Clean("/"+name), "/")
}

func (p *prefixed) WriteFile(name string) (io.WriteCloser, error) {
	return p.inner.WriteFile(p.full(name))
}

func (p *prefixed) ReadFile(name string) (*File, error) {
	return p.inner.ReadFile(p.full(name))
}

func (p *prefixed) DeleteFile(name string) error {
	return p.inner.DeleteFile(p.full(name))
}

func (p *prefixed) List(prefix, suffix string) ([]string, error) {
	names, err := p.inner.List(p.prefix+prefix, suffix)
	if err != nil {
		return nil, err
	}
	for i := range names {
		names[i] = strings.TrimPrefix(names[i], p.prefix)
	}
	return names, nil
}
