package client

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// File is a user selected file. It is opened once per upload so the same
// selection can be submitted again after a failure.
type File interface {
	Name() string

	Open() (io.ReadCloser, error)
}

type localFile struct {
	path string
}

func LocalFile(path string) File {
	return &localFile{path: path}
}

func (f *localFile) Name() string {
	return filepath.Base(f.path)
}

func (f *localFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

type memoryFile struct {
	name string
	data []byte
}

func MemoryFile(name string, data []byte) File {
	return &memoryFile{name: name, data: data}
}

func (f *memoryFile) Name() string {
	return f.name
}

func (f *memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
