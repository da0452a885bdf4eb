package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Journal receives one line per accepted request.
type Journal interface {
	Append(line string)
}

type NopJournal struct{}

func (NopJournal) Append(string) {}

// FileJournal appends lines to a file.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.f, line)
}

func (j *FileJournal) Close() error { return j.f.Close() }

var _ Journal = NopJournal{}
var _ Journal = (*FileJournal)(nil)
