// Package filestack holds the precomputed handle->bucket-path index for
// externally hosted references. The CSV is exported from the warehouse
// ahead of a migration run; the index is read-only once loaded.
package filestack

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
)

// Index maps Filestack handles to destination bucket paths. Loaded once
// per worker process and shared by all jobs.
type Index struct {
	path string

	once    sync.Once
	loadErr error
	entries map[string]string
}

// NewIndex creates an index backed by the CSV at path. Loading is lazy;
// the first Lookup pays the cost.
func NewIndex(path string) *Index {
	return &Index{path: path}
}

func (i *Index) load() {
	f, err := os.Open(i.path)
	if err != nil {
		i.loadErr = fmt.Errorf("open handle index: %w", err)
		return
	}
	defer f.Close()

	entries := make(map[string]string)
	r := csv.NewReader(f)

	header, err := r.Read()
	if err != nil {
		i.loadErr = fmt.Errorf("read handle index header: %w", err)
		return
	}
	handleCol, pathCol := 0, 1
	for idx, name := range header {
		switch name {
		case "handle":
			handleCol = idx
		case "path":
			pathCol = idx
		}
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			i.loadErr = fmt.Errorf("read handle index: %w", err)
			return
		}
		if row[handleCol] == "" || row[pathCol] == "" {
			continue
		}
		entries[row[handleCol]] = row[pathCol]
	}

	i.entries = entries
}

// Lookup resolves a handle to its destination path.
func (i *Index) Lookup(handle string) (string, bool, error) {
	i.once.Do(i.load)
	if i.loadErr != nil {
		return "", false, i.loadErr
	}
	path, ok := i.entries[handle]
	return path, ok, nil
}

// Len returns the number of indexed handles, loading if necessary.
func (i *Index) Len() (int, error) {
	i.once.Do(i.load)
	if i.loadErr != nil {
		return 0, i.loadErr
	}
	return len(i.entries), nil
}
