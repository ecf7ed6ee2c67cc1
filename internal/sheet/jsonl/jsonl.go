// Package jsonl stores a sheet as a JSONL file: one JSON array of cell
// strings per line, header first. Every write rewrites the file atomically.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/basket/pkg/types"
)

// Sheet is a JSONL-backed sheet rooted at a single file.
type Sheet struct {
	mu   sync.Mutex
	path string
}

// New returns a sheet for path, creating the parent directory if needed.
// The file itself is created on the first write.
func New(path string) (*Sheet, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Sheet{path: path}, nil
}

// Path returns the backing file.
func (s *Sheet) Path() string { return s.path }

func (s *Sheet) Rows(ctx context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readJSONL(s.path)
}

func (s *Sheet) Replace(ctx context.Context, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONL(s.path, rows)
}

func (s *Sheet) Append(ctx context.Context, row []string) error {
	return s.edit(ctx, func(rows [][]string) ([][]string, error) {
		return append(rows, row), nil
	})
}

func (s *Sheet) Update(ctx context.Context, pos int, row []string) error {
	return s.edit(ctx, func(rows [][]string) ([][]string, error) {
		if pos < 0 || pos >= len(rows) {
			return nil, types.ErrRowOutOfRange
		}
		rows[pos] = row
		return rows, nil
	})
}

func (s *Sheet) Delete(ctx context.Context, pos int) error {
	return s.edit(ctx, func(rows [][]string) ([][]string, error) {
		if pos < 0 || pos >= len(rows) {
			return nil, types.ErrRowOutOfRange
		}
		return append(rows[:pos], rows[pos+1:]...), nil
	})
}

func (s *Sheet) Close() error { return nil }

// edit reads the file, applies fn, and writes the result back atomically.
func (s *Sheet) edit(ctx context.Context, fn func([][]string) ([][]string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, err := readJSONL(s.path)
	if err != nil {
		return err
	}
	rows, err = fn(rows)
	if err != nil {
		return err
	}
	return writeJSONL(s.path, rows)
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a row. Malformed lines are skipped. A missing file yields no rows.
func readJSONL(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row []string
		if err := json.Unmarshal(line, &row); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return rows, nil
}

// writeJSONL atomically writes rows to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, row := range rows {
		if row == nil {
			row = []string{}
		}
		rec, err := json.Marshal(row)
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("marshaling row: %w", err)
		}
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing row: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
