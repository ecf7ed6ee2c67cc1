// Package memory provides an in-process sheet used by tests and by the
// "memory" backend.
package memory

import (
	"context"
	"sync"

	"github.com/mesh-intelligence/basket/pkg/types"
)

// Write operation names recorded by Writes.
const (
	OpReplace = "replace"
	OpAppend  = "append"
	OpUpdate  = "update"
	OpDelete  = "delete"
)

// Sheet keeps rows in memory. It can be told to fail so callers can exercise
// unreachable-store paths.
type Sheet struct {
	mu     sync.Mutex
	rows   [][]string
	err    error
	writes []string
	closed bool
}

// New returns a sheet holding a copy of rows.
func New(rows ...[]string) *Sheet {
	return &Sheet{rows: copyRows(rows)}
}

// FailWith makes every later call return err. Pass nil to recover.
func (s *Sheet) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Writes returns the names of the write operations performed so far.
func (s *Sheet) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	copy(out, s.writes)
	return out
}

// Snapshot returns a copy of the rows without going through the failure hook.
func (s *Sheet) Snapshot() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRows(s.rows)
}

// Closed reports whether Close was called.
func (s *Sheet) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sheet) Rows(ctx context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return copyRows(s.rows), nil
}

func (s *Sheet) Replace(ctx context.Context, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.rows = copyRows(rows)
	s.writes = append(s.writes, OpReplace)
	return nil
}

func (s *Sheet) Append(ctx context.Context, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.rows = append(s.rows, copyRow(row))
	s.writes = append(s.writes, OpAppend)
	return nil
}

func (s *Sheet) Update(ctx context.Context, pos int, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if pos < 0 || pos >= len(s.rows) {
		return types.ErrRowOutOfRange
	}
	s.rows[pos] = copyRow(row)
	s.writes = append(s.writes, OpUpdate)
	return nil
}

func (s *Sheet) Delete(ctx context.Context, pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if pos < 0 || pos >= len(s.rows) {
		return types.ErrRowOutOfRange
	}
	s.rows = append(s.rows[:pos], s.rows[pos+1:]...)
	s.writes = append(s.writes, OpDelete)
	return nil
}

func (s *Sheet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// check returns the injected failure or the context error.
// The caller must hold s.mu.
func (s *Sheet) check(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = copyRow(r)
	}
	return out
}

func copyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}
