// Package xlsx stores a sheet as one worksheet of an Excel workbook.
// Writes edit the target worksheet in place so other worksheets and styling
// in the same workbook survive.
package xlsx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/basket/pkg/types"
)

// ContentType is the MIME type of an xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet is a worksheet inside a workbook file on local disk.
type Sheet struct {
	mu    sync.Mutex
	path  string
	sheet string
}

// New returns a sheet for the worksheet named sheet inside the workbook at
// path. The workbook is created on the first write.
func New(path, sheet string) (*Sheet, error) {
	if sheet == "" {
		return nil, types.ErrSheetNameEmpty
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Sheet{path: path, sheet: sheet}, nil
}

// Path returns the workbook file.
func (s *Sheet) Path() string { return s.path }

func (s *Sheet) Rows(ctx context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()
	return ReadRows(f, s.sheet)
}

func (s *Sheet) Replace(ctx context.Context, rows [][]string) error {
	return s.edit(ctx, func(f *excelize.File) error { return ReplaceRows(f, s.sheet, rows) })
}

func (s *Sheet) Append(ctx context.Context, row []string) error {
	return s.edit(ctx, func(f *excelize.File) error { return AppendRow(f, s.sheet, row) })
}

func (s *Sheet) Update(ctx context.Context, pos int, row []string) error {
	return s.edit(ctx, func(f *excelize.File) error { return UpdateRow(f, s.sheet, pos, row) })
}

func (s *Sheet) Delete(ctx context.Context, pos int) error {
	return s.edit(ctx, func(f *excelize.File) error { return DeleteRow(f, s.sheet, pos) })
}

func (s *Sheet) Close() error { return nil }

// edit opens (or creates) the workbook, applies fn, and saves atomically.
func (s *Sheet) edit(ctx context.Context, fn func(*excelize.File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("opening workbook: %w", err)
		}
		f = excelize.NewFile()
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	return saveAtomic(f, s.path)
}

// saveAtomic writes the workbook to a temp file next to path, syncs it, and
// renames it into place.
func saveAtomic(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".xlsx-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing workbook: %w", err)
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

// Open parses a workbook from r, or returns a new empty workbook when r is nil.
func Open(r io.Reader) (*excelize.File, error) {
	if r == nil {
		return excelize.NewFile(), nil
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing workbook: %w", err)
	}
	return f, nil
}

// Encode serialises the workbook.
func Encode(f *excelize.File) (*bytes.Buffer, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf, nil
}

// ReadRows returns every row of the worksheet. A missing worksheet yields no rows.
func ReadRows(f *excelize.File, sheet string) ([][]string, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("looking up worksheet %s: %w", sheet, err)
	}
	if idx < 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %s: %w", sheet, err)
	}
	return rows, nil
}

// ReplaceRows clears the worksheet and writes rows from A1.
func ReplaceRows(f *excelize.File, sheet string, rows [][]string) error {
	existing, err := ensureSheet(f, sheet)
	if err != nil {
		return err
	}
	for n := len(existing); n >= 1; n-- {
		if err := f.RemoveRow(sheet, n); err != nil {
			return fmt.Errorf("clearing row %d: %w", n, err)
		}
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+1, row, 0); err != nil {
			return err
		}
	}
	return nil
}

// AppendRow writes row below the last non-empty row.
func AppendRow(f *excelize.File, sheet string, row []string) error {
	existing, err := ensureSheet(f, sheet)
	if err != nil {
		return err
	}
	return setRow(f, sheet, len(existing)+1, row, 0)
}

// UpdateRow overwrites the zero-based row pos, blanking cells the new row
// no longer covers.
func UpdateRow(f *excelize.File, sheet string, pos int, row []string) error {
	existing, err := ensureSheet(f, sheet)
	if err != nil {
		return err
	}
	if pos < 0 || pos >= len(existing) {
		return types.ErrRowOutOfRange
	}
	return setRow(f, sheet, pos+1, row, len(existing[pos]))
}

// DeleteRow removes the zero-based row pos and shifts later rows up.
func DeleteRow(f *excelize.File, sheet string, pos int) error {
	existing, err := ensureSheet(f, sheet)
	if err != nil {
		return err
	}
	if pos < 0 || pos >= len(existing) {
		return types.ErrRowOutOfRange
	}
	if err := f.RemoveRow(sheet, pos+1); err != nil {
		return fmt.Errorf("removing row %d: %w", pos+1, err)
	}
	return nil
}

// ensureSheet makes sure the worksheet exists and returns its current rows.
// A fresh workbook's default worksheet is renamed rather than left behind.
func ensureSheet(f *excelize.File, sheet string) ([][]string, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("looking up worksheet %s: %w", sheet, err)
	}
	if idx < 0 {
		list := f.GetSheetList()
		if len(list) == 1 && list[0] == "Sheet1" && isEmpty(f, list[0]) {
			if err := f.SetSheetName(list[0], sheet); err != nil {
				return nil, fmt.Errorf("renaming default worksheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("creating worksheet %s: %w", sheet, err)
		}
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %s: %w", sheet, err)
	}
	return rows, nil
}

func isEmpty(f *excelize.File, sheet string) bool {
	rows, err := f.GetRows(sheet)
	return err == nil && len(rows) == 0
}

// setRow writes row at the one-based row number n. When width exceeds the
// row length the remaining cells are blanked.
func setRow(f *excelize.File, sheet string, n int, row []string, width int) error {
	if width < len(row) {
		width = len(row)
	}
	if width == 0 {
		return nil
	}
	cells := make([]interface{}, width)
	for i := range cells {
		if i < len(row) {
			cells[i] = row[i]
		} else {
			cells[i] = ""
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("addressing row %d: %w", n, err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("writing row %d: %w", n, err)
	}
	return nil
}
