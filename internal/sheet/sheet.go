// Package sheet defines the tabular store contract shared by every backend
// and opens the backend selected by configuration.
//
// A sheet is an ordered list of rows of text cells. Row 0 is the header.
// Positions passed to Update and Delete index the slice returned by Rows, so
// callers must re-read Rows immediately before a positional write.
package sheet

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/basket/internal/sheet/jsonl"
	"github.com/mesh-intelligence/basket/internal/sheet/memory"
	"github.com/mesh-intelligence/basket/internal/sheet/s3sheet"
	"github.com/mesh-intelligence/basket/internal/sheet/sqlsheet"
	"github.com/mesh-intelligence/basket/internal/sheet/xlsx"
	"github.com/mesh-intelligence/basket/pkg/types"
)

// Sheet is a remote or local tabular store.
type Sheet interface {
	// Rows returns every row, header included. A store that does not exist
	// yet returns no rows and no error.
	Rows(ctx context.Context) ([][]string, error)

	// Replace atomically overwrites the whole sheet with rows.
	Replace(ctx context.Context, rows [][]string) error

	// Append adds a row after the last one.
	Append(ctx context.Context, row []string) error

	// Update overwrites the row at pos. Returns types.ErrRowOutOfRange when
	// pos does not exist.
	Update(ctx context.Context, pos int, row []string) error

	// Delete removes the row at pos, shifting later rows up. Returns
	// types.ErrRowOutOfRange when pos does not exist.
	Delete(ctx context.Context, pos int) error

	// Close releases backend resources.
	Close() error
}

// Compile-time checks that every backend satisfies Sheet.
var (
	_ Sheet = (*memory.Sheet)(nil)
	_ Sheet = (*jsonl.Sheet)(nil)
	_ Sheet = (*xlsx.Sheet)(nil)
	_ Sheet = (*s3sheet.Sheet)(nil)
	_ Sheet = (*sqlsheet.Sheet)(nil)
)

// File names used under DataDir by the local backends.
const (
	XLSXFileName   = "basket.xlsx"
	SQLiteFileName = "basket.db"
)

// Open validates cfg and opens the configured backend.
func Open(ctx context.Context, cfg types.Config) (Sheet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	name := cfg.GetSheetName()

	switch cfg.Backend {
	case types.BackendMemory:
		return memory.New(), nil
	case types.BackendJSONL:
		return jsonl.New(filepath.Join(dataDir, name+".jsonl"))
	case types.BackendXLSX:
		return xlsx.New(filepath.Join(dataDir, XLSXFileName), name)
	case types.BackendS3:
		return s3sheet.New(ctx, cfg.S3, name)
	case types.BackendSQLite:
		return sqlsheet.Open(ctx, sqlsheet.DriverSQLite, filepath.Join(dataDir, SQLiteFileName), name)
	case types.BackendPostgres:
		return sqlsheet.Open(ctx, sqlsheet.DriverPostgres, cfg.Postgres.DSN, name)
	default:
		return nil, fmt.Errorf("open sheet %q: %w", cfg.Backend, types.ErrBackendUnknown)
	}
}

// LocalPath returns the file a local backend writes, or "" for backends that
// do not live in a single local file.
func LocalPath(cfg types.Config) string {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	switch cfg.Backend {
	case types.BackendJSONL:
		return filepath.Join(dataDir, cfg.GetSheetName()+".jsonl")
	case types.BackendXLSX:
		return filepath.Join(dataDir, XLSXFileName)
	default:
		return ""
	}
}
