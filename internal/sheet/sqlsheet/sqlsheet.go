// Package sqlsheet stores a sheet in a SQL table, one row per sheet row with
// the cells serialised as a JSON array. SQLite (modernc.org/sqlite) and
// Postgres (pgx) are supported through database/sql.
package sqlsheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/basket/pkg/types"
)

// database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// validTable restricts table names to plain identifiers; the name is
// interpolated into DDL and queries.
var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Sheet is a SQL-backed sheet.
type Sheet struct {
	db     *sql.DB
	driver string
	table  string
}

// Open connects to dsn with driver, creates the table if needed, and returns
// the sheet. For SQLite, dsn is a file path whose directory is created.
func Open(ctx context.Context, driver, dsn, table string) (*Sheet, error) {
	if table == "" {
		return nil, types.ErrSheetNameEmpty
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("table name %q: %w", table, types.ErrSheetNameInvalid)
	}
	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection serialises writers and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	s := &Sheet{db: db, driver: driver, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sheet) ensureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    pos INTEGER NOT NULL,
    cells TEXT NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_pos ON %s(pos)`, s.table, s.table),
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating table %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *Sheet) Rows(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q("SELECT cells FROM %s ORDER BY pos ASC"))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.table, err)
		}
		// A row that is not a JSON array of strings reads as empty so that
		// slice indexes keep matching pos.
		cells := []string{}
		if err := json.Unmarshal([]byte(raw), &cells); err != nil || cells == nil {
			cells = []string{}
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", s.table, err)
	}
	return out, nil
}

func (s *Sheet) Replace(ctx context.Context, rows [][]string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM %s")); err != nil {
			return fmt.Errorf("clearing %s: %w", s.table, err)
		}
		stmt, err := tx.PrepareContext(ctx, s.q("INSERT INTO %s (pos, cells) VALUES (?, ?)"))
		if err != nil {
			return fmt.Errorf("preparing insert for %s: %w", s.table, err)
		}
		defer stmt.Close()
		for i, row := range rows {
			cells, err := encodeCells(row)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, i, cells); err != nil {
				return fmt.Errorf("inserting row %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *Sheet) Append(ctx context.Context, row []string) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, s.q("SELECT COALESCE(MAX(pos) + 1, 0) FROM %s")).Scan(&next); err != nil {
			return fmt.Errorf("finding end of %s: %w", s.table, err)
		}
		if _, err := tx.ExecContext(ctx, s.q("INSERT INTO %s (pos, cells) VALUES (?, ?)"), next, cells); err != nil {
			return fmt.Errorf("appending to %s: %w", s.table, err)
		}
		return nil
	})
}

func (s *Sheet) Update(ctx context.Context, pos int, row []string) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q("UPDATE %s SET cells = ? WHERE pos = ?"), cells, pos)
	if err != nil {
		return fmt.Errorf("updating %s row %d: %w", s.table, pos, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s row %d: %w", s.table, pos, err)
	}
	if n == 0 {
		return types.ErrRowOutOfRange
	}
	return nil
}

func (s *Sheet) Delete(ctx context.Context, pos int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM %s WHERE pos = ?"), pos)
		if err != nil {
			return fmt.Errorf("deleting %s row %d: %w", s.table, pos, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deleting %s row %d: %w", s.table, pos, err)
		}
		if n == 0 {
			return types.ErrRowOutOfRange
		}
		if _, err := tx.ExecContext(ctx, s.q("UPDATE %s SET pos = pos - 1 WHERE pos > ?"), pos); err != nil {
			return fmt.Errorf("shifting %s rows: %w", s.table, err)
		}
		return nil
	})
}

// Close closes the database handle.
func (s *Sheet) Close() error {
	return s.db.Close()
}

func (s *Sheet) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// q fills the table name into query and rewrites ? placeholders to $n for
// Postgres.
func (s *Sheet) q(query string) string {
	query = fmt.Sprintf(query, s.table)
	if s.driver != DriverPostgres {
		return query
	}
	return rebind(query)
}

func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func encodeCells(row []string) (string, error) {
	if row == nil {
		row = []string{}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("marshaling cells: %w", err)
	}
	return string(data), nil
}
