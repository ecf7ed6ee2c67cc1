// Package store is the record store adapter: it maps between a tabular
// sheet and the in-memory item collection.
//
// Load reads the whole sheet and never fails; an unreachable or unreadable
// store yields an empty, degraded snapshot. Writes are either a full replace
// (header plus every item) or a single targeted row write. Targeted writes
// re-read the sheet and locate the row by exact identifier immediately before
// writing; row positions are never cached.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/basket/internal/metrics"
	"github.com/mesh-intelligence/basket/internal/sheet"
	"github.com/mesh-intelligence/basket/pkg/types"
)

// Write operation labels.
const (
	OpReplace = "replace"
	OpAppend  = "append"
	OpUpdate  = "update"
	OpDelete  = "delete"
)

// Snapshot is the result of a full load.
type Snapshot struct {
	Items []types.Item

	// Keyed is false when the sheet lacked an identifier column or carried
	// empty or duplicate identifiers. Such a sheet cannot take targeted
	// writes until it has been rewritten with a full replace.
	Keyed bool

	// Degraded is true when the sheet could not be read. Items is empty.
	Degraded bool
}

// Adapter reads and writes items through a sheet.
type Adapter struct {
	sheet   sheet.Sheet
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New returns an adapter over s. Nil logger and metrics are allowed.
func New(s sheet.Sheet, logger *zap.Logger, m *metrics.Metrics) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Adapter{sheet: s, logger: logger, metrics: m}
}

// NewID returns a fresh UUID v7 identifier.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return id.String(), nil
}

// Load reads every item. Errors are logged and turned into a degraded,
// empty snapshot.
func (a *Adapter) Load(ctx context.Context) Snapshot {
	rows, err := a.sheet.Rows(ctx)
	if err != nil {
		a.logger.Warn("loading items failed; continuing with an empty list", zap.Error(err))
		a.metrics.Loads.WithLabelValues(metrics.ResultDegraded).Inc()
		return Snapshot{Items: []types.Item{}, Keyed: true, Degraded: true}
	}
	snap, err := Parse(rows)
	if err != nil {
		a.logger.Warn("sheet is not an item list; continuing with an empty list", zap.Error(err))
		a.metrics.Loads.WithLabelValues(metrics.ResultDegraded).Inc()
		return Snapshot{Items: []types.Item{}, Keyed: true, Degraded: true}
	}
	if !snap.Keyed {
		a.logger.Info("sheet needs identifier migration; next save rewrites it",
			zap.Int("items", len(snap.Items)))
	}
	a.metrics.Loads.WithLabelValues(metrics.ResultOK).Inc()
	a.logger.Debug("loaded items", zap.Int("items", len(snap.Items)))
	return snap
}

// Save replaces the sheet with the header and every item.
func (a *Adapter) Save(ctx context.Context, items []types.Item) error {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, types.Header)
	for _, it := range items {
		rows = append(rows, it.Row())
	}
	err := a.sheet.Replace(ctx, rows)
	a.count(OpReplace, err)
	if err != nil {
		return fmt.Errorf("replacing sheet: %w", err)
	}
	return nil
}

// Append adds it as a new row. An empty sheet gets the header first.
func (a *Adapter) Append(ctx context.Context, it types.Item) error {
	rows, err := a.sheet.Rows(ctx)
	if err != nil {
		a.count(OpAppend, err)
		return fmt.Errorf("reading rows: %w", err)
	}
	if len(rows) == 0 {
		err = a.sheet.Replace(ctx, [][]string{types.Header, it.Row()})
	} else {
		cols, cerr := parseHeader(rows[0])
		switch {
		case cerr != nil:
			err = cerr
		case cols.id < 0:
			err = types.ErrUnkeyed
		default:
			err = a.sheet.Append(ctx, cols.render(it, nil))
		}
	}
	a.count(OpAppend, err)
	if err != nil {
		return fmt.Errorf("appending %s: %w", it.ID, err)
	}
	return nil
}

// Update overwrites the row holding it.ID. A row that no longer exists is
// appended instead.
func (a *Adapter) Update(ctx context.Context, it types.Item) error {
	rows, cols, pos, err := a.locate(ctx, it.ID)
	if err != nil {
		a.count(OpUpdate, err)
		return fmt.Errorf("updating %s: %w", it.ID, err)
	}
	if pos < 0 {
		a.logger.Debug("row to update is gone; appending", zap.String("id", it.ID))
		return a.Append(ctx, it)
	}
	err = a.sheet.Update(ctx, pos, cols.render(it, rows[pos]))
	a.count(OpUpdate, err)
	if err != nil {
		return fmt.Errorf("updating %s: %w", it.ID, err)
	}
	return nil
}

// Delete removes the row holding id. A missing row is not an error.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	_, _, pos, err := a.locate(ctx, id)
	if err != nil {
		a.count(OpDelete, err)
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	if pos < 0 {
		a.logger.Debug("row to delete is already gone", zap.String("id", id))
		return nil
	}
	err = a.sheet.Delete(ctx, pos)
	a.count(OpDelete, err)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	return nil
}

// locate re-reads the sheet and returns the position of the first row whose
// identifier cell equals id, or -1.
func (a *Adapter) locate(ctx context.Context, id string) ([][]string, columns, int, error) {
	rows, err := a.sheet.Rows(ctx)
	if err != nil {
		return nil, columns{}, -1, fmt.Errorf("reading rows: %w", err)
	}
	if len(rows) == 0 {
		return rows, canonical(), -1, nil
	}
	cols, err := parseHeader(rows[0])
	if err != nil {
		return nil, columns{}, -1, err
	}
	if cols.id < 0 {
		return nil, columns{}, -1, types.ErrUnkeyed
	}
	for pos := 1; pos < len(rows); pos++ {
		if strings.TrimSpace(cell(rows[pos], cols.id)) == id {
			return rows, cols, pos, nil
		}
	}
	return rows, cols, -1, nil
}

func (a *Adapter) count(op string, err error) {
	a.metrics.Writes.WithLabelValues(op, metrics.Result(err)).Inc()
}

// Parse converts sheet rows, header first, into a snapshot. Items without an
// identifier, or with one already seen, get one derived from the row and mark
// the snapshot unkeyed. Rows with an empty name are skipped.
func Parse(rows [][]string) (Snapshot, error) {
	snap := Snapshot{Items: []types.Item{}, Keyed: true}
	if len(rows) == 0 {
		return snap, nil
	}
	cols, err := parseHeader(rows[0])
	if err != nil {
		return Snapshot{}, err
	}
	if cols.id < 0 {
		snap.Keyed = false
	}

	seen := make(map[string]bool, len(rows))
	for i, row := range rows[1:] {
		it := types.Item{
			ID:        strings.TrimSpace(cell(row, cols.id)),
			Name:      cell(row, cols.name),
			Purchased: types.ParsePurchased(cell(row, cols.purchased)),
			Category:  cell(row, cols.category),
			Store:     cell(row, cols.store),
		}
		if err := it.Normalize(); err != nil {
			continue
		}
		if it.ID == "" || seen[it.ID] {
			it.ID = derivedID(i+1, row)
			snap.Keyed = false
		}
		seen[it.ID] = true
		snap.Items = append(snap.Items, it)
	}
	return snap, nil
}

// rowNamespace is the UUID v5 namespace for derived row identifiers.
var rowNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("basket.row"))

// derivedID names the row at pos by its position and cells, so an unkeyed
// sheet yields the same identifiers on every load until it is rewritten.
func derivedID(pos int, row []string) string {
	name := strconv.Itoa(pos) + "\x1f" + strings.Join(row, "\x1f")
	return uuid.NewSHA1(rowNamespace, []byte(name)).String()
}

// columns maps logical fields to header positions; -1 means absent.
type columns struct {
	id, name, purchased, category, store int
	width                                int
}

func canonical() columns {
	return columns{id: 0, name: 1, purchased: 2, category: 3, store: 4, width: len(types.Header)}
}

// parseHeader locates columns by name, case-insensitively. sid, id and the
// legacy timestamp column are accepted as the identifier.
func parseHeader(header []string) (columns, error) {
	c := columns{id: -1, name: -1, purchased: -1, category: -1, store: -1, width: len(header)}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case types.ColumnID, "id", "timestamp":
			if c.id < 0 {
				c.id = i
			}
		case types.ColumnName, "name":
			if c.name < 0 {
				c.name = i
			}
		case types.ColumnPurchased:
			if c.purchased < 0 {
				c.purchased = i
			}
		case types.ColumnCategory:
			if c.category < 0 {
				c.category = i
			}
		case types.ColumnStore:
			if c.store < 0 {
				c.store = i
			}
		}
	}
	if c.name < 0 {
		return columns{}, fmt.Errorf("header %q: %w", header, types.ErrHeaderUnrecognized)
	}
	return c, nil
}

// render lays it out in the sheet's column order. Cells of unknown columns
// are carried over from prev.
func (c columns) render(it types.Item, prev []string) []string {
	row := make([]string, c.width)
	copy(row, prev)
	set := func(i int, v string) {
		if i >= 0 {
			row[i] = v
		}
	}
	set(c.id, it.ID)
	set(c.name, it.Name)
	set(c.purchased, types.FormatPurchased(it.Purchased))
	set(c.category, it.Category)
	set(c.store, it.Store)
	return row
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
