package types

import (
	"errors"
	"strings"
)

// Default values applied when an item is added without a category or store.
const (
	DefaultCategory = "Other"
	DefaultStore    = "Any"
)

// Canonical column names of the tabular store header, in write order.
const (
	ColumnID        = "sid"
	ColumnName      = "item"
	ColumnPurchased = "purchased"
	ColumnCategory  = "category"
	ColumnStore     = "store"
)

// Header is the header row written on every full replace.
var Header = []string{ColumnID, ColumnName, ColumnPurchased, ColumnCategory, ColumnStore}

// Literal cell values for the purchased column.
const (
	PurchasedTrue  = "True"
	PurchasedFalse = "False"
)

// Item is a single shopping list entry.
type Item struct {
	ID        string `json:"sid"`       // UUID v7 assigned on creation, never reused.
	Name      string `json:"item"`      // Human-readable name (required, non-empty).
	Purchased bool   `json:"purchased"` // Whether the item is already in the basket.
	Category  string `json:"category"`
	Store     string `json:"store"`
}

// ErrInvalidName is returned when an item name is empty.
var ErrInvalidName = errors.New("item name must not be empty")

// Toggle flips the purchased flag.
func (it *Item) Toggle() {
	it.Purchased = !it.Purchased
}

// Normalize trims text fields and fills in default category and store.
// Returns ErrInvalidName when the trimmed name is empty.
func (it *Item) Normalize() error {
	it.Name = strings.TrimSpace(it.Name)
	it.Category = strings.TrimSpace(it.Category)
	it.Store = strings.TrimSpace(it.Store)
	if it.Name == "" {
		return ErrInvalidName
	}
	if it.Category == "" {
		it.Category = DefaultCategory
	}
	if it.Store == "" {
		it.Store = DefaultStore
	}
	return nil
}

// Row renders the item as a row in Header column order.
func (it Item) Row() []string {
	return []string{it.ID, it.Name, FormatPurchased(it.Purchased), it.Category, it.Store}
}

// FormatPurchased returns the literal cell text for a purchased flag.
func FormatPurchased(v bool) string {
	if v {
		return PurchasedTrue
	}
	return PurchasedFalse
}

// ParsePurchased coerces a cell to a boolean. Matching is case-insensitive;
// anything that is not recognisably true is false.
func ParsePurchased(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "true", "yes", "y", "1", "x":
		return true
	default:
		return false
	}
}
