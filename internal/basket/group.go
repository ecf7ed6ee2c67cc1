package basket

import (
	"sort"

	"github.com/mesh-intelligence/basket/pkg/types"
)

// StoreGroup is the items of one store, split by category.
type StoreGroup struct {
	Store      string          `json:"store"`
	Categories []CategoryGroup `json:"categories"`
}

// CategoryGroup is the items of one category within a store.
type CategoryGroup struct {
	Category string       `json:"category"`
	Items    []types.Item `json:"items"`
}

// Group arranges items by store, then category. Stores and categories are
// sorted by name; items keep their collection order.
func Group(items []types.Item) []StoreGroup {
	byStore := make(map[string]map[string][]types.Item)
	for _, it := range items {
		cats, ok := byStore[it.Store]
		if !ok {
			cats = make(map[string][]types.Item)
			byStore[it.Store] = cats
		}
		cats[it.Category] = append(cats[it.Category], it)
	}

	stores := make([]string, 0, len(byStore))
	for s := range byStore {
		stores = append(stores, s)
	}
	sort.Strings(stores)

	out := make([]StoreGroup, 0, len(stores))
	for _, s := range stores {
		cats := byStore[s]
		names := make([]string, 0, len(cats))
		for c := range cats {
			names = append(names, c)
		}
		sort.Strings(names)

		g := StoreGroup{Store: s}
		for _, c := range names {
			g.Categories = append(g.Categories, CategoryGroup{Category: c, Items: cats[c]})
		}
		out = append(out, g)
	}
	return out
}
