// Package resolve turns one-shot user actions into mutations of an
// in-memory item collection.
//
// A request carries at most one action (toggle or delete) and a raw
// identifier. The resolver normalizes the identifier, selects matching items
// under its MatchPolicy, and returns a new collection with the mutation
// applied. The input slice is never modified. Unmatched or malformed
// identifiers are dropped without error.
package resolve

import (
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/basket/pkg/types"
)

// Outcome describes what a single Resolve call did.
type Outcome struct {
	Action  types.Action
	ID      string       // normalized identifier
	Applied bool         // true when the collection changed
	Changed []types.Item // toggled items, post-toggle
	Removed []types.Item // deleted items
}

// Resolver applies actions under a match policy.
type Resolver struct {
	policy types.MatchPolicy
	logger *zap.Logger
}

// New returns a resolver for policy. An empty policy means exact matching.
func New(policy types.MatchPolicy, logger *zap.Logger) (*Resolver, error) {
	if policy == "" {
		policy = types.MatchExact
	}
	switch policy {
	case types.MatchExact, types.MatchLoose, types.MatchPosition:
	default:
		return nil, types.ErrMatchPolicyUnknown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{policy: policy, logger: logger}, nil
}

// Policy returns the match policy in effect.
func (r *Resolver) Policy() types.MatchPolicy {
	return r.policy
}

// Normalize decodes percent-escapes in raw and trims surrounding whitespace.
// A plus sign is kept as is. Text that fails to decode is only trimmed.
func Normalize(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return strings.TrimSpace(decoded)
}

// Consume removes the action parameters from values and returns the pending
// action, if any. Toggle wins when both parameters are present. A second call
// on the same values finds nothing.
func Consume(values url.Values) (types.Action, bool) {
	if values == nil {
		return types.Action{}, false
	}
	toggle, hasToggle := first(values, string(types.ActionToggle))
	del, hasDelete := first(values, string(types.ActionDelete))
	values.Del(string(types.ActionToggle))
	values.Del(string(types.ActionDelete))

	switch {
	case hasToggle:
		return types.Action{Kind: types.ActionToggle, RawID: toggle}, true
	case hasDelete:
		return types.Action{Kind: types.ActionDelete, RawID: del}, true
	}
	return types.Action{}, false
}

// ParseAction builds an action from a kind name and raw identifier.
func ParseAction(kind, rawID string) (types.Action, error) {
	a := types.Action{Kind: types.ActionKind(strings.ToLower(strings.TrimSpace(kind))), RawID: rawID}
	if !a.Valid() {
		return types.Action{}, types.ErrInvalidAction
	}
	return a, nil
}

func first(values url.Values, key string) (string, bool) {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// Resolve applies a to items and returns the resulting collection.
// Toggle flips the first matching item. Delete removes the first matching
// item, or every matching item under MatchLoose.
func (r *Resolver) Resolve(items []types.Item, a types.Action) ([]types.Item, Outcome) {
	out := make([]types.Item, len(items))
	copy(out, items)

	oc := Outcome{Action: a, ID: Normalize(a.RawID)}
	if !a.Valid() {
		r.logger.Debug("dropping invalid action", zap.String("kind", string(a.Kind)))
		return out, oc
	}

	matches := r.match(out, oc.ID)
	if len(matches) == 0 {
		r.logger.Debug("no item matches action",
			zap.String("kind", string(a.Kind)),
			zap.String("id", oc.ID),
			zap.String("policy", string(r.policy)))
		return out, oc
	}

	switch a.Kind {
	case types.ActionToggle:
		i := matches[0]
		out[i].Toggle()
		oc.Changed = []types.Item{out[i]}
	case types.ActionDelete:
		if r.policy != types.MatchLoose {
			matches = matches[:1]
		}
		out, oc.Removed = removeAt(out, matches)
	}
	oc.Applied = true
	return out, oc
}

// match returns the indexes of items selected by id, in collection order.
func (r *Resolver) match(items []types.Item, id string) []int {
	if id == "" {
		return nil
	}
	switch r.policy {
	case types.MatchPosition:
		n, err := strconv.Atoi(id)
		if err != nil || n < 0 || n >= len(items) {
			return nil
		}
		return []int{n}
	case types.MatchLoose:
		needle := strings.ToLower(id)
		var idx []int
		for i, it := range items {
			if strings.Contains(strings.ToLower(it.ID), needle) {
				idx = append(idx, i)
			}
		}
		return idx
	default:
		for i, it := range items {
			if it.ID == id {
				return []int{i}
			}
		}
		return nil
	}
}

// removeAt drops the items at the ascending indexes idx.
func removeAt(items []types.Item, idx []int) ([]types.Item, []types.Item) {
	kept := make([]types.Item, 0, len(items)-len(idx))
	removed := make([]types.Item, 0, len(idx))
	next := 0
	for i, it := range items {
		if next < len(idx) && idx[next] == i {
			removed = append(removed, it)
			next++
			continue
		}
		kept = append(kept, it)
	}
	return kept, removed
}
