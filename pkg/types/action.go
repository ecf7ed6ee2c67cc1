package types

import "errors"

// ActionKind names a one-shot mutation carried by an inbound request.
type ActionKind string

// Recognised action kinds. The string value doubles as the request
// parameter name.
const (
	ActionToggle ActionKind = "toggle"
	ActionDelete ActionKind = "delete"
)

// Action is a pending user command: a kind plus the raw identifier exactly
// as it arrived in the request.
type Action struct {
	Kind  ActionKind
	RawID string
}

// Valid reports whether the action kind is recognised.
func (a Action) Valid() bool {
	return a.Kind == ActionToggle || a.Kind == ActionDelete
}

// MatchPolicy selects how a raw identifier is compared against item IDs.
type MatchPolicy string

// Match policies, from strongest to weakest.
const (
	// MatchExact selects the item whose ID equals the normalized identifier.
	MatchExact MatchPolicy = "exact"
	// MatchLoose selects items whose ID contains the identifier,
	// case-insensitively. Kept for legacy links; it can match several items.
	MatchLoose MatchPolicy = "loose"
	// MatchPosition treats the identifier as a zero-based index into the
	// collection. Any earlier delete in the same session shifts it.
	MatchPosition MatchPolicy = "position"
)

// Action errors.
var (
	ErrInvalidAction      = errors.New("invalid action")
	ErrMatchPolicyUnknown = errors.New("unknown match policy")
)
