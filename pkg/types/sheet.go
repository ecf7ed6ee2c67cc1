package types

import "errors"

// Tabular store errors.
var (
	// ErrRowOutOfRange is returned by a sheet when a row position does not exist.
	ErrRowOutOfRange = errors.New("row position out of range")
	// ErrSheetNameEmpty is returned when a sheet is opened without a name.
	ErrSheetNameEmpty = errors.New("sheet name must not be empty")
	// ErrSheetNameInvalid is returned when a sheet name cannot be used by the
	// backend, such as a table name that is not a plain identifier.
	ErrSheetNameInvalid = errors.New("invalid sheet name")
	// ErrDegraded is returned when a full replace is attempted while the
	// cached collection came from a failed load.
	ErrDegraded = errors.New("collection was not loaded from the store")
	// ErrListClosed is returned by operations on a closed list.
	ErrListClosed = errors.New("list is closed")
)

// ErrUnkeyed is returned by an incremental write when the sheet has no
// identifier column, so rows cannot be located by ID.
var ErrUnkeyed = errors.New("sheet has no identifier column")

// ErrHeaderUnrecognized is returned when the first row of a sheet has no
// item column.
var ErrHeaderUnrecognized = errors.New("sheet header has no item column")
