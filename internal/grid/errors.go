package grid

import "errors"

// Error kinds surfaced by the grid engine and the protocol/room layers
// that sit on top of it. Callers should use errors.Is against these
// sentinels rather than matching on message text.
var (
	// ErrDuplicateID is returned by AddItem when the id is already
	// present in the engine.
	ErrDuplicateID = errors.New("grid: duplicate id")

	// ErrNotFound is returned by MoveItem/RemoveItem for an unknown id.
	ErrNotFound = errors.New("grid: id not found")

	// ErrOutOfBounds is returned by any placement or cascade step that
	// would leave the grid's rows x cols bounds.
	ErrOutOfBounds = errors.New("grid: placement out of bounds")

	// ErrMalformed is returned by the codec layer on parse failure.
	ErrMalformed = errors.New("grid: malformed data")

	// ErrDivergence is returned when a received batch's hash_before no
	// longer matches the receiver's current view.
	ErrDivergence = errors.New("grid: view diverged from batch")
)
