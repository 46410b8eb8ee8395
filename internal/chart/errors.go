package chart

import "errors"

// Precondition errors returned by the pipeline. Callers match them with
// errors.Is; the returned error usually wraps one of these with detail.
var (
	// ErrRaggedRows is returned when a row's cell count differs from the
	// number of columns.
	ErrRaggedRows = errors.New("row length does not match column count")

	// ErrInvalidMaxPoints is returned for a non-positive point budget.
	ErrInvalidMaxPoints = errors.New("max points must be positive")

	// ErrAxisOutOfRange is returned when an axis index does not address a
	// column of the current result.
	ErrAxisOutOfRange = errors.New("axis index out of range")

	// ErrNoColumns is returned when axes are requested for a result with
	// no columns.
	ErrNoColumns = errors.New("result has no columns")

	// ErrColumnNotFound is returned when an axis is selected by a name the
	// result does not contain.
	ErrColumnNotFound = errors.New("column not found")

	// ErrNotEnoughPoints is returned by Render when fewer than two finite
	// points are available to draw.
	ErrNotEnoughPoints = errors.New("not enough finite points to render")
)

// IsPrecondition reports whether err is one of the caller-side precondition
// violations above (as opposed to an I/O or rendering failure).
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrRaggedRows) ||
		errors.Is(err, ErrInvalidMaxPoints) ||
		errors.Is(err, ErrAxisOutOfRange) ||
		errors.Is(err, ErrNoColumns) ||
		errors.Is(err, ErrColumnNotFound)
}
