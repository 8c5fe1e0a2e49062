package models

import "errors"

// Sentinel errors shared by the canonicalizer, the decoders and the
// sensitivity view. Call sites wrap them with context; test with errors.Is.
var (
	// ErrNotFound indicates a key or flat id absent from the correspondence table.
	ErrNotFound = errors.New("detector not found in correspondence table")

	// ErrMalformedGeometry indicates a scanner description violating a structural invariant.
	ErrMalformedGeometry = errors.New("malformed scanner geometry")

	// ErrMalformedStream indicates an event stream inconsistent with the geometry.
	ErrMalformedStream = errors.New("malformed event stream")

	// ErrUnsupportedOperation indicates a mutation on a read-only view.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
