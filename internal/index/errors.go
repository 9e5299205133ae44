package index

import "errors"

// Sentinel errors reified at the module boundary. The API layer maps them to
// HTTP statuses via errors.Is.
var (
	// ErrNotFound marks a missing index, dataset, entity or adjacency property.
	ErrNotFound = errors.New("not found")

	// ErrIndexNotReady marks a query against an index that does not exist
	// yet: a misconfigured prefix or a still-ingesting first boot.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrInvalid marks malformed queries and other bad input.
	ErrInvalid = errors.New("invalid request")
)
