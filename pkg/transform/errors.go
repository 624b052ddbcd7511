package transform

import "errors"

var (
	// ErrConfiguration reports invalid operation parameters, such as per-hop
	// lists whose length is neither 1 nor k.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation reports malformed expressions, projections or schemas.
	ErrValidation = errors.New("validation error")

	// ErrUnattributedEntity is returned by Export when a column cannot be
	// tied to a single entity.
	ErrUnattributedEntity = errors.New("unattributed entity")
)

const discardedPanic = "transform: context discarded"
