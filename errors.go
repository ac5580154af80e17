package plotline

import "errors"

var (
	// ErrMissingConfig is returned when a required setting is absent.
	ErrMissingConfig = errors.New("plotline: missing required configuration")

	// ErrGraphUnavailable is returned when the graph database cannot be
	// reached.
	ErrGraphUnavailable = errors.New("plotline: graph database unreachable")

	// ErrDraftExists is returned when creating a draft whose filename is
	// already taken.
	ErrDraftExists = errors.New("plotline: draft already exists")

	// ErrUnknownTemplate is returned for a draft type with no template.
	ErrUnknownTemplate = errors.New("plotline: unknown draft template")

	// ErrNotImplemented marks operations that are defined but not built
	// yet, such as Export.
	ErrNotImplemented = errors.New("plotline: not implemented")
)
