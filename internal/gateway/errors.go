package gateway

import "errors"

// Operation failure taxonomy. Every error leaving the gateway wraps one
// of these sentinels (or authz.ErrPermissionDenied), so transport layers
// can map them to status codes without string matching.
var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotFound          = errors.New("document not found")
	ErrDuplicateFavorite = errors.New("favorite already exists")
	ErrMalformedQuery    = errors.New("malformed query conditions")
	ErrValidation        = errors.New("validation failure")
)
