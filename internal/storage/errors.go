package storage

import "errors"

// Storage errors
var (
	ErrInvalidLocation   = errors.New("invalid bucket location")
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	ErrMissingCredential = errors.New("missing storage credential")
	ErrInvalidTTL        = errors.New("presign TTL must be positive")
)
