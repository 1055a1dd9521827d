package domain

import "errors"

var (
	ErrMalformedSource   = errors.New("malformed source")
	ErrEmptyQuery        = errors.New("empty query")
	ErrUnknownTopic      = errors.New("unknown topic")
	ErrInvalidChunking   = errors.New("invalid chunk size or overlap")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNoIndex           = errors.New("topic has no index")
)
