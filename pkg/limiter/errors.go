package limiter

import "errors"

var (
	ErrEmptyKey      = errors.New("empty rate limit key")
	ErrInvalidConfig = errors.New("invalid rate limiter configuration")
	ErrInvalidCost   = errors.New("requested token count must be > 0")
)
