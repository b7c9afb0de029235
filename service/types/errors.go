package types

import "errors"

var (
	ErrNotFound = errors.New("resource not found")
	ErrDenied   = errors.New("method not allowed")
	ErrConflict = errors.New("resource changed during request")
	ErrTooLarge = errors.New("selection exceeds body size limit")

	// ErrRange - remote range failure, local ones are *utils.RangeError
	ErrRange = errors.New("range not satisfiable")
)
