package pages

import "errors"

// Errors returned by Pages[T]'s operations, grounded on
// original_source's kernel/src/mem/pages/errors.rs.
var (
	ErrZeroSize           = errors.New("pages: zero size")
	ErrOutOfRange         = errors.New("pages: segment outside the managed range")
	ErrOverlapping        = errors.New("pages: segment overlaps an existing reservation")
	ErrNotFound           = errors.New("pages: no reservation at that address")
	ErrOutOfVirtualMemory = errors.New("pages: no free region of that layout")
)
