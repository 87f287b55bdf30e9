package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned for queries neither dialect parser accepts.
	ErrSyntax = errors.New("query syntax error")
	// ErrNotFound is returned when a path or reference names no node.
	ErrNotFound = errors.New("node not found")
)

func syntaxErrorf(pos int, format string, args ...any) error {
	return fmt.Errorf("%w at position %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}
