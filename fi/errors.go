//go:build cgo

package fi

import (
	"errors"

	"github.com/rocketbitz/efaloop/internal/capi"
)

var (
	// ErrNoProvider indicates discovery matched no usable provider entry.
	ErrNoProvider = errors.New("fi: no matching provider")
)

// Errno re-exports the libfabric errno type for consumers of the fi package.
type Errno = capi.Errno

// ErrInvalidHandle indicates a nil or closed handle was used.
type ErrInvalidHandle struct {
	Resource string
}

func (e ErrInvalidHandle) Error() string {
	return "fi: invalid or closed " + e.Resource + " handle"
}
