//go:build cgo

package capi

import "fmt"

/*
#cgo pkg-config: libfabric
#include <rdma/fi_errno.h>

#ifndef FI_ENOMR
#define FI_ENOMR FI_EOTHER
#endif
*/
import "C"

// Errno represents a libfabric error code (positive integral value).
type Errno int32

// Error codes mirrored from <rdma/fi_errno.h>, limited to the values the
// runtime inspects or is likely to surface.
const (
	Success        Errno = Errno(C.FI_SUCCESS)
	ErrAgain       Errno = Errno(C.FI_EAGAIN)
	ErrNoMemory    Errno = Errno(C.FI_ENOMEM)
	ErrNoDevice    Errno = Errno(C.FI_ENODEV)
	ErrNoData      Errno = Errno(C.FI_ENODATA)
	ErrOpNotSupp   Errno = Errno(C.FI_EOPNOTSUPP)
	ErrInvalid     Errno = Errno(C.FI_EINVAL)
	ErrMsgSize     Errno = Errno(C.FI_EMSGSIZE)
	ErrTooSmall    Errno = Errno(C.FI_ETOOSMALL)
	ErrBadState    Errno = Errno(C.FI_EOPBADSTATE)
	ErrUnavailable Errno = Errno(C.FI_EAVAIL)
	ErrNoKey       Errno = Errno(C.FI_ENOKEY)
	ErrNoMR        Errno = Errno(C.FI_ENOMR)
	ErrTruncated   Errno = Errno(C.FI_ETRUNC)
	ErrOther       Errno = Errno(C.FI_EOTHER)
)

// Error returns the human-readable string as produced by fi_strerror.
func (e Errno) Error() string {
	return e.String()
}

// String returns the libfabric-provided message for the Errno.
func (e Errno) String() string {
	if e == Success {
		return "success"
	}
	return C.GoString(C.fi_strerror(C.int(e)))
}

// WithOp adds operation context to the provided Errno.
func (e Errno) WithOp(op string) error {
	if op == "" {
		return e
	}
	return fmt.Errorf("%s: %w", op, e)
}

// ErrorFromStatus converts a libfabric status code into a Go error. Libfabric
// calls return 0 on success and a negated errno on failure; positive values
// (byte counts and the like) are treated as success.
func ErrorFromStatus(status int, op string) error {
	if status >= 0 {
		return nil
	}
	return Errno(-status).WithOp(op)
}
