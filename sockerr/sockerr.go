// Package sockerr provides the error taxonomy shared by every socket type.
//
// Operational failures are reported as *Error values carrying a Kind, the
// failing operation, the originating platform error code, and the cause
// chain. Errors support errors.Is/As; Kind comparison goes through IsKind.
package sockerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind categorizes a socket error.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindResolution: name or service lookup failed.
	KindResolution
	// KindSocketCreation: no candidate endpoint yielded a descriptor.
	KindSocketCreation
	// KindConnection: connect failed with an OS error.
	KindConnection
	// KindConnectTimeout: the emulated connect deadline elapsed. Distinct
	// from KindConnection because it is an expected, retryable outcome.
	KindConnectTimeout
	// KindBind: bind failed or was rejected.
	KindBind
	// KindListen: listen failed.
	KindListen
	// KindAccept: accept failed.
	KindAccept
	// KindIO: send or receive failed.
	KindIO
	// KindClosedByPeer: the peer performed an orderly close (zero-length
	// read). An expected terminal condition, not a fault.
	KindClosedByPeer
	// KindWouldBlock: the operation would have blocked on a socket in
	// non-blocking mode. Callers translate this into their own retry loop.
	KindWouldBlock
	// KindInvalidState: operation invoked on a socket with no descriptor,
	// no selected candidate, or in the wrong lifecycle state.
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "resolution failed"
	case KindSocketCreation:
		return "socket creation failed"
	case KindConnection:
		return "connection failed"
	case KindConnectTimeout:
		return "connect timed out"
	case KindBind:
		return "bind failed"
	case KindListen:
		return "listen failed"
	case KindAccept:
		return "accept failed"
	case KindIO:
		return "i/o error"
	case KindClosedByPeer:
		return "connection closed by peer"
	case KindWouldBlock:
		return "operation would block"
	case KindInvalidState:
		return "invalid socket state"
	default:
		return "unknown socket error"
	}
}

// Error is the structured error type used throughout gosock.
type Error struct {
	Kind   Kind
	Op     string // failing operation, e.g. "connect", "sendto"
	Code   int    // originating platform error code, 0 if none
	Detail string // optional human-readable detail
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports Kind equality so that errors.Is(err, &Error{Kind: k}) works
// with sentinel values built from a Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New builds an *Error with no underlying cause.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap builds an *Error around a cause, extracting the platform error code
// when the cause chain bottoms out in an errno.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Code: Code(cause), Err: cause}
}

// Code digs the originating platform error code out of an error chain.
// Returns 0 when the chain carries no errno.
func Code(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

// IsKind reports whether err is (or wraps) a socket error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// IsClosedByPeer reports a graceful peer close.
func IsClosedByPeer(err error) bool { return IsKind(err, KindClosedByPeer) }

// IsTimeout reports an emulated connect timeout.
func IsTimeout(err error) bool { return IsKind(err, KindConnectTimeout) }

// IsWouldBlock reports a non-blocking "try again" outcome.
func IsWouldBlock(err error) bool { return IsKind(err, KindWouldBlock) }
