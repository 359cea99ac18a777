package socket

import (
	"go.uber.org/zap"

	"github.com/OpenListTeam/gosock/platform"
)

// Handle is the exclusively-owned wrapper around one descriptor. Exactly
// one live owner exists at a time; ownership moves via Detach, never by
// aliasing. A valid handle always refers to an unreleased descriptor;
// once released, the descriptor value becomes the invalid sentinel
// permanently.
//
// Handle is not safe for concurrent use without external synchronization.
type Handle struct {
	fd    platform.FD
	valid bool
}

// NewHandle takes ownership of a raw descriptor.
func NewHandle(fd platform.FD) *Handle {
	return &Handle{fd: fd, valid: fd != platform.InvalidFD}
}

// IsValid reports whether the handle still owns a live descriptor.
func (h *Handle) IsValid() bool {
	return h != nil && h.valid
}

// FD returns the owned descriptor, or the invalid sentinel after release.
func (h *Handle) FD() platform.FD {
	if !h.IsValid() {
		return platform.InvalidFD
	}
	return h.fd
}

// Detach transfers ownership of the descriptor to the caller and
// invalidates the handle.
func (h *Handle) Detach() platform.FD {
	if !h.IsValid() {
		return platform.InvalidFD
	}
	fd := h.fd
	h.fd = platform.InvalidFD
	h.valid = false
	return fd
}

// Release closes the descriptor if still owned and marks the handle
// invalid. Idempotent and never fails outward: this runs from teardown
// paths where propagating an error would mask the failure that triggered
// cleanup, so close errors are logged instead.
func (h *Handle) Release() {
	if !h.IsValid() {
		return
	}
	fd := h.fd
	h.fd = platform.InvalidFD
	h.valid = false
	if err := platform.Close(fd); err != nil {
		Logger().Warn("descriptor close failed", zap.Error(err))
	}
}
