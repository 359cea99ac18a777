//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package platform

import "golang.org/x/sys/unix"

// No MSG_NOSIGNAL on the BSDs; SO_NOSIGPIPE at creation covers every later
// send on the descriptor.
const msgNoSignal = 0

func setNoSigpipe(fd FD) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
}
