//go:build unix

package platform

import "golang.org/x/sys/unix"

// AF_UNIX stream sockets, addressed by filesystem path. Availability is a
// build condition: these entry points exist only where the platform
// exposes the address family.

func SocketLocal() (FD, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return InvalidFD, err
	}
	unix.CloseOnExec(fd)
	if err := setNoSigpipe(fd); err != nil {
		unix.Close(fd)
		return InvalidFD, err
	}
	return fd, nil
}

func BindLocal(fd FD, path string) error {
	return unix.Bind(fd, &unix.SockaddrUnix{Name: path})
}

func ConnectLocal(fd FD, path string) error {
	return unix.Connect(fd, &unix.SockaddrUnix{Name: path})
}

// AcceptLocal returns a connected descriptor and the peer's socket path,
// which is usually empty for unnamed client sockets.
func AcceptLocal(fd FD) (FD, string, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return InvalidFD, "", err
	}
	unix.CloseOnExec(nfd)
	path := ""
	if sa, ok := sa.(*unix.SockaddrUnix); ok {
		path = sa.Name
	}
	return nfd, path, nil
}
