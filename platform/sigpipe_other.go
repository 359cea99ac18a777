//go:build unix && !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package platform

const msgNoSignal = 0

func setNoSigpipe(fd FD) error { return nil }
