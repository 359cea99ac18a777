//go:build unix

package platform

// BSD sockets need no process-wide initialization.

func stackStartup() error { return nil }

func stackTeardown() {}
