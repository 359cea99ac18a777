//go:build windows

package platform

import "golang.org/x/sys/windows"

const wsaVersion = 0x0202 // Winsock 2.2

func stackStartup() error {
	var data windows.WSAData
	return windows.WSAStartup(wsaVersion, &data)
}

func stackTeardown() {
	windows.WSACleanup()
}
