//go:build linux

package ctlplane

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCred describes the process on the other end of a unix socket.
func peerCred(conn net.Conn) string {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return ""
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return ""
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return ""
	}
	return fmt.Sprintf("uid=%d pid=%d", cred.Uid, cred.Pid)
}
