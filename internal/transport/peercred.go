package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Peer identifies the process on the other end of a unix socket
// connection, as reported by the kernel via SO_PEERCRED. The kernel fills
// these from the connecting process at connect time; they cannot be forged
// from userspace.
type Peer struct {
	UID uint32
	GID uint32
	PID int32
}

// peerCredentials reads the SO_PEERCRED option of a unix socket
// connection. Failing to read credentials is fatal for the connection:
// a peer that cannot be identified cannot be admitted.
func peerCredentials(conn net.Conn) (Peer, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return Peer{}, fmt.Errorf("connection is %T, not a unix socket", conn)
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return Peer{}, fmt.Errorf("raw connection: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	ctlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctlErr != nil {
		return Peer{}, fmt.Errorf("control: %w", ctlErr)
	}
	if credErr != nil {
		return Peer{}, fmt.Errorf("SO_PEERCRED: %w", credErr)
	}

	return Peer{UID: cred.Uid, GID: cred.Gid, PID: cred.Pid}, nil
}
