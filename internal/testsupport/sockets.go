package testsupport

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// SocketPair returns a connected SOCK_SEQPACKET pair. The session
// protocol relies on datagram boundaries, so tests must use the same
// socket type as the real helper.
func SocketPair(t testing.TB) (client, helper int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	// Ownership of both ends moves to the caller: code under test closes
	// descriptors it adopts, and closing here again could hit a reused fd.
	return fds[0], fds[1]
}

// OpenNull opens os.DevNull and returns a raw descriptor the caller (or
// the code under test) owns. Useful as a stand-in terminal or device
// descriptor.
func OpenNull(t testing.TB) int {
	t.Helper()
	fd, err := unix.Open(os.DevNull, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("open %s: %v", os.DevNull, err)
	}
	return fd
}
