package wire

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Control-message failures surfaced by ExtractFD.
var (
	// ErrNoDescriptor means the reply carried no control message at all.
	ErrNoDescriptor = errors.New("reply carried no descriptor")
	// ErrDeclinedDescriptor means a control message was present but held
	// the helper's invalid-descriptor sentinel.
	ErrDeclinedDescriptor = errors.New("helper declined to attach a descriptor")
	// ErrMalformedControl means the control data was not exactly one
	// socket-level rights entry.
	ErrMalformedControl = errors.New("malformed control message")
)

// Conn frames messages on the connected helper socket. It owns nothing
// beyond the descriptor handed to it; Close releases that descriptor.
type Conn struct {
	fd int
}

// NewConn wraps an already-connected socket descriptor.
func NewConn(fd int) *Conn {
	return &Conn{fd: fd}
}

// FD returns the underlying socket descriptor.
func (c *Conn) FD() int {
	return c.fd
}

// Close releases the socket descriptor.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}

// Send writes one message, retrying on EINTR.
func (c *Conn) Send(buf []byte) (int, error) {
	for {
		n, err := unix.Write(c.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("send on helper socket: %w", err)
		}
		return n, nil
	}
}

// Recv reads one message into buf, retrying on EINTR.
func (c *Conn) Recv(buf []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("recv on helper socket: %w", err)
		}
		return n, nil
	}
}

// RecvMsg reads one message into buf along with any ancillary data,
// retrying on EINTR. Received descriptors are hardened close-on-exec at
// the kernel boundary. The raw control bytes are returned for ExtractFD;
// callers that expected no descriptor simply ignore them.
func (c *Conn) RecvMsg(buf []byte) (int, []byte, error) {
	control := make([]byte, unix.CmsgSpace(4))
	for {
		n, oobn, _, _, err := unix.Recvmsg(c.fd, buf, control, unix.MSG_CMSG_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, nil, fmt.Errorf("recvmsg on helper socket: %w", err)
		}
		return n, control[:oobn], nil
	}
}

// ExtractFD pulls the granted descriptor out of the control data of an
// open reply. On success the caller owns the descriptor and is
// responsible for closing it.
func ExtractFD(oob []byte) (int, error) {
	if len(oob) == 0 {
		return -1, ErrNoDescriptor
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrMalformedControl, err)
	}
	if len(msgs) != 1 {
		return -1, fmt.Errorf("%w: %d control entries, want 1", ErrMalformedControl, len(msgs))
	}
	if msgs[0].Header.Level != unix.SOL_SOCKET || msgs[0].Header.Type != unix.SCM_RIGHTS {
		return -1, fmt.Errorf("%w: level %d type %d", ErrMalformedControl, msgs[0].Header.Level, msgs[0].Header.Type)
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrMalformedControl, err)
	}
	if len(fds) != 1 {
		return -1, fmt.Errorf("%w: %d descriptors, want 1", ErrMalformedControl, len(fds))
	}
	if fds[0] < 0 {
		return -1, ErrDeclinedDescriptor
	}
	return fds[0], nil
}
