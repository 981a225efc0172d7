package session

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"legate/internal/eventloop"
	"legate/internal/logging"
	"legate/internal/vt"
	"legate/internal/wire"
)

// Host is the narrow surface the client uses to drive the display
// server's session state. The concrete implementation lives with the
// host, not here.
type Host interface {
	// SetSessionActive flips the session-active flag and broadcasts the
	// change to observers.
	SetSessionActive(active bool)
}

// Launcher is the capability the host holds for privileged operations.
// Connect is the constructor; the rest are the fixed operation set.
type Launcher interface {
	// Open asks the helper for a descriptor to the device at path. The
	// caller owns the returned descriptor.
	Open(path string, flags int) (int, error)
	// Close releases a descriptor previously returned by Open.
	Close(fd int)
	// ActivateVT requests a switch to VT n.
	ActivateVT(n int) error
	// GetVT reports the VT number of the controlling terminal.
	GetVT() (int, error)
	// Destroy tears the client down. It never fails.
	Destroy()
}

// Client is the session-launcher client. One instance exists per display
// server process, owned by whoever called Connect; all methods must run
// on the event loop goroutine.
type Client struct {
	conn   *wire.Conn
	tty    *vt.Terminal
	loop   *eventloop.Loop
	host   Host
	logger *slog.Logger

	source *eventloop.Source
	kbMode int
	drmFD  int

	deferredDeactivate bool

	// exit ends the process after a fatal socket loss. Swapped in tests.
	exit func(code int)
}

var _ Launcher = (*Client)(nil)

// Connect consumes the socket and terminal descriptors handed down by the
// parent process, registers the socket with the event loop, and returns a
// live client. The true keyboard mode of the terminal cannot be read back
// without privilege, so the restoration fallback is recorded instead.
func Connect(loop *eventloop.Loop, host Host, logger *slog.Logger) (*Client, error) {
	if loop == nil || host == nil {
		return nil, fmt.Errorf("session connect: loop and host are required")
	}
	logger = logging.NewComponentLogger(logger, "session")

	sockFD, err := consumeEnvFD(SocketEnv)
	if err != nil {
		return nil, fmt.Errorf("helper socket: %w", err)
	}
	ttyFD, err := consumeEnvFD(TTYEnv)
	if err != nil {
		unix.Close(sockFD)
		return nil, fmt.Errorf("controlling terminal: %w", err)
	}

	c := &Client{
		conn:   wire.NewConn(sockFD),
		tty:    vt.NewTerminal(ttyFD, logger),
		loop:   loop,
		host:   host,
		logger: logger,
		kbMode: vt.KUnicode,
		drmFD:  -1,
		exit:   os.Exit,
	}

	c.source, err = loop.AddFD(sockFD, eventloop.Readable, c.handleSocketData)
	if err != nil {
		c.conn.Close()
		c.tty.Close()
		return nil, fmt.Errorf("register helper socket with event loop: %w", err)
	}

	logger.Info("connected to session helper",
		logging.Int("socket_fd", sockFD),
		logging.Int("tty_fd", ttyFD),
	)
	return c, nil
}

// Open requests a device descriptor from the helper and blocks until the
// reply arrives. A deactivation pushed in the interim is recorded and
// scheduled for deferred delivery rather than handled inline: it must run
// through the event loop like every other state transition.
func (c *Client) Open(path string, flags int) (int, error) {
	if _, err := c.conn.Send(wire.EncodeOpen(path, flags)); err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}

	buf := make([]byte, wire.OpenReplySize)
	var reply wire.OpenReply
	var oob []byte
	for {
		n, control, err := c.conn.RecvMsg(buf)
		if err != nil {
			return -1, fmt.Errorf("open %s: %w", path, err)
		}
		op, ok := wire.PeekOpcode(buf[:n])

		if ok && n == wire.OpenReplySize && op == wire.OpcodeOpenReply {
			reply, err = wire.ParseOpenReply(buf[:n])
			if err != nil {
				return -1, fmt.Errorf("open %s: %w", path, err)
			}
			oob = control
			break
		}

		// Only a reply and at most one deactivation can legitimately show
		// up here.
		if ok && n == wire.EventSize && op == wire.OpcodeDeactivate && !c.deferredDeactivate {
			c.deferredDeactivate = true
			c.loop.AddIdle(c.flushDeferredDeactivate)
			continue
		}

		label := "truncated"
		if ok {
			label = op.String()
		}
		c.logger.Warn("unexpected message from helper while awaiting open reply",
			logging.String("opcode", label),
			logging.Int("length", n),
		)
		return -1, fmt.Errorf("open %s: unexpected %s message (%d bytes) from helper", path, label, n)
	}

	if reply.Result < 0 {
		return -1, fmt.Errorf("open %s: helper refused (result %d)", path, reply.Result)
	}

	fd, err := wire.ExtractFD(oob)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	if vt.IsDRMDevice(fd) {
		c.drmFD = fd
	}
	return fd, nil
}

// Close releases a descriptor handed out by Open.
func (c *Client) Close(fd int) {
	if fd == c.drmFD {
		c.drmFD = -1
	}
	unix.Close(fd)
}

// ActivateVT requests a switch to VT n.
func (c *Client) ActivateVT(n int) error {
	return c.tty.Activate(n)
}

// GetVT reports the VT number of the controlling terminal.
func (c *Client) GetVT() (int, error) {
	return c.tty.CurrentVT()
}

// Destroy tears the client down. With the socket still open this is the
// normal path and the helper restores the terminal; without one (a
// partially failed connect) the terminal is restored locally.
func (c *Client) Destroy() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		if c.source != nil {
			c.source.Remove()
			c.source = nil
		}
	} else if c.tty != nil {
		c.tty.Restore(c.kbMode, c.drmFD)
	}

	if c.tty != nil {
		c.tty.Close()
		c.tty = nil
	}
}

// handleSocketData is the event loop callback for the helper socket.
func (c *Client) handleSocketData(mask eventloop.Mask) {
	if mask&(eventloop.Hangup|eventloop.Error) != 0 {
		c.logger.Error("helper socket closed, exiting",
			logging.String(logging.FieldEventType, "helper_lost"),
			logging.String(logging.FieldErrorHint, "the session helper exited; check its logs"),
		)
		// The helper normally resets the terminal on exit. It died
		// instead, so restore here to avoid a stuck VT.
		c.tty.Restore(c.kbMode, c.drmFD)
		c.exit(1)
		return
	}

	// A deactivation deferred during Open takes priority over newly
	// arrived data; the socket is not read this invocation.
	if c.deferredDeactivate {
		c.deferredDeactivate = false
		c.handleDeactivate()
		return
	}

	buf := make([]byte, wire.EventSize)
	n, err := c.conn.Recv(buf)
	if err != nil {
		c.logger.Warn("failed to read helper event", logging.Error(err))
		return
	}
	op, ok := wire.PeekOpcode(buf[:n])
	if !ok {
		c.logger.Warn("short event from helper", logging.Int("length", n))
		return
	}

	switch op {
	case wire.OpcodeActivate:
		// Re-assert mastery over the held DRM device before observers see
		// the activation. The helper usually restores it during the
		// switch, in which case this is a no-op.
		if c.drmFD >= 0 {
			if err := vt.SetMaster(c.drmFD); err != nil {
				c.logger.Debug("could not re-acquire DRM master", logging.Error(err))
			}
		}
		c.host.SetSessionActive(true)
	case wire.OpcodeDeactivate:
		c.handleDeactivate()
	default:
		c.logger.Warn("unexpected event from helper", logging.String("opcode", op.String()))
	}
}

// handleDeactivate flips the session inactive, broadcasts, and
// acknowledges the helper so it can complete the VT switch.
func (c *Client) handleDeactivate() {
	c.host.SetSessionActive(false)
	if _, err := c.conn.Send(wire.EncodeEvent(wire.OpcodeDeactivateDone)); err != nil {
		c.logger.Warn("failed to acknowledge deactivation", logging.Error(err))
	}
}

// flushDeferredDeactivate runs from the idle queue, before the next
// socket read. The flag may already be cleared when the readable callback
// got there first.
func (c *Client) flushDeferredDeactivate() {
	if c.deferredDeactivate {
		c.deferredDeactivate = false
		c.handleDeactivate()
	}
}
