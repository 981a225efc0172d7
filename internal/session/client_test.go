package session

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"legate/internal/eventloop"
	"legate/internal/logging"
	"legate/internal/testsupport"
	"legate/internal/vt"
	"legate/internal/wire"
)

// recordingHost counts session-active transitions.
type recordingHost struct {
	mu     sync.Mutex
	active bool
	calls  []bool
}

func (h *recordingHost) SetSessionActive(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = active
	h.calls = append(h.calls, active)
}

func (h *recordingHost) snapshot() (bool, []bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active, append([]bool(nil), h.calls...)
}

// fakeHelper drives the privileged end of the session socket.
type fakeHelper struct {
	t  *testing.T
	fd int
}

func (h *fakeHelper) recv() []byte {
	h.t.Helper()
	buf := make([]byte, 256)
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		h.t.Fatalf("helper recv: %v", err)
	}
	return buf[:n]
}

// expectOpen consumes an open request and checks its contents.
func (h *fakeHelper) expectOpen(path string, flags int) {
	h.t.Helper()
	gotFlags, gotPath, err := wire.ParseOpen(h.recv())
	if err != nil {
		h.t.Fatalf("parse open request: %v", err)
	}
	if gotPath != path || gotFlags != flags {
		h.t.Fatalf("open request = (%q, %#x), want (%q, %#x)", gotPath, gotFlags, path, flags)
	}
}

// replyOpen sends an open reply, attaching grantFD when non-negative.
func (h *fakeHelper) replyOpen(result int32, grantFD int) {
	h.t.Helper()
	var oob []byte
	if grantFD >= 0 {
		oob = unix.UnixRights(grantFD)
	}
	if err := unix.Sendmsg(h.fd, wire.EncodeOpenReply(result), oob, nil, 0); err != nil {
		h.t.Fatalf("helper reply: %v", err)
	}
}

func (h *fakeHelper) sendEvent(op wire.Opcode) {
	h.t.Helper()
	if _, err := unix.Write(h.fd, wire.EncodeEvent(op)); err != nil {
		h.t.Fatalf("helper send event: %v", err)
	}
}

// expectDeactivateDone consumes exactly one acknowledgement.
func (h *fakeHelper) expectDeactivateDone() {
	h.t.Helper()
	op, ok := wire.PeekOpcode(h.recv())
	if !ok || op != wire.OpcodeDeactivateDone {
		h.t.Fatalf("helper received %v, want deactivate-done", op)
	}
}

// newTestClient wires a client to a fake helper without the env handoff.
func newTestClient(t *testing.T) (*Client, *fakeHelper, *recordingHost, *eventloop.Loop) {
	t.Helper()

	clientFD, helperFD := testsupport.SocketPair(t)
	ttyFD := testsupport.OpenNull(t)

	loop, err := eventloop.New(logging.NewNop())
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })

	host := &recordingHost{}
	c := &Client{
		conn:   wire.NewConn(clientFD),
		tty:    vt.NewTerminal(ttyFD, logging.NewNop()),
		loop:   loop,
		host:   host,
		logger: logging.NewNop(),
		kbMode: vt.KUnicode,
		drmFD:  -1,
		exit:   func(code int) {},
	}
	c.source, err = loop.AddFD(clientFD, eventloop.Readable, c.handleSocketData)
	if err != nil {
		t.Fatalf("AddFD: %v", err)
	}
	t.Cleanup(c.Destroy)

	return c, &fakeHelper{t: t, fd: helperFD}, host, loop
}

func TestOpenReturnsGrantedFD(t *testing.T) {
	c, helper, _, _ := newTestClient(t)

	grant := testsupport.OpenNull(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		helper.expectOpen("/dev/dri/card0", unix.O_RDWR)
		helper.replyOpen(0, grant)
	}()

	fd, err := c.Open("/dev/dri/card0", unix.O_RDWR)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	<-done

	// The granted descriptor is a fresh one owned by the caller.
	if fd == grant {
		t.Fatalf("granted fd %d was not duplicated across the socket", fd)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		t.Fatalf("granted fd is not usable: %v", err)
	}
	c.Close(fd)
	unix.Close(grant)
}

func TestOpenHelperRefusal(t *testing.T) {
	c, helper, _, _ := newTestClient(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		helper.recv()
		helper.replyOpen(-int32(unix.EACCES), -1)
	}()

	if _, err := c.Open("/dev/input/event3", unix.O_RDWR); err == nil {
		t.Fatal("Open succeeded despite helper refusal")
	}
	<-done
}

func TestOpenReplyWithoutDescriptorFails(t *testing.T) {
	c, helper, _, _ := newTestClient(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		helper.recv()
		// Non-negative result but no control message attached.
		helper.replyOpen(0, -1)
	}()

	_, err := c.Open("/dev/dri/card0", unix.O_RDWR)
	if !errors.Is(err, wire.ErrNoDescriptor) {
		t.Fatalf("Open error = %v, want ErrNoDescriptor", err)
	}
	<-done
}

func TestOpenDefersDeactivate(t *testing.T) {
	c, helper, host, loop := newTestClient(t)

	grant := testsupport.OpenNull(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		helper.recv()
		helper.sendEvent(wire.OpcodeDeactivate)
		helper.replyOpen(0, grant)
	}()

	fd, err := c.Open("/dev/dri/card0", unix.O_RDWR)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	<-done
	c.Close(fd)
	unix.Close(grant)

	if !c.deferredDeactivate {
		t.Fatal("deactivate seen mid-open was not deferred")
	}
	if active, calls := host.snapshot(); active || len(calls) != 0 {
		t.Fatalf("deactivation ran before the deferred task: calls %v", calls)
	}

	// The idle queue flushes before the next poll and delivers it.
	if err := loop.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if c.deferredDeactivate {
		t.Fatal("deferred flag still set after idle dispatch")
	}
	if active, calls := host.snapshot(); active || len(calls) != 1 {
		t.Fatalf("want exactly one deactivation broadcast, got %v", calls)
	}
	helper.expectDeactivateDone()
}

func TestOpenFailsOnDuplicateDeactivate(t *testing.T) {
	c, helper, host, loop := newTestClient(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		helper.recv()
		helper.sendEvent(wire.OpcodeDeactivate)
		helper.sendEvent(wire.OpcodeDeactivate)
	}()

	// A second deactivation before the reply violates the protocol: the
	// call fails, but still only one deferred deactivation exists.
	if _, err := c.Open("/dev/dri/card0", unix.O_RDWR); err == nil {
		t.Fatal("Open succeeded despite duplicate deactivate")
	}
	<-done

	if err := loop.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, calls := host.snapshot(); len(calls) != 1 {
		t.Fatalf("want exactly one deactivation broadcast, got %v", calls)
	}
	helper.expectDeactivateDone()
}

func TestOpenFailsOnUnexpectedOpcode(t *testing.T) {
	c, helper, _, _ := newTestClient(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		helper.recv()
		helper.sendEvent(wire.OpcodeActivate)
	}()

	if _, err := c.Open("/dev/dri/card0", unix.O_RDWR); err == nil {
		t.Fatal("Open succeeded despite activate during wait")
	}
	<-done
}

func TestActivateEventBroadcasts(t *testing.T) {
	c, helper, host, loop := newTestClient(t)
	_ = c

	helper.sendEvent(wire.OpcodeActivate)
	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	active, calls := host.snapshot()
	if !active || len(calls) != 1 || !calls[0] {
		t.Fatalf("activate: active=%v calls=%v", active, calls)
	}

	// A duplicate activation still re-broadcasts and leaves the flag set.
	helper.sendEvent(wire.OpcodeActivate)
	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	active, calls = host.snapshot()
	if !active || len(calls) != 2 {
		t.Fatalf("duplicate activate: active=%v calls=%v", active, calls)
	}
}

func TestActivateWithHeldDeviceStillBroadcasts(t *testing.T) {
	c, helper, host, loop := newTestClient(t)

	// A held descriptor that rejects the set-master ioctl must not block
	// the activation broadcast.
	c.drmFD = testsupport.OpenNull(t)
	defer unix.Close(c.drmFD)

	helper.sendEvent(wire.OpcodeActivate)
	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	active, calls := host.snapshot()
	if !active || len(calls) != 1 {
		t.Fatalf("activate with held device: active=%v calls=%v", active, calls)
	}
}

func TestDeactivateEventAcksOnce(t *testing.T) {
	c, helper, host, loop := newTestClient(t)
	_ = c

	helper.sendEvent(wire.OpcodeActivate)
	helper.sendEvent(wire.OpcodeDeactivate)
	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	active, calls := host.snapshot()
	if active || len(calls) != 2 || calls[1] {
		t.Fatalf("deactivate: active=%v calls=%v", active, calls)
	}
	helper.expectDeactivateDone()
}

func TestDeferredDeactivateRunsBeforeSocketRead(t *testing.T) {
	c, helper, host, _ := newTestClient(t)

	c.deferredDeactivate = true
	helper.sendEvent(wire.OpcodeActivate)

	// The pending deferral is flushed instead of reading the socket.
	c.handleSocketData(eventloop.Readable)
	active, calls := host.snapshot()
	if active || len(calls) != 1 {
		t.Fatalf("deferred deactivate not prioritized: active=%v calls=%v", active, calls)
	}
	helper.expectDeactivateDone()

	// The activation is still queued and handled next.
	c.handleSocketData(eventloop.Readable)
	active, calls = host.snapshot()
	if !active || len(calls) != 2 {
		t.Fatalf("queued activate lost: active=%v calls=%v", active, calls)
	}
}

func TestHangupRestoresAndExits(t *testing.T) {
	c, helper, _, _ := newTestClient(t)

	var exitCode = -1
	c.exit = func(code int) { exitCode = code }
	unix.Close(helper.fd)

	c.handleSocketData(eventloop.Hangup)
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1", exitCode)
	}
}

func TestDestroyClosesSocket(t *testing.T) {
	c, helper, _, _ := newTestClient(t)

	c.Destroy()
	buf := make([]byte, 4)
	n, err := unix.Read(helper.fd, buf)
	if err != nil || n != 0 {
		t.Fatalf("helper end still open after Destroy: n=%d err=%v", n, err)
	}
	unix.Close(helper.fd)
}

func TestConnectScenario(t *testing.T) {
	clientFD, helperFD := testsupport.SocketPair(t)
	ttyFD := testsupport.OpenNull(t)
	helper := &fakeHelper{t: t, fd: helperFD}

	t.Setenv(SocketEnv, strconv.Itoa(clientFD))
	t.Setenv(TTYEnv, strconv.Itoa(ttyFD))

	loop, err := eventloop.New(logging.NewNop())
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })

	host := &recordingHost{}
	c, err := Connect(loop, host, logging.NewNop())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Destroy)

	if os.Getenv(SocketEnv) != "" || os.Getenv(TTYEnv) != "" {
		t.Fatal("environment signals were not consumed")
	}
	if c.conn.FD() != clientFD || c.tty.FD() != ttyFD {
		t.Fatalf("client adopted fds (%d, %d), want (%d, %d)", c.conn.FD(), c.tty.FD(), clientFD, ttyFD)
	}
	if c.kbMode != vt.KUnicode {
		t.Fatalf("kb mode = %d, want the unicode default", c.kbMode)
	}

	grant := testsupport.OpenNull(t)
	go func() {
		helper.expectOpen("/dev/dri/card0", unix.O_RDWR)
		helper.replyOpen(0, grant)
	}()
	fd, err := c.Open("/dev/dri/card0", unix.O_RDWR)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	helper.sendEvent(wire.OpcodeDeactivate)
	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	active, _ := host.snapshot()
	if active {
		t.Fatal("session still active after deactivate")
	}
	helper.expectDeactivateDone()

	c.Close(fd)
	unix.Close(grant)
	unix.Close(helperFD)
}

func TestConnectFailsWithoutSocketEnv(t *testing.T) {
	t.Setenv(SocketEnv, "")
	t.Setenv(TTYEnv, "")

	loop, err := eventloop.New(logging.NewNop())
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })

	if _, err := Connect(loop, &recordingHost{}, logging.NewNop()); err == nil {
		t.Fatal("Connect succeeded without inherited descriptors")
	}
}
