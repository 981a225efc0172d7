package eventloop

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"legate/internal/logging"
)

func newLoop(t *testing.T) *Loop {
	t.Helper()
	loop, err := New(logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })
	return loop
}

func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestIdleRunsBeforeSources(t *testing.T) {
	loop := newLoop(t)
	r, w := testPipe(t)

	var order []string
	if _, err := loop.AddFD(r, Readable, func(Mask) {
		order = append(order, "source")
		var buf [8]byte
		unix.Read(r, buf[:])
	}); err != nil {
		t.Fatalf("AddFD: %v", err)
	}

	// Data is already pending, but the idle task still goes first.
	unix.Write(w, []byte{1})
	loop.AddIdle(func() { order = append(order, "idle") })

	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(order) != 2 || order[0] != "idle" || order[1] != "source" {
		t.Fatalf("dispatch order = %v", order)
	}
}

func TestIdleIsOneShot(t *testing.T) {
	loop := newLoop(t)

	count := 0
	loop.AddIdle(func() { count++ })
	for i := 0; i < 3; i++ {
		if err := loop.Dispatch(0); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if count != 1 {
		t.Fatalf("idle ran %d times", count)
	}
}

func TestIdleQueuedByIdleRunsNextDispatch(t *testing.T) {
	loop := newLoop(t)

	var runs []int
	loop.AddIdle(func() {
		runs = append(runs, 1)
		loop.AddIdle(func() { runs = append(runs, 2) })
	})

	if err := loop.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("first dispatch ran %v", runs)
	}
	if err := loop.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(runs) != 2 || runs[1] != 2 {
		t.Fatalf("second dispatch ran %v", runs)
	}
}

func TestHangupMaskDelivered(t *testing.T) {
	loop := newLoop(t)
	r, w := testPipe(t)

	var got Mask
	if _, err := loop.AddFD(r, Readable, func(mask Mask) { got |= mask }); err != nil {
		t.Fatalf("AddFD: %v", err)
	}
	unix.Close(w)

	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got&Hangup == 0 {
		t.Fatalf("mask = %v, want hangup bit", got)
	}
}

func TestRemovedSourceNotDispatched(t *testing.T) {
	loop := newLoop(t)
	r, w := testPipe(t)

	fired := false
	src, err := loop.AddFD(r, Readable, func(Mask) { fired = true })
	if err != nil {
		t.Fatalf("AddFD: %v", err)
	}
	src.Remove()

	unix.Write(w, []byte{1})
	if err := loop.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fired {
		t.Fatal("removed source was dispatched")
	}
}

func TestSourceRemovedMidDispatchIsSkipped(t *testing.T) {
	loop := newLoop(t)
	r1, w1 := testPipe(t)
	r2, w2 := testPipe(t)

	// Both sources are ready; the first callback removes the second, so
	// its pending readiness must be dropped within the same dispatch.
	var second *Source
	if _, err := loop.AddFD(r1, Readable, func(Mask) {
		var buf [8]byte
		unix.Read(r1, buf[:])
		second.Remove()
	}); err != nil {
		t.Fatalf("AddFD: %v", err)
	}

	fired := false
	second, err := loop.AddFD(r2, Readable, func(Mask) { fired = true })
	if err != nil {
		t.Fatalf("AddFD: %v", err)
	}

	unix.Write(w1, []byte{1})
	unix.Write(w2, []byte{1})
	if err := loop.Dispatch(time.Second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fired {
		t.Fatal("source dispatched after removal mid-dispatch")
	}
}

func TestWakeInterruptsRun(t *testing.T) {
	loop := newLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// Idle work queued from another goroutine needs an explicit wake.
	ran := make(chan struct{})
	loop.AddIdle(func() { close(ran) })
	loop.Wake()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("idle task did not run after Wake")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
