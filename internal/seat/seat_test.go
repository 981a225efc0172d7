package seat

import "testing"

func TestSetSessionActiveBroadcasts(t *testing.T) {
	s := New("seat0")
	if s.Active() {
		t.Fatal("new seat starts active")
	}

	var calls []bool
	s.Subscribe(func(active bool) { calls = append(calls, active) })

	s.SetSessionActive(true)
	if !s.Active() || len(calls) != 1 || !calls[0] {
		t.Fatalf("after activate: active=%v calls=%v", s.Active(), calls)
	}

	// Repeated activation re-broadcasts without corrupting the flag.
	s.SetSessionActive(true)
	if !s.Active() || len(calls) != 2 {
		t.Fatalf("after duplicate activate: active=%v calls=%v", s.Active(), calls)
	}

	s.SetSessionActive(false)
	if s.Active() || len(calls) != 3 || calls[2] {
		t.Fatalf("after deactivate: active=%v calls=%v", s.Active(), calls)
	}
}

func TestListenersRunInSubscriptionOrder(t *testing.T) {
	s := New("seat0")
	var order []int
	s.Subscribe(func(bool) { order = append(order, 1) })
	s.Subscribe(func(bool) { order = append(order, 2) })

	s.SetSessionActive(true)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("listener order = %v", order)
	}
}
