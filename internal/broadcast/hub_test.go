package broadcast

import (
	"testing"
	"time"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(8)
	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	h.Publish(New(TypeSessionCreated, "s1", nil))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != TypeSessionCreated || evt.SessionID != "s1" {
				t.Fatalf("event = %+v, want session:created for s1", evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("observer did not receive event")
		}
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after cancel")
	}
	if h.Observers() != 0 {
		t.Fatalf("Observers() = %d after cancel, want 0", h.Observers())
	}
	// Cancelling twice must be safe.
	cancel()
}

func TestHubDropsOnSaturationWithoutBlocking(t *testing.T) {
	h := NewHub(1)
	dropped := 0
	h.SetDropHook(func(Type) { dropped++ })

	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			h.Publish(New(TypeSessionUpdated, "s1", nil))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a saturated observer")
	}
	if dropped != 9 {
		t.Fatalf("dropped = %d, want 9", dropped)
	}
}

func TestHubPublishOrderPerObserver(t *testing.T) {
	h := NewHub(16)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(
		New(TypeItemAdded, "s1", nil),
		New(TypeItemStatusChanged, "s1", nil),
		New(TypeCurrentItemChanged, "s1", nil),
	)

	want := []Type{TypeItemAdded, TypeItemStatusChanged, TypeCurrentItemChanged}
	for _, w := range want {
		select {
		case evt := <-ch:
			if evt.Type != w {
				t.Fatalf("event type = %q, want %q", evt.Type, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %q", w)
		}
	}
}
