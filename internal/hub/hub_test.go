package hub

import (
	"testing"
	"time"
)

func recvSignal(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case <-sub.Changed():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change signal")
	}
}

func TestHub_NotifyReachesAllTopicObservers(t *testing.T) {
	h := New(nil)
	a := h.Subscribe(TopicTasks)
	b := h.Subscribe(TopicTasks)
	other := h.Subscribe(TopicSchedules)

	h.Notify(TopicTasks)

	recvSignal(t, a)
	recvSignal(t, b)
	select {
	case <-other.Changed():
		t.Fatal("schedules observer received a tasks signal")
	default:
	}
}

func TestHub_SignalsCoalesce(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe(TopicTasks)

	for i := 0; i < 10; i++ {
		h.Notify(TopicTasks)
	}

	recvSignal(t, sub)
	select {
	case <-sub.Changed():
		t.Fatal("expected notifies to coalesce into a single pending signal")
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe(TopicTasks)
	h.Unsubscribe(sub)

	if _, ok := <-sub.Changed(); ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	// Second unsubscribe must not panic.
	h.Unsubscribe(sub)
	// Notify after unsubscribe must not panic or block.
	h.Notify(TopicTasks)
}

func TestHub_Connected(t *testing.T) {
	h := New(nil)
	if h.Connected(TopicTasks) {
		t.Fatal("no observers yet")
	}
	sub := h.Subscribe(TopicTasks)
	if !h.Connected(TopicTasks) {
		t.Fatal("observer attached, expected connected")
	}
	if h.Connected(TopicSchedules) {
		t.Fatal("schedules topic has no observers")
	}
	h.Unsubscribe(sub)
	if h.Connected(TopicTasks) {
		t.Fatal("expected disconnected after unsubscribe")
	}
}

func TestHub_CloseShutsDownSubscriptions(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe(TopicTasks)
	h.Close()

	if _, ok := <-sub.Changed(); ok {
		t.Fatal("expected closed channel after hub close")
	}
	if h.SubscriberCount(TopicTasks) != 0 {
		t.Fatal("expected no subscribers after close")
	}

	late := h.Subscribe(TopicTasks)
	if _, ok := <-late.Changed(); ok {
		t.Fatal("subscribing to a closed hub should return a closed subscription")
	}
	h.Notify(TopicTasks) // must not panic
}
