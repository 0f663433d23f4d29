package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "task.started", Attrs: map[string]string{"key": "scrape-usd_x"}})

	select {
	case ev := <-ch:
		require.Equal(t, "task.started", ev.Type)
		require.Equal(t, "scrape-usd_x", ev.Attrs["key"])
		require.False(t, ev.Time.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked")
	}
	require.NoError(t, b.Close())
	b.Publish(Event{Type: "after-close"})
}
