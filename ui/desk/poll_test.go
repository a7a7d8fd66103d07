package desk

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefreshFetchesOpenThread(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_, chats, msgs := b.counts()
	if chats != 1 || len(msgs) != 0 {
		t.Fatalf("without an open chat only the list is fetched: chats=%d msgs=%v", chats, msgs)
	}

	_ = c.OpenChat(context.Background(), 1)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_, chats, msgs = b.counts()
	if chats != 2 || msgs[1] != 2 {
		t.Fatalf("expected list and thread re-fetched: chats=%d msgs=%v", chats, msgs)
	}
}

func TestPollerRunsUntilCancelled(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	p := NewPoller(c, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		_, chats, _ := b.counts()
		return chats >= 3
	})
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("poller did not stop")
	}
}

func TestNewPollerDefaultInterval(t *testing.T) {
	p := NewPoller(nil, 0)
	if p.Interval() != DefaultPollInterval {
		t.Fatalf("expected default interval, got %s", p.Interval())
	}
}
