package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

func TestPublishDeliversInOrder(t *testing.T) {
	ch := NewChannel(Config{}, logx.Nop())
	out, detach := ch.Attach(8)
	defer detach()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		msg := Message{EventID: id, Org: "org", Items: []Item{UpdateAgent("room-1")}}
		if err := ch.Publish(ctx, msg); err != nil {
			t.Fatalf("Publish %s: %v", id, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-out:
			if got.EventID != want {
				t.Fatalf("received %s, want %s", got.EventID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestPublishEmptyMessageIsNoop(t *testing.T) {
	ch := NewChannel(Config{RetryMax: 1, RetryBase: time.Millisecond}, logx.Nop())
	// No consumer attached; an empty message must still succeed instantly.
	if err := ch.Publish(context.Background(), Message{EventID: "e"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestPublishRetriesUntilConsumerAttaches(t *testing.T) {
	ch := NewChannel(Config{RetryMax: 50, RetryBase: 5 * time.Millisecond}, logx.Nop())

	errc := make(chan error, 1)
	go func() {
		errc <- ch.Publish(context.Background(),
			Message{EventID: "e", Items: []Item{Delete()}})
	}()

	time.Sleep(20 * time.Millisecond)
	out, detach := ch.Attach(1)
	defer detach()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not complete after consumer attached")
	}
	select {
	case got := <-out:
		if got.EventID != "e" || got.Items[0].Kind != KindDelete {
			t.Fatalf("received %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestPublishFailsWhenRetriesExhausted(t *testing.T) {
	ch := NewChannel(Config{RetryMax: 2, RetryBase: time.Millisecond}, logx.Nop())

	err := ch.Publish(context.Background(), Message{EventID: "e", Items: []Item{Delete()}})
	if !errors.Is(err, ErrNoConsumer) {
		t.Fatalf("err = %v, want ErrNoConsumer", err)
	}
}

func TestPublishHonorsContext(t *testing.T) {
	ch := NewChannel(Config{RetryMax: 100, RetryBase: 50 * time.Millisecond}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ch.Publish(ctx, Message{EventID: "e", Items: []Item{Delete()}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	ch := NewChannel(Config{RetryMax: 1, RetryBase: time.Millisecond}, logx.Nop())
	_, detach := ch.Attach(1)
	detach()
	detach() // idempotent

	err := ch.Publish(context.Background(), Message{EventID: "e", Items: []Item{Delete()}})
	if !errors.Is(err, ErrNoConsumer) {
		t.Fatalf("err after detach = %v, want ErrNoConsumer", err)
	}
}
