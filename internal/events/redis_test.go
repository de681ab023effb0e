package events

import (
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestRedisSubscriptionCloseStopsBlockedForward(t *testing.T) {
	in := make(chan *redis.Message, 100)
	for i := 0; i < 100; i++ {
		in <- &redis.Message{Channel: "signals", Payload: "{}"}
	}
	closed := 0
	sub := newRedisSubscription(in, func() error {
		closed++
		return nil
	})

	// Nobody reads Messages, so forward fills the buffer and blocks on send.
	time.Sleep(20 * time.Millisecond)
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if closed != 1 {
		t.Errorf("closeFn called %d times, want 1", closed)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Messages():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Messages() not closed after Close()")
		}
	}
}

func TestRedisSubscriptionEndsWhenSourceCloses(t *testing.T) {
	in := make(chan *redis.Message, 2)
	in <- &redis.Message{Payload: "a"}
	in <- &redis.Message{Payload: "b"}
	close(in)
	sub := newRedisSubscription(in, func() error { return nil })
	defer sub.Close()

	var got []string
	for payload := range sub.Messages() {
		got = append(got, string(payload))
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("payloads = %v, want [a b]", got)
	}
}
