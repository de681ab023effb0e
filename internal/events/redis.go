package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"papertrader/internal/errors"
)

// DefaultChannel is the pub/sub channel events travel on.
const DefaultChannel = "trading_events"

// Bus publishes payloads to and subscribes to channels.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Ping(ctx context.Context) error
}

// Subscription delivers payloads until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// RedisBus is a Bus backed by Redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to the Redis server at url.
func NewRedisBus(url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConnectionFailed, "parsing redis url %q: %v", url, err)
	}
	return &RedisBus{client: redis.NewClient(opts)}, nil
}

// NewRedisBusWithClient uses an existing client.
func NewRedisBusWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Client returns the underlying client.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

// Publish implements Bus and returns the number of receivers.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := b.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return n, nil
}

// Ping implements Bus.
func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(errors.ErrConnectionFailed, "redis ping: %v", err)
	}
	return nil
}

// Subscribe implements Bus. It waits for the subscription to be confirmed.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, errors.Wrapf(errors.ErrConnectionFailed, "subscribing to %s: %v", channel, err)
	}

	return newRedisSubscription(ps.Channel(), ps.Close), nil
}

// Close closes the client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	out     chan []byte
	done    chan struct{}
	once    sync.Once
	closeFn func() error
	err     error
}

func newRedisSubscription(in <-chan *redis.Message, closeFn func() error) *redisSubscription {
	s := &redisSubscription{
		out:     make(chan []byte, 64),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
	go s.forward(in)
	return s
}

// forward copies payloads from in until in closes or Close is called.
func (s *redisSubscription) forward(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

// Close stops forwarding and closes the Redis subscription. It is safe to call
// more than once.
func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.closeFn()
	})
	return s.err
}
