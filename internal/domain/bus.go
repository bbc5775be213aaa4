package domain

import "context"

// SignalBus republishes core events to out-of-process consumers. It is a
// side channel only; core correctness never depends on a publish succeeding.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Broadcaster fans an event out to connected subscribers. An empty channel
// delivers to every open subscriber.
type Broadcaster interface {
	Broadcast(message any, channel string)
}
