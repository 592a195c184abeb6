package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher pushes messages onto a named topic. Subscription lifecycle
// events leave the services through this seam, so the transport behind it
// can change without touching billing code.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}

// Subscriber consumes a topic until the context is cancelled
type Subscriber interface {
	// Subscribe returns the message stream for a topic
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// PubSub is a transport that carries both ends, like the in-process
// gochannel implementation used in local mode.
type PubSub interface {
	Publisher
	Subscriber
}
