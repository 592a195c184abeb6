package testutil

import (
	"context"
	"sync"

	"github.com/renewd/renewd/internal/types"
	webhookPublisher "github.com/renewd/renewd/internal/webhook/publisher"
)

// InMemoryWebhookPublisher records published webhook events so tests can
// assert on what the services emitted
type InMemoryWebhookPublisher struct {
	mu     sync.RWMutex
	events []*types.WebhookEvent
}

var _ webhookPublisher.WebhookPublisher = (*InMemoryWebhookPublisher)(nil)

func NewInMemoryWebhookPublisher() *InMemoryWebhookPublisher {
	return &InMemoryWebhookPublisher{}
}

func (p *InMemoryWebhookPublisher) PublishWebhook(ctx context.Context, event *types.WebhookEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *InMemoryWebhookPublisher) Close() error {
	return nil
}

// Events returns all recorded events
func (p *InMemoryWebhookPublisher) Events() []*types.WebhookEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*types.WebhookEvent{}, p.events...)
}

// EventsByName returns the recorded events matching the given event name
func (p *InMemoryWebhookPublisher) EventsByName(name string) []*types.WebhookEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	matched := make([]*types.WebhookEvent, 0)
	for _, e := range p.events {
		if e.EventName == name {
			matched = append(matched, e)
		}
	}
	return matched
}

// Clear drops all recorded events
func (p *InMemoryWebhookPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
