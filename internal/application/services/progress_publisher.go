package services

import (
	"sync"

	"github.com/longregen/promptc/internal/ports"
)

// ProgressPublisher manages subscriptions and publishing of run progress
// events. This separates the pub/sub infrastructure concern from the
// compilation business logic.
type ProgressPublisher struct {
	channels map[string][]chan ports.ProgressEvent
	mu       sync.RWMutex
}

// Compile-time interface check
var _ ports.ProgressPublisher = (*ProgressPublisher)(nil)

// NewProgressPublisher creates a new progress publisher
func NewProgressPublisher() *ProgressPublisher {
	return &ProgressPublisher{
		channels: make(map[string][]chan ports.ProgressEvent),
	}
}

// Subscribe creates a new channel for receiving progress events for a run.
// The returned channel is buffered to prevent blocking the publisher.
func (p *ProgressPublisher) Subscribe(runID string) <-chan ports.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan ports.ProgressEvent, 100)
	p.channels[runID] = append(p.channels[runID], ch)
	return ch
}

// Unsubscribe removes a channel from receiving progress events.
// The channel will be closed after removal.
func (p *ProgressPublisher) Unsubscribe(runID string, ch <-chan ports.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels := p.channels[runID]
	for i, subscriberCh := range channels {
		if subscriberCh == ch {
			p.channels[runID] = append(channels[:i], channels[i+1:]...)
			close(subscriberCh)
			break
		}
	}

	if len(p.channels[runID]) == 0 {
		delete(p.channels, runID)
	}
}

// PublishProgress sends a progress event to all subscribers. Publishing is
// non-blocking: if a subscriber's buffer is full, the event is dropped for
// that subscriber so one slow consumer cannot affect others.
func (p *ProgressPublisher) PublishProgress(event ports.ProgressEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.channels[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all channels for a run (called when the run finishes)
func (p *ProgressPublisher) Close(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.channels[runID] {
		close(ch)
	}
	delete(p.channels, runID)
}

// SubscriberCount returns the number of active subscribers for a run
func (p *ProgressPublisher) SubscriberCount(runID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.channels[runID])
}
