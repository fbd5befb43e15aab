// Package changefeed fans collection change notifications out to every listener, within one
// process or across service instances.
package changefeed

import (
	"context"
	"sync"
)

// Feed publishes and receives "collection changed" signals. Signals carry no payload:
// receivers re-read the collection, so consecutive signals may be coalesced.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
}

// Local is an in-process Feed.
type Local struct {
	mu     sync.Mutex
	topics map[string]map[chan struct{}]struct{}
}

// NewLocal constructs an in-process feed.
func NewLocal() *Local {
	return &Local{topics: make(map[string]map[chan struct{}]struct{})}
}

// Publish signals every subscriber of topic.
func (l *Local) Publish(_ context.Context, topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ch := range l.topics[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel signalled on every publish to topic until ctx is done.
func (l *Local) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	subs, ok := l.topics[topic]
	if !ok {
		subs = make(map[chan struct{}]struct{})
		l.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.topics[topic], ch)
		if len(l.topics[topic]) == 0 {
			delete(l.topics, topic)
		}
		l.mu.Unlock()
	}()

	return ch, nil
}

var _ Feed = (*Local)(nil)
