package memory

import (
	"context"
	"sync"

	"quizplay-service/internal/domain"
)

// Broker is an in-process implementation of app.ChangeFeed.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[chan domain.Change]struct{}
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[chan domain.Change]struct{})}
}

// Publish fans the change out to every subscriber of topic. A subscriber whose
// buffer is full loses its oldest pending change.
func (b *Broker) Publish(_ context.Context, topic string, change domain.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.topics[topic] {
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- change
		}
	}
	return nil
}

// Subscribe registers for changes on topic until cancel is called.
func (b *Broker) Subscribe(_ context.Context, topic string) (<-chan domain.Change, func(), error) {
	ch := make(chan domain.Change, 8)

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan domain.Change]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(subs, ch)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers reports how many subscriptions topic currently has.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
