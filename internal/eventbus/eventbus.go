package eventbus

import (
	"sync"

	"github.com/dinver-app/dinver-media/internal/entities"
)

// Event is a push notification about one job. The queue's correctness never
// depends on delivery; polling the status API always works.
type Event struct {
	JobID    string
	Status   entities.JobStatus
	Progress int
	Message  string
}

// Bus fans job events out to in-process subscribers keyed by job ID.
type Bus struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
	}
}

func (b *Bus) Subscribe(jobID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subscribers[jobID] = append(b.subscribers[jobID], ch)
	return ch
}

func (b *Bus) Unsubscribe(jobID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(b.subscribers[jobID]) == 0 {
		delete(b.subscribers, jobID)
	}
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.JobID] {
		select {
		case ch <- event:
		default:
			// Drop event if subscriber is slow
		}
	}
}
