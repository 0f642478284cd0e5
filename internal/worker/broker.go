package worker

import (
	"sync"

	"github.com/evantohost/tesseract/internal/model"
)

// subscriberBufferSize is the channel buffer for each progress subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// maxClosedTopics bounds how many closed-topic markers are retained. One
// marker is created per dispatched job, so without a bound a long-lived
// daemon grows the map forever.
const maxClosedTopics = 1024

// ProgressBroker fans per-job progress events out to subscribers. It is safe
// for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a job reached its terminal response) receive a closed
// channel instead of blocking forever. The marker set is bounded: once it
// exceeds maxClosedTopics the oldest markers are evicted, and a subscriber
// to an evicted topic waits like one for an unknown job.
type ProgressBroker struct {
	mu          sync.Mutex
	topics      map[string]*progressTopic
	closedOrder []string
}

type progressTopic struct {
	subs   map[int]chan model.Progress
	nextID int
	closed bool
}

// NewProgressBroker creates a new broker.
func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{
		topics: make(map[string]*progressTopic),
	}
}

// Subscribe returns a channel receiving progress events for the given job and
// an unsubscribe function. If the job already finished (Close was called),
// the returned channel is immediately closed.
func (b *ProgressBroker) Subscribe(jobID string) (<-chan model.Progress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		t = &progressTopic{subs: make(map[int]chan model.Progress)}
		b.topics[jobID] = t
	}

	ch := make(chan model.Progress, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a progress event to all subscribers of the given job.
// Events are dropped for subscribers whose buffers are full.
func (b *ProgressBroker) Publish(jobID string, p model.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- p:
		default:
			// Drop for slow subscribers to avoid blocking dispatch.
		}
	}
}

// Close signals that the job reached its terminal response. All subscriber
// channels are closed and future Subscribe calls return a closed channel.
func (b *ProgressBroker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		// Closed marker for late subscribers.
		b.topics[jobID] = &progressTopic{subs: make(map[int]chan model.Progress), closed: true}
		b.retireLocked(jobID)
		return
	}
	if t.closed {
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	b.retireLocked(jobID)
}

// retireLocked records a freshly closed topic and evicts the oldest markers
// beyond the bound. Callers hold b.mu.
func (b *ProgressBroker) retireLocked(jobID string) {
	b.closedOrder = append(b.closedOrder, jobID)
	for len(b.closedOrder) > maxClosedTopics {
		oldest := b.closedOrder[0]
		b.closedOrder = b.closedOrder[1:]
		if t, ok := b.topics[oldest]; ok && t.closed {
			delete(b.topics, oldest)
		}
	}
}
