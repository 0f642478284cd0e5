package worker

import (
	"fmt"
	"testing"

	"github.com/evantohost/tesseract/internal/model"
)

func TestBrokerPublishFansOut(t *testing.T) {
	b := NewProgressBroker()

	ch1, unsub1 := b.Subscribe("job-1")
	ch2, unsub2 := b.Subscribe("job-1")
	defer unsub1()
	defer unsub2()

	b.Publish("job-1", model.Progress{JobID: "job-1", Status: "working", Progress: 0.5})

	for i, ch := range []<-chan model.Progress{ch1, ch2} {
		select {
		case p := <-ch:
			if p.Status != "working" || p.Progress != 0.5 {
				t.Errorf("subscriber %d got %+v", i, p)
			}
		default:
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestBrokerPublishIgnoresOtherJobs(t *testing.T) {
	b := NewProgressBroker()

	ch, unsub := b.Subscribe("job-1")
	defer unsub()

	b.Publish("job-2", model.Progress{JobID: "job-2"})

	select {
	case p := <-ch:
		t.Fatalf("received event for wrong job: %+v", p)
	default:
	}
}

func TestBrokerCloseEndsSubscribers(t *testing.T) {
	b := NewProgressBroker()

	ch, unsub := b.Subscribe("job-1")
	defer unsub()

	b.Publish("job-1", model.Progress{JobID: "job-1", Status: "working"})
	b.Close("job-1")

	if _, ok := <-ch; !ok {
		t.Fatal("buffered event lost on close")
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after close")
	}
}

func TestBrokerLateSubscriberGetsClosedChannel(t *testing.T) {
	b := NewProgressBroker()

	b.Close("job-1")

	ch, unsub := b.Subscribe("job-1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Fatal("late subscriber channel not closed")
	}
}

func TestBrokerPublishAfterCloseDropped(t *testing.T) {
	b := NewProgressBroker()

	b.Close("job-1")
	// Must not panic or resurrect the topic.
	b.Publish("job-1", model.Progress{JobID: "job-1"})

	ch, _ := b.Subscribe("job-1")
	if _, ok := <-ch; ok {
		t.Fatal("topic resurrected after close")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewProgressBroker()

	ch, unsub := b.Subscribe("job-1")
	unsub()

	b.Publish("job-1", model.Progress{JobID: "job-1"})

	select {
	case p, ok := <-ch:
		if ok {
			t.Fatalf("received after unsubscribe: %+v", p)
		}
	default:
	}
}

func TestBrokerBoundsClosedMarkers(t *testing.T) {
	b := NewProgressBroker()

	for i := 0; i < maxClosedTopics+10; i++ {
		b.Close(fmt.Sprintf("job-%d", i))
	}

	b.mu.Lock()
	retained := len(b.topics)
	b.mu.Unlock()
	if retained > maxClosedTopics {
		t.Fatalf("retained topics = %d, want at most %d", retained, maxClosedTopics)
	}

	// Recent markers survive eviction; their late subscribers still see a
	// closed channel.
	ch, unsub := b.Subscribe(fmt.Sprintf("job-%d", maxClosedTopics+9))
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatal("recently closed topic lost its marker")
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewProgressBroker()

	ch, unsub := b.Subscribe("job-1")
	defer unsub()

	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish("job-1", model.Progress{JobID: "job-1", Progress: float64(i)})
	}

	// The buffer holds the first events; the overflow is dropped, not blocked.
	count := 0
	for {
		select {
		case <-ch:
			count++
			continue
		default:
		}
		break
	}
	if count != subscriberBufferSize {
		t.Fatalf("buffered events = %d, want %d", count, subscriberBufferSize)
	}
}
