package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// eventEmitter delivers events to subscribers without ever blocking the
// pipeline for long. A full channel gets a short grace period, then the
// event is dropped and counted.
type eventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

func newEventEmitter(bufferSize int) *eventEmitter {
	return &eventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *eventEmitter) emit(event Event) {
	event.Timestamp = time.Now()

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

func (e *eventEmitter) dropped() uint64 {
	return e.droppedCount.Load()
}

func (e *eventEmitter) close() {
	close(e.events)
}
