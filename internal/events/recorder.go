package events

import (
	"context"
	"encoding/json"
	"sync"
)

// Recorder is an in-process Publisher that keeps every event it is given,
// JSON-encoded as it would be sent on the bus.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

// Recorded is one published event.
type Recorded struct {
	Topic string
	Data  []byte
}

func (r *Recorder) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Topic: topic, Data: data})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Count returns how many events were published on topic.
func (r *Recorder) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Events {
		if e.Topic == topic {
			n++
		}
	}
	return n
}
