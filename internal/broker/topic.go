package broker

import (
	"sync"
	"time"
)

// topic is one named channel: metadata, the subscriber set and the bounded
// history. mu serializes every mutation and the publish fan-out, so two
// publishes reach all common subscribers in the same order. The deleted flag
// lets an operation holding a stale pointer observe the removal instead of
// mutating an unreachable record.
type topic struct {
	name      string
	createdAt time.Time

	mu           sync.Mutex
	deleted      bool
	messageCount int64
	subscribers  map[string]struct{}
	history      *history
}

func newTopic(name string) *topic {
	return &topic{
		name:        name,
		createdAt:   time.Now().UTC(),
		subscribers: make(map[string]struct{}),
		history:     newHistory(historyCap),
	}
}
