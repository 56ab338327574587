// Package broker implements the in-memory pub/sub core: the topic registry,
// the session table and the operations both the websocket protocol and the
// control plane call.
package broker

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adred-codev/topichub/internal/metrics"
	"github.com/adred-codev/topichub/internal/wire"
)

// Broker coordinates the topic registry, the session table and per-session
// dispatchers. One value is created at process start and shared by
// reference; there are no package globals.
//
// Lock order is registry -> topic -> session table and never the reverse.
// Operations hold locks only for bounded CPU work; all network I/O happens in
// the dispatchers.
type Broker struct {
	registry *registry
	sessions *sessionTable
	started  time.Time
	logger   zerolog.Logger
}

// New returns an empty broker.
func New(logger zerolog.Logger) *Broker {
	return &Broker{
		registry: newRegistry(),
		sessions: newSessionTable(),
		started:  time.Now(),
		logger:   logger.With().Str("component", "broker").Logger(),
	}
}

// TopicSummary is one entry of ListTopics.
type TopicSummary struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// TopicStats is one entry of Stats.
type TopicStats struct {
	Messages    int64 `json:"messages"`
	Subscribers int   `json:"subscribers"`
}

// Health is the control-plane health snapshot. Subscribers counts
// subscriptions summed across topics, not distinct clients; a client
// subscribed to three topics counts three times.
type Health struct {
	UptimeSec   int64 `json:"uptime_sec"`
	Topics      int   `json:"topics"`
	Subscribers int   `json:"subscribers"`
}

// CreateTopic registers a new topic name.
func (b *Broker) CreateTopic(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if err := b.registry.create(name); err != nil {
		return err
	}
	metrics.TopicsActive.Inc()
	b.logger.Info().Str("topic", name).Msg("topic created")
	return nil
}

// DeleteTopic removes a topic. Every subscriber present at that moment gets
// exactly one topic_deleted info frame and loses the membership; publishes
// to the name from then on fail with ErrTopicNotFound.
func (b *Broker) DeleteTopic(name string) error {
	t, affected := b.registry.remove(name)
	if t == nil {
		return ErrTopicNotFound
	}
	frame := wire.EncodeInfo(name, wire.InfoTopicDeleted)
	for _, clientID := range affected {
		if sink := b.sessions.sink(clientID); sink != nil {
			sink.Enqueue(frame)
		}
		b.sessions.removeSub(clientID, t)
	}
	metrics.TopicsActive.Dec()
	metrics.SubscriptionsActive.Sub(float64(len(affected)))
	metrics.ClientsActive.Set(float64(b.sessions.len()))
	b.logger.Info().Str("topic", name).Int("notified", len(affected)).Msg("topic deleted")
	return nil
}

// ListTopics returns every topic with its subscriber count, name-sorted for
// stable output.
func (b *Broker) ListTopics() []TopicSummary {
	topics := b.registry.list()
	out := make([]TopicSummary, 0, len(topics))
	for _, t := range topics {
		t.mu.Lock()
		out = append(out, TopicSummary{Name: t.name, Subscribers: len(t.subscribers)})
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats maps each topic to its publish and subscriber counters.
func (b *Broker) Stats() map[string]TopicStats {
	topics := b.registry.list()
	out := make(map[string]TopicStats, len(topics))
	for _, t := range topics {
		t.mu.Lock()
		out[t.name] = TopicStats{Messages: t.messageCount, Subscribers: len(t.subscribers)}
		t.mu.Unlock()
	}
	return out
}

// Health reports uptime, topic count and total subscriptions.
func (b *Broker) Health() Health {
	topics := b.registry.list()
	subs := 0
	for _, t := range topics {
		t.mu.Lock()
		subs += len(t.subscribers)
		t.mu.Unlock()
	}
	return Health{
		UptimeSec:   int64(time.Since(b.started).Seconds()),
		Topics:      len(topics),
		Subscribers: subs,
	}
}

// Subscribe adds the client to the topic and binds sink as the session
// owner. Already-subscribed clients keep a single membership. With lastN > 0
// the most recent history frames are enqueued before the topic lock is
// released, so replay precedes every event from publishes that start after
// Subscribe returns.
func (b *Broker) Subscribe(clientID, topicName string, lastN int, sink FrameSink) error {
	t := b.registry.get(topicName)
	if t == nil {
		return ErrTopicNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return ErrTopicNotFound
	}

	b.sessions.attach(clientID, sink)
	if _, ok := t.subscribers[clientID]; !ok {
		t.subscribers[clientID] = struct{}{}
		metrics.SubscriptionsActive.Inc()
	}
	b.sessions.addSub(clientID, t)
	metrics.ClientsActive.Set(float64(b.sessions.len()))

	if lastN > 0 {
		frames := t.history.tail(lastN)
		for _, frame := range frames {
			sink.Enqueue(frame)
		}
		metrics.HistoryReplays.Add(float64(len(frames)))
	}

	b.logger.Debug().Str("client_id", clientID).Str("topic", topicName).Int("last_n", lastN).Msg("subscribed")
	return nil
}

// Unsubscribe removes the membership. Removing a client that is not a member
// of a live topic is an idempotent success; an absent or deleted topic is
// ErrTopicNotFound.
func (b *Broker) Unsubscribe(clientID, topicName string) error {
	t := b.registry.get(topicName)
	if t == nil {
		return ErrTopicNotFound
	}
	t.mu.Lock()
	if t.deleted {
		t.mu.Unlock()
		return ErrTopicNotFound
	}
	_, wasMember := t.subscribers[clientID]
	delete(t.subscribers, clientID)
	b.sessions.removeSub(clientID, t)
	t.mu.Unlock()

	if wasMember {
		metrics.SubscriptionsActive.Dec()
	}
	metrics.ClientsActive.Set(float64(b.sessions.len()))

	b.logger.Debug().Str("client_id", clientID).Str("topic", topicName).Msg("unsubscribed")
	return nil
}

// Publish validates the message, stores the envelope in history and fans the
// encoded frame out to every subscriber's dispatcher. Enqueue never blocks,
// so the topic lock is held across the fan-out; that is what makes two
// publishes arrive in the same order at every common subscriber. A publish
// reaching zero subscribers still succeeds and is retained in history.
func (b *Broker) Publish(topicName string, message map[string]any) error {
	t := b.registry.get(topicName)
	if t == nil {
		return ErrTopicNotFound
	}
	t.mu.Lock()
	if t.deleted {
		t.mu.Unlock()
		return ErrTopicNotFound
	}
	if err := validateMessage(message); err != nil {
		t.mu.Unlock()
		return err
	}
	frame, err := wire.EncodeEvent(topicName, message)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("encode event: %w", err)
	}

	t.history.append(frame)
	t.messageCount++
	delivered := 0
	for clientID := range t.subscribers {
		if sink := b.sessions.sink(clientID); sink != nil && sink.Enqueue(frame) {
			delivered++
		}
	}
	t.mu.Unlock()

	metrics.EventsPublished.Inc()
	b.logger.Debug().Str("topic", topicName).Int("delivered", delivered).Msg("event published")
	return nil
}

// DisconnectClient releases what a closing connection holds for the client
// id: the session, when the connection still owns it, and every topic
// membership recorded there. A re-subscribe racing the disconnect wins, but
// only for the topics it renewed; each membership is dropped unless the
// session now owning the client id holds that exact topic.
func (b *Broker) DisconnectClient(clientID string, sink FrameSink) {
	topics := b.sessions.detach(clientID, sink)
	for _, name := range topics {
		t := b.registry.get(name)
		if t == nil {
			continue
		}
		t.mu.Lock()
		if _, ok := t.subscribers[clientID]; ok && !t.deleted && !b.sessions.holds(clientID, t) {
			delete(t.subscribers, clientID)
			metrics.SubscriptionsActive.Dec()
		}
		t.mu.Unlock()
	}
	metrics.ClientsActive.Set(float64(b.sessions.len()))
	if len(topics) > 0 {
		b.logger.Debug().Str("client_id", clientID).Int("released", len(topics)).Msg("session detached")
	}
}

// validateMessage enforces the publish contract: the message carries an id
// that parses as a UUID and a payload member. Field presence is checked
// before the id is parsed.
func validateMessage(message map[string]any) error {
	rawID, hasID := message["id"]
	if _, hasPayload := message["payload"]; !hasID || !hasPayload {
		return fmt.Errorf("%w: missing id or payload", ErrBadMessage)
	}
	id, ok := rawID.(string)
	if !ok {
		return fmt.Errorf("%w: id must be a string", ErrBadMessage)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: id is not a valid UUID", ErrBadMessage)
	}
	return nil
}
