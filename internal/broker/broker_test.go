package broker

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/topichub/internal/wire"
)

// fakeSink records enqueued frames in order.
type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSink) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSink) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeSink) decoded(t *testing.T) []map[string]any {
	t.Helper()
	frames := f.snapshot()
	out := make([]map[string]any, 0, len(frames))
	for _, frame := range frames {
		var v map[string]any
		require.NoError(t, json.Unmarshal(frame, &v))
		out = append(out, v)
	}
	return out
}

func newTestBroker() *Broker {
	return New(zerolog.Nop())
}

func validMessage(payload any) map[string]any {
	return map[string]any{"id": uuid.NewString(), "payload": payload}
}

func TestCreateTopic(t *testing.T) {
	b := newTestBroker()

	require.NoError(t, b.CreateTopic("weather"))
	assert.ErrorIs(t, b.CreateTopic("weather"), ErrTopicExists)
	assert.ErrorIs(t, b.CreateTopic(""), ErrInvalidName)
}

func TestPublishFansOutIdenticalFrames(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	a, c := &fakeSink{}, &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "weather", 0, a))
	require.NoError(t, b.Subscribe("client-c", "weather", 0, c))

	msg := map[string]any{
		"id":      "22222222-2222-2222-2222-222222222222",
		"payload": map[string]any{"t": float64(20)},
	}
	require.NoError(t, b.Publish("weather", msg))

	aFrames, cFrames := a.snapshot(), c.snapshot()
	require.Len(t, aFrames, 1)
	require.Len(t, cFrames, 1)
	assert.Equal(t, aFrames[0], cFrames[0], "fan-out must deliver identical bytes")

	var ev wire.Event
	require.NoError(t, json.Unmarshal(aFrames[0], &ev))
	assert.Equal(t, wire.TypeEvent, ev.Type)
	assert.Equal(t, "weather", ev.Topic)
	assert.Equal(t, msg["id"], ev.Message["id"])
	assert.Equal(t, msg["payload"], ev.Message["payload"])
	assert.NotEmpty(t, ev.Ts)
}

func TestPublishToAbsentTopic(t *testing.T) {
	b := newTestBroker()
	assert.ErrorIs(t, b.Publish("nope", validMessage("x")), ErrTopicNotFound)
}

func TestPublishValidation(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	cases := map[string]map[string]any{
		"missing id":      {"payload": "x"},
		"missing payload": {"id": uuid.NewString()},
		"id not a uuid":   {"id": "not-a-uuid", "payload": "x"},
		"id not a string": {"id": float64(7), "payload": "x"},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, b.Publish("weather", msg), ErrBadMessage)
		})
	}

	// Rejected publishes must not touch history or counters.
	assert.Equal(t, int64(0), b.Stats()["weather"].Messages)
	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("watcher", "weather", 100, sink))
	assert.Empty(t, sink.snapshot())
}

func TestPublishWithoutSubscribersIsRetained(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	require.NoError(t, b.Publish("weather", validMessage("quiet")))
	assert.Equal(t, int64(1), b.Stats()["weather"].Messages)

	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("late", "weather", 1, sink))
	events := sink.decoded(t)
	require.Len(t, events, 1)
	assert.Equal(t, "quiet", events[0]["message"].(map[string]any)["payload"])
}

func TestHistoryReplayOrder(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.Publish("weather", validMessage(float64(i))))
	}

	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("fresh", "weather", 5, sink))

	events := sink.decoded(t)
	require.Len(t, events, 3, "last_n larger than history replays everything")
	for i, ev := range events {
		assert.Equal(t, float64(i+1), ev["message"].(map[string]any)["payload"])
	}

	tail := &fakeSink{}
	require.NoError(t, b.Subscribe("tail", "weather", 2, tail))
	events = tail.decoded(t)
	require.Len(t, events, 2)
	assert.Equal(t, float64(2), events[0]["message"].(map[string]any)["payload"])
	assert.Equal(t, float64(3), events[1]["message"].(map[string]any)["payload"])
}

func TestHistoryCappedAtHundred(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("firehose"))

	for i := 1; i <= historyCap+20; i++ {
		require.NoError(t, b.Publish("firehose", validMessage(float64(i))))
	}

	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("late", "firehose", historyCap*10, sink))

	events := sink.decoded(t)
	require.Len(t, events, historyCap)
	first := events[0]["message"].(map[string]any)["payload"]
	last := events[len(events)-1]["message"].(map[string]any)["payload"]
	assert.Equal(t, float64(21), first, "eviction is oldest-first")
	assert.Equal(t, float64(historyCap+20), last)
}

func TestDoubleSubscribeKeepsSingleMembership(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "weather", 0, sink))
	require.NoError(t, b.Subscribe("client-a", "weather", 0, sink))

	topics := b.ListTopics()
	require.Len(t, topics, 1)
	assert.Equal(t, 1, topics[0].Subscribers)

	require.NoError(t, b.Publish("weather", validMessage("once")))
	assert.Len(t, sink.snapshot(), 1, "one membership means one delivery")
}

func TestUnsubscribe(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "weather", 0, sink))
	require.NoError(t, b.Unsubscribe("client-a", "weather"))

	require.NoError(t, b.Publish("weather", validMessage("after")))
	assert.Empty(t, sink.snapshot())
	assert.Equal(t, 0, b.ListTopics()[0].Subscribers)

	// Removing a non-member of a live topic is an idempotent success.
	assert.NoError(t, b.Unsubscribe("client-a", "weather"))
	// An absent topic is not.
	assert.ErrorIs(t, b.Unsubscribe("client-a", "ghost"), ErrTopicNotFound)
}

func TestDeleteTopicNotifiesEachSubscriberOnce(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	a, c := &fakeSink{}, &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "weather", 0, a))
	require.NoError(t, b.Subscribe("client-c", "weather", 0, c))

	require.NoError(t, b.DeleteTopic("weather"))

	for _, sink := range []*fakeSink{a, c} {
		events := sink.decoded(t)
		require.Len(t, events, 1)
		assert.Equal(t, wire.TypeInfo, events[0]["type"])
		assert.Equal(t, "weather", events[0]["topic"])
		assert.Equal(t, wire.InfoTopicDeleted, events[0]["msg"])
	}

	assert.ErrorIs(t, b.Publish("weather", validMessage("x")), ErrTopicNotFound)
	assert.ErrorIs(t, b.Subscribe("client-a", "weather", 0, a), ErrTopicNotFound)
	assert.ErrorIs(t, b.DeleteTopic("weather"), ErrTopicNotFound)
	assert.Empty(t, b.ListTopics())

	health := b.Health()
	assert.Equal(t, 0, health.Topics)
	assert.Equal(t, 0, health.Subscribers, "delete releases every membership")
}

func TestHealthCountsSubscriptionsNotClients(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("t1"))
	require.NoError(t, b.CreateTopic("t2"))

	sink1, sink2 := &fakeSink{}, &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "t1", 0, sink1))
	require.NoError(t, b.Subscribe("client-a", "t2", 0, sink1))
	require.NoError(t, b.Subscribe("client-b", "t1", 0, sink2))

	health := b.Health()
	assert.Equal(t, 2, health.Topics)
	assert.Equal(t, 3, health.Subscribers, "client-a counts once per topic")
	assert.GreaterOrEqual(t, health.UptimeSec, int64(0))

	topics := b.ListTopics()
	require.Len(t, topics, 2)
	assert.Equal(t, "t1", topics[0].Name)
	assert.Equal(t, 2, topics[0].Subscribers)
	assert.Equal(t, "t2", topics[1].Name)
	assert.Equal(t, 1, topics[1].Subscribers)
}

func TestStats(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "weather", 0, sink))
	require.NoError(t, b.Publish("weather", validMessage("one")))
	require.NoError(t, b.Publish("weather", validMessage("two")))

	stats := b.Stats()
	require.Contains(t, stats, "weather")
	assert.Equal(t, int64(2), stats["weather"].Messages)
	assert.Equal(t, 1, stats["weather"].Subscribers)
}

func TestDisconnectClientReleasesMemberships(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("t1"))
	require.NoError(t, b.CreateTopic("t2"))

	sink := &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "t1", 0, sink))
	require.NoError(t, b.Subscribe("client-a", "t2", 0, sink))

	b.DisconnectClient("client-a", sink)

	assert.Equal(t, 0, b.Health().Subscribers)
	for _, summary := range b.ListTopics() {
		assert.Equal(t, 0, summary.Subscribers)
	}
	require.NoError(t, b.Publish("t1", validMessage("x")))
	assert.Empty(t, sink.snapshot())
}

func TestDisconnectIgnoresStaleConnection(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("weather"))

	stale, fresh := &fakeSink{}, &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "weather", 0, stale))
	// Reconnect: the same client id arrives on a new connection.
	require.NoError(t, b.Subscribe("client-a", "weather", 0, fresh))

	b.DisconnectClient("client-a", stale)

	require.NoError(t, b.Publish("weather", validMessage("still here")))
	assert.Len(t, fresh.snapshot(), 1, "membership must survive the stale disconnect")
	assert.Equal(t, 1, b.Health().Subscribers)

	b.DisconnectClient("client-a", fresh)
	assert.Equal(t, 0, b.Health().Subscribers)
}

func TestDisconnectRacingResubscribeReleasesUnrenewedTopics(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("alpha"))
	require.NoError(t, b.CreateTopic("beta"))

	old := &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "alpha", 0, old))
	require.NoError(t, b.Subscribe("client-a", "beta", 0, old))

	// Hold beta's lock so the disconnect cannot finish its per-topic cleanup
	// until the reconnect below has landed.
	beta := b.registry.get("beta")
	beta.mu.Lock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.DisconnectClient("client-a", old)
	}()

	// Once the old session is detached, reconnect subscribed to alpha only.
	require.Eventually(t, func() bool {
		return b.sessions.sink("client-a") == nil
	}, time.Second, time.Millisecond)
	fresh := &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "alpha", 0, fresh))

	beta.mu.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect cleanup did not finish")
	}

	topics := b.ListTopics()
	require.Len(t, topics, 2)
	assert.Equal(t, 1, topics[0].Subscribers, "renewed alpha membership must survive")
	assert.Equal(t, 0, topics[1].Subscribers, "beta was not renewed and must be released")
	assert.Equal(t, 1, b.Health().Subscribers)

	require.NoError(t, b.Publish("beta", validMessage("gone")))
	assert.Empty(t, fresh.snapshot(), "the alpha-only connection must not receive beta events")
	require.NoError(t, b.Publish("alpha", validMessage("kept")))
	assert.Len(t, fresh.snapshot(), 1)
}

func TestConcurrentPublishesKeepOneOrder(t *testing.T) {
	b := newTestBroker()
	require.NoError(t, b.CreateTopic("race"))

	a, c := &fakeSink{}, &fakeSink{}
	require.NoError(t, b.Subscribe("client-a", "race", 0, a))
	require.NoError(t, b.Subscribe("client-c", "race", 0, c))

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				require.NoError(t, b.Publish("race", validMessage(fmt.Sprintf("%d-%d", w, i))))
			}
		}(w)
	}
	wg.Wait()

	aFrames, cFrames := a.snapshot(), c.snapshot()
	require.Len(t, aFrames, writers*perWriter)
	assert.Equal(t, aFrames, cFrames, "all subscribers must observe one publish order")

	// History replays the same order the subscribers saw.
	replay := &fakeSink{}
	require.NoError(t, b.Subscribe("late", "race", writers*perWriter, replay))
	assert.Equal(t, aFrames, replay.snapshot())
}

func TestConcurrentChurnHoldsMembershipSymmetry(t *testing.T) {
	b := newTestBroker()
	topics := []string{"t0", "t1", "t2"}
	for _, name := range topics {
		require.NoError(t, b.CreateTopic(name))
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			sink := &fakeSink{}
			clientID := fmt.Sprintf("client-%d", g)
			for i := 0; i < 50; i++ {
				name := topics[(g+i)%len(topics)]
				switch i % 3 {
				case 0, 1:
					_ = b.Subscribe(clientID, name, 0, sink)
				case 2:
					_ = b.Unsubscribe(clientID, name)
				}
			}
		}(g)
	}
	wg.Wait()

	// Both membership views must agree once the churn settles.
	total := 0
	for _, t2 := range b.registry.list() {
		t2.mu.Lock()
		for clientID := range t2.subscribers {
			s := b.sessions.sessions[clientID]
			require.NotNil(t, s, "topic member %s must have a session", clientID)
			_, ok := s.subs[t2.name]
			require.True(t, ok, "session of %s must list %s", clientID, t2.name)
		}
		total += len(t2.subscribers)
		t2.mu.Unlock()
	}
	b.sessions.mu.RLock()
	sessionSide := 0
	for clientID, s := range b.sessions.sessions {
		for name := range s.subs {
			tp := b.registry.get(name)
			require.NotNil(t, tp)
			tp.mu.Lock()
			_, ok := tp.subscribers[clientID]
			tp.mu.Unlock()
			require.True(t, ok, "topic %s must list session member %s", name, clientID)
		}
		sessionSide += len(s.subs)
	}
	b.sessions.mu.RUnlock()
	assert.Equal(t, total, sessionSide)
	assert.Equal(t, total, b.Health().Subscribers)
}
