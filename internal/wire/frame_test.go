package wire

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampFormat(t *testing.T) {
	ts := Timestamp()

	assert.True(t, strings.HasSuffix(ts, "Z"), "timestamp must end with Z, got %q", ts)
	assert.NotContains(t, ts, "+", "timestamp must not carry an offset")

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), parsed, 5*time.Second)
}

func TestAckMarshalsNullRequestID(t *testing.T) {
	data, err := json.Marshal(NewAck(nil, "orders", StatusSubscribed))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"request_id":null`)
	assert.Contains(t, string(data), `"status":"subscribed"`)
}

func TestAckEchoesRequestIDVerbatim(t *testing.T) {
	for _, raw := range []string{`"r1"`, `42`, `null`} {
		data, err := json.Marshal(NewAck(json.RawMessage(raw), "orders", StatusPublished))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"request_id":`+raw)
	}
}

func TestEncodeEventShape(t *testing.T) {
	frame, err := EncodeEvent("weather", map[string]any{
		"id":      "22222222-2222-2222-2222-222222222222",
		"payload": map[string]any{"t": float64(20)},
	})
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(frame, &ev))
	assert.Equal(t, TypeEvent, ev.Type)
	assert.Equal(t, "weather", ev.Topic)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", ev.Message["id"])
	assert.Equal(t, map[string]any{"t": float64(20)}, ev.Message["payload"])
	assert.NotEmpty(t, ev.Ts)
}

func TestEncodeInfoShape(t *testing.T) {
	var info Info
	require.NoError(t, json.Unmarshal(EncodeInfo("weather", InfoTopicDeleted), &info))

	assert.Equal(t, TypeInfo, info.Type)
	assert.Equal(t, "weather", info.Topic)
	assert.Equal(t, InfoTopicDeleted, info.Msg)
	assert.NotEmpty(t, info.Ts)
}

func TestRequestDecodePreservesRawRequestID(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping","request_id":7}`), &req))

	assert.Equal(t, TypePing, req.Type)
	assert.Equal(t, json.RawMessage(`7`), req.RequestID)
}
