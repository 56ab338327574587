// Package wire defines the JSON frames exchanged on the websocket endpoint
// and the timestamp format shared by every server-built frame.
package wire

import (
	"encoding/json"
	"time"
)

// Frame type discriminators.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePublish     = "publish"
	TypePing        = "ping"

	TypeAck   = "ack"
	TypePong  = "pong"
	TypeError = "error"
	TypeEvent = "event"
	TypeInfo  = "info"
)

// Ack statuses.
const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
	StatusPublished    = "published"
)

// Error codes surfaced to clients. The control plane maps the same codes to
// HTTP status: BAD_REQUEST -> 400, TOPIC_NOT_FOUND -> 404, INTERNAL -> 500.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeTopicNotFound = "TOPIC_NOT_FOUND"
	CodeInternal      = "INTERNAL"
)

// InfoTopicDeleted is the msg carried by the info frame sent to every
// subscriber of a topic being deleted.
const InfoTopicDeleted = "topic_deleted"

// tsLayout renders ISO-8601 UTC with microsecond precision and a trailing Z.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp returns the current wall-clock time in the wire format.
func Timestamp() string {
	return time.Now().UTC().Format(tsLayout)
}

// Request is the inbound frame. RequestID is kept raw so whatever JSON value
// the client sent (string, number, null) is echoed back verbatim.
type Request struct {
	Type      string          `json:"type"`
	RequestID json.RawMessage `json:"request_id"`
	Topic     string          `json:"topic"`
	ClientID  string          `json:"client_id"`
	LastN     int             `json:"last_n"`
	Message   map[string]any  `json:"message"`
}

// Ack confirms a subscribe, unsubscribe or publish. RequestID marshals as
// null when the client omitted it.
type Ack struct {
	Type      string          `json:"type"`
	RequestID json.RawMessage `json:"request_id"`
	Topic     string          `json:"topic"`
	Status    string          `json:"status"`
	Ts        string          `json:"ts"`
}

// Pong answers a ping frame.
type Pong struct {
	Type      string          `json:"type"`
	RequestID json.RawMessage `json:"request_id"`
	Ts        string          `json:"ts"`
}

// ErrorDetail carries the machine code and human message of an error frame.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error reports a failed request to its originator only.
type Error struct {
	Type      string          `json:"type"`
	RequestID json.RawMessage `json:"request_id"`
	Error     ErrorDetail     `json:"error"`
	Ts        string          `json:"ts"`
}

// Event is the envelope fanned out to subscribers. Message is the exact
// object supplied by the publisher.
type Event struct {
	Type    string         `json:"type"`
	Topic   string         `json:"topic"`
	Message map[string]any `json:"message"`
	Ts      string         `json:"ts"`
}

// Info notifies subscribers of a topic lifecycle change.
type Info struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Msg   string `json:"msg"`
	Ts    string `json:"ts"`
}

// NewAck builds an ack frame with a server-assigned timestamp.
func NewAck(requestID json.RawMessage, topic, status string) Ack {
	return Ack{Type: TypeAck, RequestID: requestID, Topic: topic, Status: status, Ts: Timestamp()}
}

// NewPong builds a pong frame with a server-assigned timestamp.
func NewPong(requestID json.RawMessage) Pong {
	return Pong{Type: TypePong, RequestID: requestID, Ts: Timestamp()}
}

// NewError builds an error frame with a server-assigned timestamp.
func NewError(requestID json.RawMessage, code, message string) Error {
	return Error{
		Type:      TypeError,
		RequestID: requestID,
		Error:     ErrorDetail{Code: code, Message: message},
		Ts:        Timestamp(),
	}
}

// EncodeEvent builds and encodes the event envelope for one publish. The
// returned bytes are shared by the topic history and every subscriber, so a
// single publish delivers identical frames everywhere.
func EncodeEvent(topic string, message map[string]any) ([]byte, error) {
	return json.Marshal(Event{Type: TypeEvent, Topic: topic, Message: message, Ts: Timestamp()})
}

// EncodeInfo encodes a topic lifecycle notification. The frame contains only
// strings, so the encode cannot fail.
func EncodeInfo(topic, msg string) []byte {
	data, _ := json.Marshal(Info{Type: TypeInfo, Topic: topic, Msg: msg, Ts: Timestamp()})
	return data
}
