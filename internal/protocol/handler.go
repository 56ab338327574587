// Package protocol runs the session protocol for one websocket connection:
// it decodes inbound frames, validates request shape, calls the broker and
// emits ack, error and pong frames through the session's dispatcher.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred-codev/topichub/internal/broker"
	"github.com/adred-codev/topichub/internal/dispatch"
	"github.com/adred-codev/topichub/internal/metrics"
	"github.com/adred-codev/topichub/internal/wire"
)

const (
	// pongWait is how long the reader tolerates silence before treating the
	// connection as dead. The dispatcher pings well inside this window.
	pongWait = 60 * time.Second
	// maxFrameSize caps a single inbound frame and the reassembled size of a
	// fragmented message.
	maxFrameSize = 1 << 20
)

// errPeerClosed marks a close frame read between the fragments of a message.
var errPeerClosed = errors.New("peer closed during message")

// Handler is the per-connection state machine: OPEN from accept until the
// read loop returns, then CLOSED. Errors never close the connection; only
// transport failure or a client close frame does.
type Handler struct {
	broker *broker.Broker
	disp   *dispatch.Dispatcher
	conn   net.Conn
	logger zerolog.Logger

	// bound holds every client id attached via subscribe on this connection.
	// Only the read loop touches it. All of them are released on disconnect
	// so no membership outlives the connection.
	bound map[string]struct{}
}

// NewHandler wires a handler to its connection and dispatcher. connID is the
// provisional identity used for logging until the client supplies one.
func NewHandler(b *broker.Broker, d *dispatch.Dispatcher, conn net.Conn, connID string, logger zerolog.Logger) *Handler {
	return &Handler{
		broker: b,
		disp:   d,
		conn:   conn,
		logger: logger.With().Str("component", "protocol").Str("conn_id", connID).Logger(),
		bound:  make(map[string]struct{}),
	}
}

// ReadLoop consumes messages until the connection closes, then detaches every
// session bound on it. It is the connection's only reader. Fragmented text
// messages are reassembled before dispatch; the reader's Read walks the
// continuation frames and hands control frames between them to
// controlDuringMessage.
func (h *Handler) ReadLoop() {
	defer h.cleanup()

	reader := wsutil.NewReader(h.conn, ws.StateServerSide)
	reader.OnIntermediate = h.controlDuringMessage
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		hdr, err := reader.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, errPeerClosed) {
				h.logger.Debug().Err(err).Msg("read frame")
			}
			return
		}
		h.conn.SetReadDeadline(time.Now().Add(pongWait))

		if hdr.Length > maxFrameSize {
			h.logger.Warn().Int64("length", hdr.Length).Msg("frame exceeds limit, closing")
			return
		}

		switch hdr.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			payload := make([]byte, hdr.Length)
			if _, err := io.ReadFull(reader, payload); err != nil {
				return
			}
			h.disp.EnqueuePong(payload)
		case ws.OpText:
			data, err := io.ReadAll(io.LimitReader(reader, maxFrameSize+1))
			if err != nil {
				if !errors.Is(err, errPeerClosed) {
					h.logger.Debug().Err(err).Msg("read message")
				}
				return
			}
			if len(data) > maxFrameSize {
				h.logger.Warn().Int("length", len(data)).Msg("message exceeds limit, closing")
				return
			}
			metrics.MessagesReceived.Inc()
			metrics.BytesReceived.Add(float64(len(data)))
			h.handleFrame(data)
		default:
			if err := reader.Discard(); err != nil {
				return
			}
		}
	}
}

// controlDuringMessage answers control frames interleaved between the
// fragments of a message. Pong replies ride the dispatcher like every other
// write; a close frame aborts the read.
func (h *Handler) controlDuringMessage(hdr ws.Header, src io.Reader) error {
	switch hdr.OpCode {
	case ws.OpPing:
		payload, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		h.disp.EnqueuePong(payload)
	case ws.OpClose:
		return errPeerClosed
	}
	return nil
}

func (h *Handler) cleanup() {
	for clientID := range h.bound {
		h.broker.DisconnectClient(clientID, h.disp)
	}
	h.disp.Close()
	h.logger.Debug().Msg("connection closed")
}

func (h *Handler) handleFrame(data []byte) {
	var req wire.Request
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(nil, wire.CodeBadRequest, "Invalid JSON")
		return
	}

	switch req.Type {
	case wire.TypeSubscribe:
		h.handleSubscribe(&req)
	case wire.TypeUnsubscribe:
		h.handleUnsubscribe(&req)
	case wire.TypePublish:
		h.handlePublish(&req)
	case wire.TypePing:
		h.send(wire.NewPong(req.RequestID))
	default:
		h.sendError(req.RequestID, wire.CodeBadRequest, "Invalid message type")
	}
}

func (h *Handler) handleSubscribe(req *wire.Request) {
	if req.Topic == "" || req.ClientID == "" {
		h.sendError(req.RequestID, wire.CodeBadRequest, "Missing required fields: topic or client_id")
		return
	}
	lastN := req.LastN
	if lastN < 0 {
		lastN = 0
	}
	if err := h.broker.Subscribe(req.ClientID, req.Topic, lastN, h.disp); err != nil {
		h.sendError(req.RequestID, codeFor(err), fmt.Sprintf("Failed to subscribe to topic %s", req.Topic))
		return
	}
	h.bound[req.ClientID] = struct{}{}
	h.send(wire.NewAck(req.RequestID, req.Topic, wire.StatusSubscribed))
}

func (h *Handler) handleUnsubscribe(req *wire.Request) {
	if req.Topic == "" || req.ClientID == "" {
		h.sendError(req.RequestID, wire.CodeBadRequest, "Missing required fields: topic or client_id")
		return
	}
	if err := h.broker.Unsubscribe(req.ClientID, req.Topic); err != nil {
		h.sendError(req.RequestID, wire.CodeTopicNotFound, fmt.Sprintf("Topic %s not found", req.Topic))
		return
	}
	h.send(wire.NewAck(req.RequestID, req.Topic, wire.StatusUnsubscribed))
}

func (h *Handler) handlePublish(req *wire.Request) {
	if req.Topic == "" || len(req.Message) == 0 {
		h.sendError(req.RequestID, wire.CodeBadRequest, "Missing required fields: topic or message")
		return
	}
	if err := h.broker.Publish(req.Topic, req.Message); err != nil {
		if code := codeFor(err); code == wire.CodeInternal {
			h.sendError(nil, code, err.Error())
		} else {
			h.sendError(req.RequestID, code, fmt.Sprintf("Failed to publish to topic %s", req.Topic))
		}
		return
	}
	h.send(wire.NewAck(req.RequestID, req.Topic, wire.StatusPublished))
}

// send marshals a response and enqueues it behind whatever the session
// already has pending, preserving per-session order.
func (h *Handler) send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode frame")
		return
	}
	h.disp.Enqueue(data)
}

func (h *Handler) sendError(requestID json.RawMessage, code, message string) {
	h.send(wire.NewError(requestID, code, message))
}

// codeFor maps broker sentinels onto wire error codes.
func codeFor(err error) string {
	switch {
	case errors.Is(err, broker.ErrTopicNotFound):
		return wire.CodeTopicNotFound
	case errors.Is(err, broker.ErrBadMessage), errors.Is(err, broker.ErrInvalidName):
		return wire.CodeBadRequest
	default:
		return wire.CodeInternal
	}
}
