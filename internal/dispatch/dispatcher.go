// Package dispatch owns the outbound half of one connection: a bounded FIFO
// queue drained by a single writer goroutine. Publishers and the protocol
// handler enqueue; nothing else ever writes to the connection.
package dispatch

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred-codev/topichub/internal/metrics"
)

const (
	// writeWait bounds each write to the connection.
	writeWait = 10 * time.Second
	// pingPeriod keeps a healthy connection inside the reader's deadline.
	pingPeriod = 54 * time.Second
)

type frame struct {
	op      ws.OpCode
	payload []byte
}

// Dispatcher serializes every frame written to one connection. Enqueue never
// blocks: when the queue is full the oldest queued frame is dropped so fresh
// events keep flowing. The writer goroutine closes the connection when it
// stops, which unblocks the reader.
type Dispatcher struct {
	conn   net.Conn
	queue  chan frame
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// New builds a dispatcher with room for queueSize outbound frames. Run must
// be started exactly once for frames to flow.
func New(conn net.Conn, queueSize int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		conn:   conn,
		queue:  make(chan frame, queueSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Enqueue appends a text frame for delivery. Returns false once the
// dispatcher is closed.
func (d *Dispatcher) Enqueue(payload []byte) bool {
	return d.enqueue(frame{op: ws.OpText, payload: payload})
}

// EnqueuePong answers a client ping through the same queue, so the
// connection keeps a single writer.
func (d *Dispatcher) EnqueuePong(payload []byte) bool {
	return d.enqueue(frame{op: ws.OpPong, payload: payload})
}

func (d *Dispatcher) enqueue(f frame) bool {
	for {
		select {
		case <-d.done:
			return false
		default:
		}
		select {
		case d.queue <- f:
			return true
		default:
		}
		// Queue full: drop the oldest entry and retry.
		select {
		case <-d.queue:
			metrics.FramesDropped.Inc()
		default:
		}
	}
}

// Run drains the queue into the connection until Close is called or a write
// fails. Frames already queued when the loop wakes are flushed as one batch.
func (d *Dispatcher) Run() {
	writer := bufio.NewWriter(d.conn)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		d.conn.Close()
	}()

	for {
		select {
		case <-d.done:
			d.conn.SetWriteDeadline(time.Now().Add(writeWait))
			wsutil.WriteServerMessage(d.conn, ws.OpClose, nil)
			return
		case f := <-d.queue:
			d.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := d.write(writer, f); err != nil {
				d.logger.Debug().Err(err).Msg("write failed")
				return
			}
			// Enqueuers dropping the oldest frame also receive from the
			// queue, so the sampled length is only an upper bound.
		drain:
			for i := len(d.queue); i > 0; i-- {
				select {
				case f := <-d.queue:
					if err := d.write(writer, f); err != nil {
						d.logger.Debug().Err(err).Msg("write failed")
						return
					}
				default:
					break drain
				}
			}
			if err := writer.Flush(); err != nil {
				d.logger.Debug().Err(err).Msg("flush failed")
				return
			}
		case <-ticker.C:
			d.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(d.conn, ws.OpPing, nil); err != nil {
				d.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (d *Dispatcher) write(w *bufio.Writer, f frame) error {
	if err := wsutil.WriteServerMessage(w, f.op, f.payload); err != nil {
		return err
	}
	if f.op == ws.OpText {
		metrics.MessagesSent.Inc()
		metrics.BytesSent.Add(float64(len(f.payload)))
	}
	return nil
}

// Close stops the writer. Safe to call multiple times and from any
// goroutine; queued frames are abandoned.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.done) })
}
