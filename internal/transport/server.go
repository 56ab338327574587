package transport

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adred-codev/topichub/internal/broker"
	"github.com/adred-codev/topichub/internal/dispatch"
	"github.com/adred-codev/topichub/internal/limits"
	"github.com/adred-codev/topichub/internal/logging"
	"github.com/adred-codev/topichub/internal/metrics"
	"github.com/adred-codev/topichub/internal/protocol"
)

// Server accepts websocket sessions and runs one dispatcher plus one read
// loop per connection. Admission control happens before the upgrade: global
// and per-IP rate limits first, then the capacity semaphore.
type Server struct {
	broker    *broker.Broker
	limiter   *limits.ConnectionLimiter
	queueSize int

	sem          chan struct{}
	shuttingDown atomic.Bool
	conns        sync.Map // *dispatch.Dispatcher -> struct{}
	wg           sync.WaitGroup

	logger zerolog.Logger
}

func NewServer(b *broker.Broker, limiter *limits.ConnectionLimiter, maxConnections, queueSize int, logger zerolog.Logger) *Server {
	return &Server{
		broker:    b,
		limiter:   limiter,
		queueSize: queueSize,
		sem:       make(chan struct{}, maxConnections),
		logger:    logger.With().Str("component", "transport").Logger(),
	}
}

// ServeHTTP upgrades the request and starts the session goroutines.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := getClientIP(r)

	if s.shuttingDown.Load() {
		metrics.ConnectionsRejected.WithLabelValues(metrics.RejectReasonShutdown).Inc()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if !s.limiter.Allow(clientIP) {
		s.logger.Warn().
			Str("client_ip", clientIP).
			Msg("Connection rejected: rate limit exceeded")
		metrics.ConnectionsRejected.WithLabelValues(metrics.RejectReasonRateLimited).Inc()
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	select {
	case s.sem <- struct{}{}:
	default:
		s.logger.Warn().
			Str("client_ip", clientIP).
			Int("max_connections", cap(s.sem)).
			Msg("Connection rejected: at capacity")
		metrics.ConnectionsRejected.WithLabelValues(metrics.RejectReasonCapacity).Inc()
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		<-s.sem // Release slot
		s.logger.Error().
			Err(err).
			Str("client_ip", clientIP).
			Msg("WebSocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	d := dispatch.New(conn, s.queueSize, s.logger)
	h := protocol.NewHandler(s.broker, d, conn, connID, s.logger)

	s.conns.Store(d, struct{}{})
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()

	s.logger.Info().
		Str("client_ip", clientIP).
		Str("conn_id", connID).
		Msg("Client connected")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer logging.RecoverPanic(s.logger, "writer")
		d.Run()
	}()
	go func() {
		defer s.wg.Done()
		defer func() {
			s.conns.Delete(d)
			metrics.ConnectionsActive.Dec()
			<-s.sem
			s.logger.Info().
				Str("client_ip", clientIP).
				Str("conn_id", connID).
				Msg("Client disconnected")
		}()
		defer logging.RecoverPanic(s.logger, "reader")
		h.ReadLoop()
	}()
}

// Shutdown rejects new upgrades, closes every live session, and waits for
// the session goroutines to drain or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	open := 0
	s.conns.Range(func(key, _ any) bool {
		key.(*dispatch.Dispatcher).Close()
		open++
		return true
	})
	s.logger.Info().Int("active_connections", open).Msg("Draining active connections")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("All connections drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown deadline expired before connections drained")
		return ctx.Err()
	}
}

// getClientIP extracts the client IP from the request.
// Checks X-Forwarded-For header first (for load balancers/proxies),
// then falls back to RemoteAddr.
func getClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
