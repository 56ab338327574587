package limits

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
)

type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ConnectionLimiter throttles connection attempts, first against a global
// budget and then against a per-IP bucket. Buckets for idle addresses are
// evicted by a background cleanup pass.
type ConnectionLimiter struct {
	global *rate.Limiter

	mu    sync.Mutex
	perIP map[string]*ipEntry

	perIPRate  rate.Limit
	perIPBurst int

	stop   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func NewConnectionLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int, logger zerolog.Logger) *ConnectionLimiter {
	l := &ConnectionLimiter{
		global:     rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		perIP:      make(map[string]*ipEntry),
		perIPRate:  rate.Limit(ipRate),
		perIPBurst: ipBurst,
		stop:       make(chan struct{}),
		logger:     logger.With().Str("component", "limits").Logger(),
	}
	go l.janitor()
	return l
}

// Allow reports whether a new connection from ip may proceed. The global
// budget is charged first so a single address cannot starve the listener.
func (l *ConnectionLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		return false
	}

	l.mu.Lock()
	e := l.perIP[ip]
	if e == nil {
		e = &ipEntry{lim: rate.NewLimiter(l.perIPRate, l.perIPBurst)}
		l.perIP[ip] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.lim.Allow()
}

func (l *ConnectionLimiter) janitor() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-l.stop:
			return
		}
	}
}

func (l *ConnectionLimiter) evictStale() {
	cutoff := time.Now().Add(-entryTTL)
	l.mu.Lock()
	for ip, e := range l.perIP {
		if e.lastSeen.Before(cutoff) {
			delete(l.perIP, ip)
		}
	}
	remaining := len(l.perIP)
	l.mu.Unlock()
	l.logger.Debug().Int("tracked_ips", remaining).Msg("rate limiter cleanup pass")
}

// Close stops the cleanup goroutine.
func (l *ConnectionLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
