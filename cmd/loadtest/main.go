package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Configuration
type Config struct {
	WSURL              string
	APIURL             string
	TargetConnections  int
	RampRate           int // connections per second
	SustainDurationSec int
	ReportIntervalSec  int
	HealthCheckSec     int
	Topics             []string
	SubscriptionMode   string // "all", "single", "random"
	TopicsPerClient    int
	Publishers         int // connections that also publish
	PublishIntervalMs  int
	ConnectionTimeout  int // connection timeout in milliseconds
	MaxConnections     int // server max connections (for test mode detection)
}

// State tracks test metrics
type State struct {
	// Connection tracking
	activeConnections int64
	totalCreated      int64
	failedConnections int64
	connectionErrors  sync.Map // map[string]*int64

	// Message metrics
	eventsReceived int64
	infoFrames     int64
	serverErrors   int64
	errorKinds     sync.Map // map[string]*int64, keyed by error code

	// Subscription metrics
	subscriptionsSent      int64
	subscriptionsConfirmed int64
	subscriptionsFailed    int64
	clientsSubscribed      int64 // connections with every subscribe acked

	// Publish metrics
	publishesSent      int64
	publishesConfirmed int64

	// Health monitoring
	lastHealthCheck *HealthResponse

	// Timing
	startTime        time.Time
	rampStartTime    time.Time
	sustainStartTime time.Time
	phase            string // "ramping", "sustaining", "completed"

	mu sync.RWMutex
}

// HealthResponse from the /health endpoint.
type HealthResponse struct {
	UptimeSec   float64 `json:"uptime_sec"`
	Topics      int     `json:"topics"`
	Subscribers int     `json:"subscribers"`
}

// inbound is the union of every frame the server sends.
type inbound struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Connection represents one WebSocket client. Kept deliberately simple so it
// behaves like a browser client rather than an optimized Go consumer.
type Connection struct {
	id               int
	clientID         string
	ws               *websocket.Conn
	eventsReceived   int64
	connected        bool
	subscribedTopics []string
	pendingSubs      int32
	ctx              context.Context
	cancel           context.CancelFunc
	writeMu          sync.Mutex
	connectTime      time.Time
	closeOnce        sync.Once
}

var (
	state  *State
	config *Config
)

func main() {
	config = parseFlags()

	state = &State{
		startTime:     time.Now(),
		rampStartTime: time.Now(),
		phase:         "ramping",
	}

	log.Printf("\n" + strings.Repeat("=", 80))
	log.Printf("🧪 SUSTAINED LOAD TEST (topichub client)")
	log.Printf(strings.Repeat("=", 80))

	// Determine test mode
	testMode := "📊 CAPACITY TEST"
	testModeDesc := "Testing at server capacity limit"
	if config.TargetConnections > config.MaxConnections {
		testMode = "⚠️  STRESS/OVERLOAD TEST"
		testModeDesc = fmt.Sprintf("Intentional overload (%d > %d limit)", config.TargetConnections, config.MaxConnections)
	} else if config.RampRate >= 1000 {
		testMode = "⚡ BURST/SPIKE TEST"
		testModeDesc = fmt.Sprintf("Rapid connection burst (%d conn/sec)", config.RampRate)
	}

	log.Printf("\n%s", testMode)
	log.Printf("   %s", testModeDesc)
	log.Printf("\n📋 Configuration:")
	log.Printf("   Target:       %d connections", config.TargetConnections)
	log.Printf("   Server Limit: %d connections (HUB_MAX_CONNECTIONS)", config.MaxConnections)
	log.Printf("   Ramp Rate:    %d conn/sec", config.RampRate)
	log.Printf("   Timeout:      %ds (connection timeout)", config.ConnectionTimeout/1000)
	log.Printf("   Sustain:      %ds (%d minutes)", config.SustainDurationSec, config.SustainDurationSec/60)
	log.Printf("   Server:       %s", config.WSURL)
	log.Printf("   Control:      %s", config.APIURL)

	log.Printf("\n🔔 Subscription Settings:")
	log.Printf("   Mode:         %s", config.SubscriptionMode)
	log.Printf("   Topics:       %v (%d total)", config.Topics, len(config.Topics))
	if config.SubscriptionMode == "random" {
		log.Printf("   Per Client:   %d topics", config.TopicsPerClient)
	}

	log.Printf("\n📨 Publish Settings:")
	if config.Publishers > 0 {
		log.Printf("   Publishers:   %d connections", config.Publishers)
		log.Printf("   Interval:     %dms per publisher", config.PublishIntervalMs)
	} else {
		log.Printf("   Publishers:   DISABLED (subscribe-only run)")
	}

	log.Printf("\n" + strings.Repeat("=", 80) + "\n")

	// Topics must exist before anyone subscribes or publishes.
	log.Printf("🗂️  Creating topics via control plane...")
	if err := ensureTopics(); err != nil {
		log.Fatalf("❌ Topic setup failed: %v", err)
	}

	log.Printf("🏥 Performing initial health check...")
	if err := checkServerHealth(); err != nil {
		log.Fatalf("❌ Server health check failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Printf("\n🛑 Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	go periodicHealthChecks(ctx)
	go periodicReports(ctx)

	if err := rampUpConnections(ctx); err != nil {
		log.Fatalf("❌ Ramp-up failed: %v", err)
	}

	if state.phase == "sustaining" {
		log.Printf("🔒 Sustaining load for %ds...", config.SustainDurationSec)
		select {
		case <-time.After(time.Duration(config.SustainDurationSec) * time.Second):
			state.phase = "completed"
		case <-ctx.Done():
			log.Printf("⚠️  Sustain phase interrupted")
		}
	}

	log.Printf("\n✅ Test completed!")
	printReport()

	log.Printf("🎉 Sustained load test finished!")
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.WSURL, "url", getEnv("WS_URL", "ws://localhost:8080/ws"), "WebSocket server URL")
	flag.StringVar(&cfg.APIURL, "api", getEnv("API_URL", "http://localhost:8080"), "Control plane base URL")
	flag.IntVar(&cfg.TargetConnections, "connections", getEnvInt("TARGET_CONNECTIONS", 1000), "Target number of connections")
	flag.IntVar(&cfg.RampRate, "ramp-rate", getEnvInt("RAMP_RATE", 100), "Connections per second during ramp-up")
	flag.IntVar(&cfg.SustainDurationSec, "duration", getEnvInt("DURATION", 300), "Sustain duration in seconds")
	flag.IntVar(&cfg.ReportIntervalSec, "report-interval", 10, "Report interval in seconds")
	flag.IntVar(&cfg.HealthCheckSec, "health-interval", 5, "Health check interval in seconds")
	flag.IntVar(&cfg.ConnectionTimeout, "connection-timeout", getEnvInt("CONNECTION_TIMEOUT", 10000), "Connection timeout in milliseconds")
	flag.IntVar(&cfg.MaxConnections, "max-connections", getEnvInt("HUB_MAX_CONNECTIONS", 4096), "Server max connections (for test mode detection)")

	topicsStr := flag.String("topics", getEnv("TOPICS", "orders,inventory,alerts"), "Comma-separated list of topics")
	flag.StringVar(&cfg.SubscriptionMode, "subscription-mode", getEnv("SUBSCRIPTION_MODE", "all"), "Subscription mode: all, single, random")
	flag.IntVar(&cfg.TopicsPerClient, "topics-per-client", getEnvInt("TOPICS_PER_CLIENT", 2), "Topics per client (for random mode)")
	flag.IntVar(&cfg.Publishers, "publishers", getEnvInt("PUBLISHERS", 10), "Number of connections that also publish")
	flag.IntVar(&cfg.PublishIntervalMs, "publish-interval", getEnvInt("PUBLISH_INTERVAL_MS", 500), "Milliseconds between publishes per publisher")

	flag.Parse()

	if *topicsStr != "" {
		cfg.Topics = strings.Split(*topicsStr, ",")
		for i := range cfg.Topics {
			cfg.Topics[i] = strings.TrimSpace(cfg.Topics[i])
		}
	}
	if len(cfg.Topics) == 0 {
		log.Fatalf("❌ At least one topic is required")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// ensureTopics creates every configured topic up front. An existing topic is
// fine; any other control plane failure aborts the run.
func ensureTopics() error {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, topic := range config.Topics {
		body, _ := json.Marshal(map[string]string{"name": topic})
		resp, err := client.Post(config.APIURL+"/topics", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			log.Printf("   created %q", topic)
		case http.StatusConflict:
			log.Printf("   exists  %q", topic)
		default:
			return fmt.Errorf("create topic %s: unexpected status %d", topic, resp.StatusCode)
		}
	}
	return nil
}

func rampUpConnections(ctx context.Context) error {
	log.Printf("🚀 Starting ramp-up: %d connections at %d/sec", config.TargetConnections, config.RampRate)

	batchSize := config.RampRate / 10 // 10 batches per second
	if batchSize < 1 {
		batchSize = 1
	}
	batchInterval := 100 * time.Millisecond

	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	connectionID := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if atomic.LoadInt64(&state.totalCreated) >= int64(config.TargetConnections) {
				state.phase = "sustaining"
				state.sustainStartTime = time.Now()
				active := atomic.LoadInt64(&state.activeConnections)
				log.Printf("✅ Ramp-up complete! %d connections established", active)
				return nil
			}

			var wg sync.WaitGroup
			for i := 0; i < batchSize && atomic.LoadInt64(&state.totalCreated) < int64(config.TargetConnections); i++ {
				wg.Add(1)
				id := connectionID
				connectionID++
				atomic.AddInt64(&state.totalCreated, 1)

				go func(connID int) {
					defer wg.Done()
					conn := NewConnection(connID, ctx)
					if err := conn.Connect(); err != nil {
						atomic.AddInt64(&state.failedConnections, 1)
						if val, _ := state.connectionErrors.LoadOrStore(err.Error(), new(int64)); val != nil {
							atomic.AddInt64(val.(*int64), 1)
						}
					}
				}(id)
			}
			wg.Wait()
		}
	}
}

func NewConnection(id int, ctx context.Context) *Connection {
	connCtx, cancel := context.WithCancel(ctx)
	return &Connection{
		id:       id,
		clientID: uuid.NewString(),
		ctx:      connCtx,
		cancel:   cancel,
	}
}

func (c *Connection) Connect() error {
	// TCP keep-alive prevents cloud load balancers from dropping idle
	// connections mid-sustain.
	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(config.ConnectionTimeout) * time.Millisecond,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := &net.Dialer{
				Timeout:   time.Duration(config.ConnectionTimeout) * time.Millisecond,
				KeepAlive: 30 * time.Second,
			}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				tcpConn.SetKeepAlive(true)
				tcpConn.SetKeepAlivePeriod(30 * time.Second)
			}
			return conn, nil
		},
	}

	u, err := url.Parse(config.WSURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	ws, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.ws = ws
	c.connected = true
	c.connectTime = time.Now()
	atomic.AddInt64(&state.activeConnections, 1)

	// The server pings every 54s and drops the connection when no frame
	// arrives within 60s. 60s on our side gives the same margin: one missed
	// ping before we declare the connection dead.
	const readTimeout = 60 * time.Second

	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(appData string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	c.autoSubscribe()

	go c.readPump()
	go c.writePump()
	if c.id < config.Publishers {
		go c.publishPump()
	}

	return nil
}

func (c *Connection) autoSubscribe() {
	var topicsToSubscribe []string

	switch config.SubscriptionMode {
	case "all":
		topicsToSubscribe = config.Topics
	case "single":
		idx := c.id % len(config.Topics)
		topicsToSubscribe = []string{config.Topics[idx]}
	case "random":
		numTopics := min(config.TopicsPerClient, len(config.Topics))
		perm := rand.Perm(len(config.Topics))
		for i := 0; i < numTopics; i++ {
			topicsToSubscribe = append(topicsToSubscribe, config.Topics[perm[i]])
		}
	default:
		topicsToSubscribe = config.Topics
	}

	c.subscribe(topicsToSubscribe)
}

// subscribe sends one subscribe frame per topic; the server acks each one
// individually.
func (c *Connection) subscribe(topics []string) {
	if c.ws == nil || !c.connected {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, topic := range topics {
		msg := map[string]interface{}{
			"type":       "subscribe",
			"topic":      topic,
			"client_id":  c.clientID,
			"request_id": uuid.NewString(),
		}
		if err := c.ws.WriteJSON(msg); err != nil {
			atomic.AddInt64(&state.subscriptionsFailed, 1)
			continue
		}
		atomic.AddInt32(&c.pendingSubs, 1)
		atomic.AddInt64(&state.subscriptionsSent, 1)
	}
	c.subscribedTopics = topics
}

func (c *Connection) readPump() {
	defer c.close()

	const readTimeout = 60 * time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg inbound
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}

		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "ack":
			switch msg.Status {
			case "subscribed":
				atomic.AddInt64(&state.subscriptionsConfirmed, 1)
				if atomic.AddInt32(&c.pendingSubs, -1) == 0 {
					atomic.AddInt64(&state.clientsSubscribed, 1)
				}
			case "published":
				atomic.AddInt64(&state.publishesConfirmed, 1)
			}
		case "pong":
			// Heartbeat response
		case "event":
			atomic.AddInt64(&c.eventsReceived, 1)
			atomic.AddInt64(&state.eventsReceived, 1)
		case "info":
			atomic.AddInt64(&state.infoFrames, 1)
		case "error":
			atomic.AddInt64(&state.serverErrors, 1)
			if val, _ := state.errorKinds.LoadOrStore(msg.Error.Code, new(int64)); val != nil {
				atomic.AddInt64(val.(*int64), 1)
			}
		}
	}
}

func (c *Connection) writePump() {
	// Application-level ping every 15s, well inside the server's 60s read
	// deadline, so idle subscribers stay attached.
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.ws == nil || !c.connected {
				return
			}

			c.writeMu.Lock()
			heartbeat := map[string]interface{}{
				"type":       "ping",
				"request_id": uuid.NewString(),
			}
			err := c.ws.WriteJSON(heartbeat)
			c.writeMu.Unlock()

			if err != nil {
				log.Printf("⚠️  Connection %d dead (heartbeat send failed): %v", c.id, err)
				c.close()
				return
			}
		}
	}
}

// publishPump drives traffic from this connection, round-robin over its
// subscribed topics.
func (c *Connection) publishPump() {
	ticker := time.NewTicker(time.Duration(config.PublishIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.ws == nil || !c.connected {
				return
			}

			topics := c.subscribedTopics
			if len(topics) == 0 {
				topics = config.Topics
			}
			topic := topics[seq%len(topics)]
			seq++

			msg := map[string]interface{}{
				"type":       "publish",
				"topic":      topic,
				"request_id": uuid.NewString(),
				"message": map[string]interface{}{
					"id": uuid.NewString(),
					"payload": map[string]interface{}{
						"seq":     seq,
						"source":  c.clientID,
						"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
					},
				},
			}

			c.writeMu.Lock()
			err := c.ws.WriteJSON(msg)
			c.writeMu.Unlock()

			if err != nil {
				log.Printf("⚠️  Connection %d dead (publish send failed): %v", c.id, err)
				c.close()
				return
			}
			atomic.AddInt64(&state.publishesSent, 1)
		}
	}
}

func (c *Connection) close() {
	// Both pumps can fail together; run the teardown once.
	c.closeOnce.Do(func() {
		c.connected = false
		atomic.AddInt64(&state.activeConnections, -1)
		if c.ws != nil {
			c.ws.Close()
		}
		c.cancel()
	})
}

func checkServerHealth() error {
	resp, err := http.Get(config.APIURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return err
	}

	state.mu.Lock()
	state.lastHealthCheck = &health
	state.mu.Unlock()

	return nil
}

func periodicHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(config.HealthCheckSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := checkServerHealth(); err != nil {
				log.Printf("❌ Health check failed: %v", err)
			}
		}
	}
}

func periodicReports(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(config.ReportIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printReport()
		}
	}
}

func printReport() {
	elapsed := int(time.Since(state.startTime).Seconds())

	state.mu.RLock()
	health := state.lastHealthCheck
	state.mu.RUnlock()

	active := atomic.LoadInt64(&state.activeConnections)
	totalCreated := atomic.LoadInt64(&state.totalCreated)
	failed := atomic.LoadInt64(&state.failedConnections)
	eventsRcvd := atomic.LoadInt64(&state.eventsReceived)
	serverErrors := atomic.LoadInt64(&state.serverErrors)

	successRate := 100.0
	if totalCreated > 0 {
		successRate = float64(totalCreated-failed) / float64(totalCreated) * 100
	}

	eventRate := float64(eventsRcvd) / float64(max(elapsed, 1))

	log.Printf("\n" + strings.Repeat("=", 80))
	log.Printf("📊 SUSTAINED LOAD TEST - Elapsed: %ds - Phase: %s", elapsed, strings.ToUpper(state.phase))
	log.Printf(strings.Repeat("=", 80))
	log.Printf("\n🔌 Connections:")
	log.Printf("   Active:       %d / %d target", active, config.TargetConnections)
	log.Printf("   Created:      %d", totalCreated)
	log.Printf("   Failed:       %d", failed)
	log.Printf("   Success Rate: %.1f%%", successRate)

	log.Printf("\n📨 Events:")
	log.Printf("   Received:     %s", formatNumber(eventsRcvd))
	log.Printf("   Rate:         %.2f events/sec", eventRate)

	infoFrames := atomic.LoadInt64(&state.infoFrames)
	if infoFrames > 0 {
		log.Printf("   Info frames:  %d", infoFrames)
	}

	if config.Publishers > 0 {
		pubSent := atomic.LoadInt64(&state.publishesSent)
		pubConfirmed := atomic.LoadInt64(&state.publishesConfirmed)

		pubRate := 100.0
		if pubSent > 0 {
			pubRate = float64(pubConfirmed) / float64(pubSent) * 100
		}

		log.Printf("\n📤 Publishes:")
		log.Printf("   Sent:         %s", formatNumber(pubSent))
		log.Printf("   Confirmed:    %s", formatNumber(pubConfirmed))
		log.Printf("   Ack Rate:     %.1f%%", pubRate)
	}

	subsSent := atomic.LoadInt64(&state.subscriptionsSent)
	subsConfirmed := atomic.LoadInt64(&state.subscriptionsConfirmed)
	subsFailed := atomic.LoadInt64(&state.subscriptionsFailed)

	subRate := 100.0
	if subsSent > 0 {
		subRate = float64(subsConfirmed) / float64(subsSent) * 100
	}

	log.Printf("\n🔔 Subscriptions:")
	log.Printf("   Mode:         %s", config.SubscriptionMode)
	log.Printf("   Topics:       %v", config.Topics)
	log.Printf("   Sent:         %d", subsSent)
	log.Printf("   Confirmed:    %d", subsConfirmed)
	log.Printf("   Failed:       %d", subsFailed)
	log.Printf("   Ready Clients: %d", atomic.LoadInt64(&state.clientsSubscribed))
	log.Printf("   Success Rate: %.1f%%", subRate)

	log.Printf("\n💻 Server Health:")
	if health != nil {
		log.Printf("   Uptime:       %.0fs", health.UptimeSec)
		log.Printf("   Topics:       %d", health.Topics)
		log.Printf("   Subscribers:  %d", health.Subscribers)
	} else {
		log.Printf("   Status:       ⚠️  No health data")
	}

	if serverErrors > 0 {
		log.Printf("\n⚠️  Server Errors: %d", serverErrors)
		state.errorKinds.Range(func(key, value interface{}) bool {
			count := atomic.LoadInt64(value.(*int64))
			log.Printf("   %s: %d", key, count)
			return true
		})
	}

	if state.phase == "ramping" {
		rampElapsed := int(time.Since(state.rampStartTime).Seconds())
		rampProgress := float64(totalCreated) / float64(config.TargetConnections) * 100
		log.Printf("\n🚀 Ramp Progress:")
		log.Printf("   Progress:     %.1f%%", rampProgress)
		log.Printf("   Time:         %ds", rampElapsed)
	} else if state.phase == "sustaining" {
		sustainElapsed := int(time.Since(state.sustainStartTime).Seconds())
		remaining := max(0, config.SustainDurationSec-sustainElapsed)
		log.Printf("\n🔒 Sustain Status:")
		log.Printf("   Elapsed:      %ds", sustainElapsed)
		log.Printf("   Remaining:    %ds", remaining)
	}

	hasErrors := false
	state.connectionErrors.Range(func(key, value interface{}) bool {
		hasErrors = true
		return false
	})

	if hasErrors {
		log.Printf("\n⚠️  Connection Errors:")
		state.connectionErrors.Range(func(key, value interface{}) bool {
			count := atomic.LoadInt64(value.(*int64))
			log.Printf("   %s: %d", key, count)
			return true
		})
	}

	log.Printf(strings.Repeat("=", 80) + "\n")
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	str := fmt.Sprintf("%d", n)
	var result []rune
	for i, ch := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, ch)
	}
	return string(result)
}
