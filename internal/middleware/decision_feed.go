package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TruthGate/internal/domain/models"
	domrepo "TruthGate/internal/domain/repository"
	"TruthGate/pkg/logger"
)

const (
	feedWriteWait  = 5 * time.Second
	feedPingPeriod = 30 * time.Second
	feedBufSize    = 64
)

// DecisionFeed fans gateway decisions out to WebSocket subscribers. Slow
// clients are dropped rather than allowed to stall the broadcast; the
// durable record of every decision lives elsewhere.
type DecisionFeed struct {
	upgrader websocket.Upgrader
	metrics  domrepo.Metrics
	log      *logger.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	stopCh  chan struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewDecisionFeed(metrics domrepo.Metrics, log *logger.Logger) *DecisionFeed {
	return &DecisionFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		log:     log,
		clients: make(map[*feedClient]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (f *DecisionFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.metrics.RecordError("feed_upgrade")
		return err
	}

	client := &feedClient{conn: conn, send: make(chan []byte, feedBufSize)}
	f.mu.Lock()
	f.clients[client] = struct{}{}
	n := len(f.clients)
	f.mu.Unlock()
	f.log.Info("decision feed subscriber connected", logger.Int("subscribers", n))

	go f.writePump(client)
	go f.readPump(client)
	return nil
}

// BroadcastDecision serializes the decision once and queues it to every
// subscriber. A full client buffer drops that client.
func (f *DecisionFeed) BroadcastDecision(decision *models.ExecutionDecision) {
	data, err := json.Marshal(decision)
	if err != nil {
		f.metrics.RecordError("feed_marshal")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		select {
		case client.send <- data:
		default:
			delete(f.clients, client)
			close(client.send)
			f.metrics.RecordError("feed_slow_client")
		}
	}
}

// Stop disconnects every subscriber.
func (f *DecisionFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	for client := range f.clients {
		delete(f.clients, client)
		close(client.send)
	}
}

// Subscribers reports the current subscriber count.
func (f *DecisionFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *DecisionFeed) writePump(client *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case <-f.stopCh:
			return
		case data, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(feedWriteWait))
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.remove(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(client)
				return
			}
		}
	}
}

// readPump drains control frames; the feed is one-way.
func (f *DecisionFeed) readPump(client *feedClient) {
	defer f.remove(client)
	client.conn.SetReadLimit(512)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *DecisionFeed) remove(client *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		close(client.send)
	}
	f.mu.Unlock()
	_ = client.conn.Close()
}
