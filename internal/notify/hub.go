package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultSubscriberBuffer = 32
	writeTimeout            = 5 * time.Second
)

// Hub streams events to websocket subscribers. A subscriber that cannot
// keep up is disconnected rather than slowing down the publisher.
type Hub struct {
	logger     *logrus.Logger
	bufferSize int
	// OriginPatterns is passed to the websocket handshake
	OriginPatterns []string

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	msgs      chan []byte
	closeSlow func()
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger:      logger,
		bufferSize:  defaultSubscriberBuffer,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and streams events until the peer leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept websocket subscriber")
		return
	}

	err = h.subscribe(r.Context(), conn)
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		h.logger.WithError(err).Debug("Websocket subscriber disconnected")
	}
}

func (h *Hub) subscribe(ctx context.Context, conn *websocket.Conn) error {
	var closed sync.Once
	s := &subscriber{
		msgs: make(chan []byte, h.bufferSize),
		closeSlow: func() {
			closed.Do(func() {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			})
		},
	}
	h.add(s)
	defer h.remove(s)

	// events flow one way; CloseRead handles control frames
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case msg := <-s.msgs:
			if err := writeWithTimeout(ctx, conn, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
}

// Notify publishes e to every subscriber without blocking
func (h *Hub) Notify(_ context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		select {
		case s.msgs <- data:
		default:
			go s.closeSlow()
		}
	}
}
