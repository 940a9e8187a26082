package market

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	PingPeriod   = 15 * time.Second // Keep-alive interval
	WriteTimeout = 10 * time.Second
	clientQueue  = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventHub fans settlement events out to websocket subscribers. A subscriber
// that cannot keep up is dropped rather than slowing the publisher.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

type subscriber struct {
	conn  *websocket.Conn
	send  chan model.Event
	buyer string // optional filter, hex address
	once  sync.Once
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*subscriber]struct{})}
}

// Publish implements the engine's event sink.
func (h *EventHub) Publish(_ context.Context, events []model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients {
		for _, ev := range events {
			if !sub.wants(ev) {
				continue
			}
			select {
			case sub.send <- ev:
			default:
				logger.Warn("event subscriber too slow, disconnecting", "remote", sub.conn.RemoteAddr().String())
				go sub.close()
			}
		}
	}
}

func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams events until the client goes away.
// buyer, when set, limits the stream to that buyer's purchases.
func (h *EventHub) Serve(w http.ResponseWriter, r *http.Request, buyer string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	sub := &subscriber{conn: conn, send: make(chan model.Event, clientQueue), buyer: buyer}

	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(sub)
	h.writeLoop(sub)
	return nil
}

func (h *EventHub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.clients, sub)
	h.mu.Unlock()
	sub.close()
}

// readLoop only drains control frames; clients have nothing to say.
func (h *EventHub) readLoop(sub *subscriber) {
	defer h.remove(sub)
	readTimeout := PingPeriod + 10*time.Second
	_ = sub.conn.SetReadDeadline(time.Now().Add(readTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(sub)
	}()
	for {
		select {
		case ev, ok := <-sub.send:
			if !ok {
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := sub.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) wants(ev model.Event) bool {
	if s.buyer == "" {
		return true
	}
	return ev.Purchase != nil && strings.EqualFold(ev.Purchase.Buyer.Hex(), s.buyer)
}

func (s *subscriber) close() {
	s.once.Do(func() {
		_ = s.conn.Close()
	})
}
