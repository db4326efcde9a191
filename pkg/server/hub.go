// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/log"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBacklog = 64
)

// Hub fans stored event batches out to websocket subscribers. A
// subscriber that falls behind by more than its backlog is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	log      log.Logger

	mu      sync.Mutex
	clients map[*subscriber]struct{}
}

type subscriber struct {
	conn  *websocket.Conn
	appID string
	send  chan analytics.Batch
}

func NewHub(logger log.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logger,
		clients: make(map[*subscriber]struct{}),
	}
}

// Len is the number of live subscribers
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues batch for every subscriber of its app
func (h *Hub) Broadcast(batch analytics.Batch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		if sub.appID != "" && sub.appID != batch.AppID {
			continue
		}
		select {
		case sub.send <- batch:
		default:
			h.log.Warn("event feed subscriber too slow, dropping", log.String("appId", sub.appID))
			h.dropLocked(sub)
		}
	}
}

// ServeHTTP upgrades the request. The optional appId query parameter
// narrows the feed to one app.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", log.Error(err))
		return
	}
	sub := &subscriber{
		conn:  conn,
		appID: r.URL.Query().Get("appId"),
		send:  make(chan analytics.Batch, sendBacklog),
	}

	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("event feed subscribed", log.String("remote", r.RemoteAddr), log.String("appId", sub.appID))

	go h.writePump(sub)
	h.readPump(sub)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		h.dropLocked(sub)
	}
}

func (h *Hub) dropLocked(sub *subscriber) {
	if _, ok := h.clients[sub]; !ok {
		return
	}
	delete(h.clients, sub)
	close(sub.send)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	h.dropLocked(sub)
	h.mu.Unlock()
}

// readPump only drains control frames; the feed is one way
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.conn.Close()
	}()
	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case batch, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteJSON(batch); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
