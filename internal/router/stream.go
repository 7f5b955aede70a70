package router

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aiserve/inference-gateway/internal/logging"
	"github.com/aiserve/inference-gateway/internal/modelcache"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// adminStream pushes periodic resident-cache snapshots to connected
// operators over /admin/stream, so a dashboard doesn't need to poll
// /admin/stats.
type adminStream struct {
	cache *modelcache.CacheState

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func newAdminStream(cache *modelcache.CacheState) *adminStream {
	s := &adminStream{cache: cache, clients: make(map[*websocket.Conn]bool)}
	go s.broadcastLoop()
	return s
}

func (s *adminStream) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("admin stream upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	// Drain and discard inbound messages; this channel is push-only from
	// the server's side, but we must keep reading to notice disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *adminStream) broadcastLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		s.broadcastStats()
	}
}

func (s *adminStream) broadcastStats() {
	s.mu.RLock()
	if len(s.clients) == 0 {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	payload, err := json.Marshal(map[string]interface{}{
		"type":     "stats",
		"resident": s.cache.Stats(),
	})
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
		}
	}
}
