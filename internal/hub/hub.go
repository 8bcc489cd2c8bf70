// Package hub is the daemon's websocket server: it upgrades connections,
// feeds decoded client messages to the session coordinator and fans out
// telemetry to every connected client.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/device"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/session"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/status"
)

type Hub struct {
	coordinator      *session.Coordinator
	state            *device.State
	snapshotInterval time.Duration

	mu      sync.RWMutex
	clients map[*client]bool
}

func New(coordinator *session.Coordinator, state *device.State, snapshotInterval time.Duration) *Hub {
	return &Hub{
		coordinator:      coordinator,
		state:            state,
		snapshotInterval: snapshotInterval,
		clients:          make(map[*client]bool),
	}
}

func (h *Hub) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/api/sessions", h.handleSessions)
	mux.HandleFunc("/api/status", h.handleStatus)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("client connected: %s", r.RemoteAddr)
	c := newClient(conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	sendMessage(c, protocol.AuthRequired{Message: "Lütfen giriş yapın"})

	go h.readLoop(c, r.RemoteAddr)
}

// readLoop is this connection's only reader. Every decoded message goes
// through the coordinator, which owns all permission decisions; the loop
// itself only routes. On any read error the connection's session ends.
func (h *Hub) readLoop(c *client, remote string) {
	defer func() {
		if c.sessionID != "" {
			h.coordinator.EndSession(c.sessionID)
		}
		h.removeClient(c)
		log.Printf("client disconnected: %s", remote)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("dropping malformed message from %s: %v", remote, err)
			continue
		}

		switch m := msg.(type) {
		case protocol.Auth:
			sess, err := h.coordinator.Authenticate(m.Username, m.Password, m.ClientType, c)
			if err == nil {
				c.sessionID = sess.SessionID
			}
		case protocol.ChangeMode:
			if err := h.coordinator.ChangeMode(m.SessionID, m.Mode); err != nil {
				log.Printf("change_mode from %s rejected: %v", remote, err)
			}
		case protocol.Command:
			if err := h.coordinator.SubmitCommand(m.SessionID, m.Command); err != nil &&
				!errors.Is(err, session.ErrPermissionDenied) {
				log.Printf("command from %s failed: %v", remote, err)
			}
		default:
			log.Printf("dropping unexpected %s from %s", msg.MessageType(), remote)
		}
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Run broadcasts device telemetry and a host status snapshot on the
// configured interval until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcastTelemetry(ctx)
		}
	}
}

func (h *Hub) broadcastTelemetry(ctx context.Context) {
	data, err := json.Marshal(h.state.Snapshot())
	if err != nil {
		log.Printf("telemetry marshal error: %v", err)
		return
	}
	h.broadcastRaw(data)

	st, err := status.Collect(ctx)
	if err != nil {
		return
	}
	if encoded, err := protocol.Encode(st); err == nil {
		h.broadcastRaw(encoded)
	}
}

func (h *Hub) broadcastRaw(data []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		switch err := c.enqueue(data); {
		case err == nil:
		case errors.Is(err, errClientClosed):
			// Disconnected between the snapshot and the enqueue.
		default:
			log.Printf("ws client too slow, disconnecting")
			h.removeClient(c)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.coordinator.Infos())
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := status.Collect(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func sendMessage(c *client, m protocol.Message) {
	if err := c.Send(m); err != nil {
		log.Printf("send %s: %v", m.MessageType(), err)
	}
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	for _, local := range []string{"localhost", "127.0.0.1", "::1"} {
		if host == local || strings.HasPrefix(host, local+":") || strings.HasPrefix(host, "["+local+"]:") {
			return true
		}
	}
	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
