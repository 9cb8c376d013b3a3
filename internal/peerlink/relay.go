package peerlink

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The relay carries no credentials and serves trusted rooms on a LAN
	// or a box the host controls, so any origin may join.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// member is one connection in a room. The write mutex serializes fan-out
// writes from the other members' reader goroutines.
type member struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (m *member) write(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.WriteMessage(messageType, data)
}

// Relay is a minimal fan-out hub: every frame a participant sends is
// forwarded verbatim to every other connection in the same room. It never
// inspects payloads; idempotent application on the clients is what makes
// at-least-once delivery safe, so the relay needs no acks, no ordering
// state, and no reconnect logic.
type Relay struct {
	log   *logging.Logger
	mu    sync.Mutex
	rooms map[string]map[*member]bool
}

// NewRelay returns an empty hub.
func NewRelay(log *logging.Logger) *Relay {
	return &Relay{log: log, rooms: make(map[string]map[*member]bool)}
}

// ServeHTTP upgrades GET /ws/<room> and pumps the connection until it
// closes. Everything else is a 404.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimPrefix(r.URL.Path, "/ws/")
	if room == "" || room == r.URL.Path || strings.Contains(room, "/") {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.log.Warn("relay upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	m := &member{conn: conn}
	rl.join(room, m)
	defer rl.leave(room, m)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		rl.fanOut(room, m, messageType, data)
	}
}

func (rl *Relay) join(room string, m *member) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.rooms[room] == nil {
		rl.rooms[room] = make(map[*member]bool)
	}
	rl.rooms[room][m] = true
	rl.log.Info("relay: peer joined room %s (%d connected)", room, len(rl.rooms[room]))
}

func (rl *Relay) leave(room string, m *member) {
	rl.mu.Lock()
	delete(rl.rooms[room], m)
	if len(rl.rooms[room]) == 0 {
		delete(rl.rooms, room)
	}
	remaining := len(rl.rooms[room])
	rl.mu.Unlock()

	m.conn.Close()
	rl.log.Info("relay: peer left room %s (%d connected)", room, remaining)
}

// RoomSize reports the number of connections in a room.
func (rl *Relay) RoomSize(room string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.rooms[room])
}

// fanOut forwards one frame to every other member of the room. A failed
// write only logs: the failing member's own read loop will notice the dead
// connection and remove it.
func (rl *Relay) fanOut(room string, from *member, messageType int, data []byte) {
	rl.mu.Lock()
	peers := make([]*member, 0, len(rl.rooms[room]))
	for m := range rl.rooms[room] {
		if m != from {
			peers = append(peers, m)
		}
	}
	rl.mu.Unlock()

	for _, m := range peers {
		if err := m.write(messageType, data); err != nil {
			rl.log.Debug("relay: fan-out write failed: %v", err)
		}
	}
}
