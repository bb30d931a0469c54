package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const emitBufferSize = 256

var ErrHubStopped = errors.New("realtime hub stopped")

// Hub possède l'index salle -> clients ; seul Run le modifie.
type Hub struct {
	rooms      map[string]map[*Client]struct{}
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	emit       chan Event
	done       chan struct{}
	logger     *zap.Logger

	mu    sync.RWMutex
	count int
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		emit:       make(chan Event, emitBufferSize),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case ev := <-h.emit:
			h.deliver(ev)
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return
		}
	}
}

func (h *Hub) add(c *Client) {
	h.clients[c] = struct{}{}
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	h.setCount(len(h.clients))
	h.logger.Debug("realtime client connected", zap.String("user_id", c.ID), zap.Strings("rooms", c.rooms))
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for _, room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	h.setCount(len(h.clients))
	h.logger.Debug("realtime client disconnected", zap.String("user_id", c.ID))
}

func (h *Hub) deliver(ev Event) {
	msg := Message{Type: ev.Type, Data: ev.Data}
	for c := range h.rooms[ev.Room] {
		select {
		case c.send <- msg:
		default:
			// client trop lent : on le déconnecte plutôt que de bloquer la diffusion
			h.logger.Warn("realtime client too slow, disconnecting", zap.String("user_id", c.ID))
			h.remove(c)
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount retourne le nombre de connexions actives.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Emit remet un événement aux clients locaux sans jamais bloquer.
func (h *Hub) Emit(ev Event) {
	select {
	case h.emit <- ev:
	default:
		h.logger.Warn("realtime emit buffer full, event dropped",
			zap.String("room", ev.Room), zap.String("event", ev.Type))
	}
}

// Publish implémente Notifier pour une instance unique.
func (h *Hub) Publish(_ context.Context, room, event string, payload interface{}) error {
	ev, err := newEvent(room, event, payload)
	if err != nil {
		return err
	}
	h.Emit(ev)
	return nil
}

func (h *Hub) attach(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Serve enregistre la connexion dans ses salles et bloque jusqu'à sa fermeture.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, userID string, rooms []string) error {
	c := newClient(userID, rooms, conn)
	c.send <- Message{Type: EventConnected, Data: mustJSON(map[string]interface{}{"userId": userID, "rooms": rooms})}
	if err := h.attach(c); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx, cancel, h.logger)
	c.readPump(ctx, h.logger)

	h.detach(c)
	return nil
}
