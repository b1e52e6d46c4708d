// Package hub tracks which clients are in which room and fans events out
// to them.
//
// Fan-out is fire-and-forget: Send must never block, and per-client
// ordering is the transport's job (the websocket adapter funnels each
// client's sends through one writer). The hub itself only answers
// membership questions and routes payloads.
package hub

import (
	"sync"

	"github.com/codehive-dev/codehive/internal/logger"
)

// Client is one connected user endpoint.
type Client interface {
	// ID uniquely identifies the connection, not the user.
	ID() string

	// UserID identifies the user across reconnects.
	UserID() string

	// Username is the display name presented on join.
	Username() string

	// Send queues an event for delivery. It must not block.
	Send(event string, payload any)

	// Close shuts the underlying connection down. Idempotent.
	Close()
}

// Member is a user currently in a room.
type Member struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// roomMembers holds one room's clients in join order.
type roomMembers struct {
	order  []string
	byUser map[string]Client
}

// Hub is the membership registry for all rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*roomMembers
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{rooms: make(map[string]*roomMembers)}
}

// Join adds a client to a room. A client for the same user replaces the
// previous one in place, keeping the join-order slot; the replaced client
// is returned so the caller can close its connection. The first result is
// true when the room had no members before.
func (h *Hub) Join(room string, c Client) (first bool, replaced Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = &roomMembers{byUser: make(map[string]Client)}
		h.rooms[room] = members
		first = true
	}

	userID := c.UserID()
	if old, ok := members.byUser[userID]; ok {
		replaced = old
		members.byUser[userID] = c
		return first, replaced
	}

	members.order = append(members.order, userID)
	members.byUser[userID] = c

	logger.Debug("Client joined room",
		logger.Room(room),
		logger.User(userID),
		logger.Members(len(members.order)))

	return first, nil
}

// Leave removes a client from a room. The removal only happens when the
// given client is still the user's current one; a stale disconnect from a
// connection that was already replaced is ignored. The last result is true
// when the room became empty.
func (h *Hub) Leave(room string, c Client) (removed bool, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return false, false
	}

	userID := c.UserID()
	current, ok := members.byUser[userID]
	if !ok || current.ID() != c.ID() {
		return false, false
	}

	delete(members.byUser, userID)
	for i, id := range members.order {
		if id == userID {
			members.order = append(members.order[:i], members.order[i+1:]...)
			break
		}
	}

	logger.Debug("Client left room",
		logger.Room(room),
		logger.User(userID),
		logger.Members(len(members.order)))

	if len(members.order) == 0 {
		delete(h.rooms, room)
		return true, true
	}
	return true, false
}

// Members returns a room's users in join order.
func (h *Hub) Members(room string) []Member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return nil
	}

	out := make([]Member, 0, len(members.order))
	for _, userID := range members.order {
		c := members.byUser[userID]
		out = append(out, Member{UserID: c.UserID(), Username: c.Username()})
	}
	return out
}

// IsMember reports whether a user is currently in a room.
func (h *Hub) IsMember(room, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	_, ok = members.byUser[userID]
	return ok
}

// Count returns the number of users in a room.
func (h *Hub) Count(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return 0
	}
	return len(members.order)
}

// Rooms returns the codes of all rooms with at least one member.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		out = append(out, room)
	}
	return out
}

// Broadcast sends an event to every client in a room.
func (h *Hub) Broadcast(room, event string, payload any) {
	for _, c := range h.clients(room) {
		c.Send(event, payload)
	}
}

// BroadcastExcept sends an event to every client in a room except the one
// with the given connection ID.
func (h *Hub) BroadcastExcept(room, exceptConnID, event string, payload any) {
	for _, c := range h.clients(room) {
		if c.ID() == exceptConnID {
			continue
		}
		c.Send(event, payload)
	}
}

// SendToUser delivers an event to a single user in a room. Returns false
// when the user is not present.
func (h *Hub) SendToUser(room, userID, event string, payload any) bool {
	h.mu.RLock()
	members, ok := h.rooms[room]
	var c Client
	if ok {
		c = members.byUser[userID]
	}
	h.mu.RUnlock()

	if c == nil {
		return false
	}
	c.Send(event, payload)
	return true
}

// clients snapshots a room's clients in join order so sends happen outside
// the lock.
func (h *Hub) clients(room string) []Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return nil
	}

	out := make([]Client, 0, len(members.order))
	for _, userID := range members.order {
		out = append(out, members.byUser[userID])
	}
	return out
}
