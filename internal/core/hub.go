package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/store"
)

// Store is the slice of persistence the hub drives: message durability,
// the seen set, and the presence flags on the user row.
type Store interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
	AddSeen(ctx context.Context, messageID, userID int64) (*store.Message, error)
	UpdatePresence(ctx context.Context, userID int64, online bool, connID string) error
}

// Hub is the connection gateway. It owns the room membership table
// (group id -> subscribed connections) and the per-connection subscription
// sets, and is their sole mutator. Handlers never touch these directly;
// lifecycle events can arrive on parallel goroutines, so both tables sit
// behind the hub mutex.
type Hub struct {
	store Store
	log   zerolog.Logger

	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[*Client]struct{}
}

// NewHub creates a new chat hub. A nil store disables persistence and
// presence writes, which is how the unit tests run it.
func NewHub(st Store, logger *zerolog.Logger) *Hub {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Hub{
		store:   st,
		log:     l,
		rooms:   make(map[string]*Room),
		clients: make(map[*Client]struct{}),
	}
}

// RegisterClient adds an authenticated connection to the hub and starts
// its command dispatcher. The connection is subscribed to no rooms yet.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.serveClient(c)
}

// UnregisterClient removes the connection from every room it joined,
// flips the principal offline and tells everyone else. Idempotent: the
// second call for the same client is a no-op, so the offline flag flips
// exactly once. Closing Commands lets queued commands drain first, so an
// in-flight send still persists after disconnect.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for groupID := range c.rooms {
		if room, ok := h.rooms[groupID]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, groupID)
			}
		}
		delete(c.rooms, groupID)
	}
	h.mu.Unlock()

	close(c.Commands)

	if h.store != nil {
		if err := h.store.UpdatePresence(context.Background(), c.Principal.ID, false, ""); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.Principal.ID).Msg("presence offline update failed")
		}
	}

	h.broadcastGlobalExcept(&Event{Kind: EventUserOffline, UserID: c.Principal.ID}, c)
}

// JoinGroups subscribes the connection to each group id. Joining an
// already-joined group is a no-op. Side effect: the principal goes online
// with this connection recorded, announced to all other connections.
func (h *Hub) JoinGroups(c *Client, groupIDs []string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		// Commands drain after unregister so queued sends still persist.
		// A late join must not re-insert the dead connection into the
		// room tables or flip presence back online.
		h.mu.Unlock()
		return
	}
	for _, groupID := range groupIDs {
		if groupID == "" {
			continue
		}
		room, ok := h.rooms[groupID]
		if !ok {
			room = NewRoom(groupID)
			h.rooms[groupID] = room
		}
		room.AddClient(c)
		c.rooms[groupID] = struct{}{}
	}
	h.mu.Unlock()

	if h.store != nil {
		if err := h.store.UpdatePresence(context.Background(), c.Principal.ID, true, c.ConnID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.Principal.ID).Msg("presence online update failed")
		}
	}

	h.broadcastGlobalExcept(&Event{Kind: EventUserOnline, UserID: c.Principal.ID}, c)
}

// RouteToRoom delivers an event to every connection subscribed to the
// group. A group with zero subscribers is not an error; the event is
// simply dropped and late joiners rely on persisted history.
func (h *Hub) RouteToRoom(groupID string, event *Event) {
	h.mu.RLock()
	room, ok := h.rooms[groupID]
	if ok {
		room.Broadcast(event)
	}
	h.mu.RUnlock()
}

// RouteExcludingSender is RouteToRoom minus the sender's own connection.
func (h *Hub) RouteExcludingSender(groupID string, event *Event, sender *Client) {
	h.mu.RLock()
	room, ok := h.rooms[groupID]
	if ok {
		room.BroadcastExcept(event, sender)
	}
	h.mu.RUnlock()
}

// BroadcastGlobal delivers an event to every connected client.
func (h *Hub) BroadcastGlobal(event *Event) {
	h.broadcastGlobalExcept(event, nil)
}

func (h *Hub) broadcastGlobalExcept(event *Event, skip *Client) {
	h.mu.RLock()
	for client := range h.clients {
		if client == skip {
			continue
		}
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
	h.mu.RUnlock()
}

// serveClient dispatches the client's commands until Commands is closed.
// Commands from one connection run in order; different connections run
// concurrently.
func (h *Hub) serveClient(c *Client) {
	for cmd := range c.Commands {
		h.dispatch(c, cmd)
	}
}

func (h *Hub) dispatch(c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandJoinGroups:
		h.JoinGroups(c, cmd.GroupIDs)
	case CommandSendMessage:
		h.handleSend(c, cmd)
	case CommandTyping:
		h.RouteExcludingSender(cmd.GroupID, &Event{
			Kind:    EventUserTyping,
			GroupID: cmd.GroupID,
			UserID:  c.Principal.ID,
		}, c)
	case CommandStopTyping:
		h.RouteExcludingSender(cmd.GroupID, &Event{
			Kind:    EventUserStopTyping,
			GroupID: cmd.GroupID,
			UserID:  c.Principal.ID,
		}, c)
	case CommandMarkSeen:
		h.handleSeen(c, cmd)
	}
}

// handleSend appends the message to the store, then fans it out. The
// append is the durability point: no fan-out happens if it fails, and the
// failure is reported to the sending connection only. There is no retry;
// resubmission is the client's call.
func (h *Hub) handleSend(c *Client, cmd *Command) {
	kind := cmd.ContentKind
	if kind == "" {
		kind = string(store.ContentKindText)
	}

	msg := &store.Message{
		GroupID:     cmd.GroupID,
		SenderID:    c.Principal.ID,
		Content:     cmd.Content,
		ContentKind: store.ContentKind(kind),
		CreatedAt:   time.Now().UTC(),
	}

	if h.store != nil {
		if err := h.store.SaveMessage(context.Background(), msg); err != nil {
			h.log.Error().Err(err).Str("group_id", cmd.GroupID).Msg("save message failed")
			h.sendError(c, coreError(ErrCodeStoreUnavailable, "failed to save message"))
			return
		}
	}

	h.RouteToRoom(cmd.GroupID, &Event{
		Kind:    EventNewMessage,
		GroupID: cmd.GroupID,
		Message: messageFromStored(msg),
	})
}

// handleSeen grows the message's seen set (idempotently) and notifies the
// group. An unknown message id is reported to the sender only.
func (h *Hub) handleSeen(c *Client, cmd *Command) {
	if h.store != nil {
		if _, err := h.store.AddSeen(context.Background(), cmd.MessageID, c.Principal.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.sendError(c, coreError(ErrCodeNotFound, "message not found"))
				return
			}
			h.log.Error().Err(err).Int64("message_id", cmd.MessageID).Msg("add seen failed")
			h.sendError(c, coreError(ErrCodeStoreUnavailable, "failed to update seen state"))
			return
		}
	}

	h.RouteToRoom(cmd.GroupID, &Event{
		Kind:      EventMessageSeen,
		GroupID:   cmd.GroupID,
		UserID:    c.Principal.ID,
		MessageID: cmd.MessageID,
	})
}

func (h *Hub) sendError(c *Client, err *CoreError) {
	select {
	case c.Events <- &Event{Kind: EventError, Error: err}:
	default:
	}
}

func messageFromStored(msg *store.Message) *Message {
	return &Message{
		ID:          msg.ID,
		GroupID:     msg.GroupID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		ContentKind: string(msg.ContentKind),
		CreatedAt:   msg.CreatedAt,
		SeenBy:      msg.SeenBy,
	}
}
