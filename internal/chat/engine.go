package chat

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Engine applies client events to registry state and fans the resulting
// events out to room members.
//
// Events for one connection are serialized by its session lock. Events for
// one room are serialized by the room lock, which is held while state is
// mutated and while the outbound events are queued, so every member
// observes the same order. Membership moves also take the registry's
// membership lock. Lock order is session, membership, room.
type Engine struct {
	users *Users
	rooms *Rooms
	log   *slog.Logger
	obs   Observer
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithObserver registers an observer for engine activity.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

// NewEngine creates an engine over the given room catalog. An empty catalog
// falls back to DefaultRooms.
func NewEngine(catalog []RoomConfig, opts ...Option) (*Engine, error) {
	if len(catalog) == 0 {
		catalog = DefaultRooms()
	}
	rooms, err := NewRooms(catalog)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		users: NewUsers(),
		rooms: rooms,
		log:   slog.New(slog.DiscardHandler),
		obs:   nopObserver{},
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Users exposes the connection registry.
func (e *Engine) Users() *Users { return e.users }

// Rooms exposes the room registry.
func (e *Engine) Rooms() *Rooms { return e.rooms }

// JoinChat registers the connection and replies with its profile and the
// room catalog.
func (e *Engine) JoinChat(connID, name, avatar string, conn Conn) User {
	user, created := e.users.Register(connID, name, avatar, conn)
	if created {
		e.obs.UserConnected()
		e.log.Info("user registered", "conn", connID, "name", user.Name)
	}
	e.deliver(conn, Event{Type: EventUserProfile, Data: user})
	e.deliver(conn, Event{Type: EventRoomsList, Data: e.rooms.Snapshot()})
	return user
}

// SendRooms replies to conn with the current room catalog. It does not
// require the connection to be registered.
func (e *Engine) SendRooms(conn Conn) {
	e.deliver(conn, Event{Type: EventRoomsList, Data: e.rooms.Snapshot()})
}

// SendMessage stores a text message in the sender's room and delivers it to
// every member, the sender included. File messages only come from
// UploadFile, so they always carry their metadata.
func (e *Engine) SendMessage(connID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	e.post(connID, Message{Text: text, Type: MessageText})
}

// UploadFile stores a file message in the sender's room and delivers it to
// every member.
func (e *Engine) UploadFile(connID string, file FileInfo) {
	if strings.TrimSpace(file.Name) == "" {
		return
	}
	e.post(connID, Message{Text: file.Name, Type: MessageFile, File: &file})
}

func (e *Engine) post(connID string, msg Message) {
	e.withRoom(connID, func(s *session, room *Room) {
		id, err := uuid.NewV7()
		if err != nil {
			e.log.Error("message id", "conn", connID, "err", err)
			return
		}
		msg.ID = id.String()
		msg.RoomID = room.id
		msg.User = Author{ID: s.user.ID, Name: s.user.Name, Avatar: s.user.Avatar}
		msg.Timestamp = e.now()

		room.append(msg)
		e.obs.MessageStored(room.id, msg.Type)

		stored := room.index[msg.ID].view()
		e.broadcast(room, Event{Type: EventNewMessage, Data: stored}, "")
	})
}

// StartTyping tells the other members of the sender's room that the sender
// is typing.
func (e *Engine) StartTyping(connID string) {
	e.typing(connID, EventUserTyping)
}

// StopTyping clears the typing indicator for the sender.
func (e *Engine) StopTyping(connID string) {
	e.typing(connID, EventUserStopTyping)
}

func (e *Engine) typing(connID, eventType string) {
	e.withRoom(connID, func(s *session, room *Room) {
		ev := Event{Type: eventType, Data: Typing{UserID: s.user.ID, Name: s.user.Name}}
		e.broadcast(room, ev, s.user.ID)
	})
}

// React toggles emoji for the sender on a message in the current history
// window and delivers the updated reaction map to every member. Messages
// that fell out of the window are ignored.
func (e *Engine) React(connID, messageID, emoji string) {
	if messageID == "" || emoji == "" {
		return
	}
	e.withRoom(connID, func(s *session, room *Room) {
		sm, ok := room.index[messageID]
		if !ok {
			e.log.Debug("reaction to unknown message", "conn", connID, "room", room.id, "message", messageID)
			return
		}
		sm.toggle(emoji, s.user.ID)
		e.obs.ReactionToggled(room.id)

		update := ReactionUpdate{MessageID: messageID, Reactions: sm.reactionMap()}
		e.broadcast(room, Event{Type: EventReactionUpdated, Data: update}, "")
	})
}

// RoomUsers replies to the caller with the roster of its current room.
func (e *Engine) RoomUsers(connID string) {
	e.withRoom(connID, func(s *session, room *Room) {
		e.deliver(s.conn, Event{Type: EventRoomUsers, Data: Roster{RoomID: room.id, Users: room.roster()}})
	})
}

// withRoom runs fn with the caller's session and room locked. Callers that
// are unregistered, closed or outside any room are ignored.
func (e *Engine) withRoom(connID string, fn func(s *session, room *Room)) {
	s := e.users.get(connID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.user.Room == "" {
		return
	}
	room, err := e.rooms.Get(s.user.Room)
	if err != nil {
		return
	}
	room.update(func() { fn(s, room) })
}

// broadcast delivers ev to every member of room except the member with id
// except. The room lock must be held.
func (e *Engine) broadcast(room *Room, ev Event, except string) {
	for _, m := range room.sortedMembers() {
		if m.user.ID == except {
			continue
		}
		e.deliver(m.conn, ev)
	}
}

func (e *Engine) deliver(conn Conn, ev Event) {
	if conn == nil {
		return
	}
	if !conn.Deliver(ev) {
		e.obs.DeliveryDropped(ev.Type)
		e.log.Warn("event dropped", "type", ev.Type)
	}
}

// RoomStats is the per-room part of Stats.
type RoomStats struct {
	Users    int `json:"users"`
	Messages int `json:"messages"`
}

// Stats is an aggregate, read-only view of the engine state.
type Stats struct {
	TotalUsers    int                  `json:"totalUsers"`
	TotalRooms    int                  `json:"totalRooms"`
	TotalMessages int                  `json:"totalMessages"`
	Rooms         map[string]RoomStats `json:"rooms"`
}

// Stats reports connected users and per-room counts.
func (e *Engine) Stats() Stats {
	st := Stats{
		TotalUsers: e.users.Count(),
		TotalRooms: e.rooms.Len(),
		Rooms:      make(map[string]RoomStats, e.rooms.Len()),
	}
	for _, room := range e.rooms.order {
		room.update(func() {
			rs := RoomStats{Users: len(room.members), Messages: len(room.history)}
			st.Rooms[room.id] = rs
			st.TotalMessages += rs.Messages
		})
	}
	return st
}

func isRoomNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound)
}
