// Package chat implements the room-based chat core: connection registry,
// room registry, broadcast engine and presence coordination.
//
// The package is transport independent. Connections are represented by the
// Conn interface, and every outbound event is delivered through it as an
// Event value that the transport encodes for the wire.
package chat

import (
	"errors"
	"time"
)

// Outbound event types.
const (
	EventUserProfile     = "user-profile"
	EventRoomsList       = "rooms-list"
	EventJoinedRoom      = "joined-room"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventRoomUsers       = "room-users"
	EventNewMessage      = "new-message"
	EventReactionUpdated = "reaction-updated"
	EventUserTyping      = "user-typing"
	EventUserStopTyping  = "user-stop-typing"
)

// Message types.
const (
	MessageText = "text"
	MessageFile = "file"
)

// StatusOnline is the only status a registered user can have.
const StatusOnline = "online"

const (
	// MaxHistory is the number of messages each room retains.
	MaxHistory = 100
	// BackfillLimit is the number of messages sent to a client that joins a room.
	BackfillLimit = 50
)

// ErrRoomNotFound is returned by the room registry for ids outside the catalog.
var ErrRoomNotFound = errors.New("room not found")

// Event is a single outbound event addressed to one connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Conn is the delivery side of a connection. Deliver must not block; it
// reports false when the event could not be queued.
type Conn interface {
	Deliver(ev Event) bool
}

// User is the public profile of a connected user.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Room     string    `json:"room,omitempty"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Author is the snapshot of a user stored with each message.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// FileInfo describes an attachment carried by a file message.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
}

// Message is a stored chat message as seen by clients.
type Message struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"roomId"`
	Text      string              `json:"text"`
	User      Author              `json:"user"`
	Timestamp time.Time           `json:"timestamp"`
	Type      string              `json:"type"`
	File      *FileInfo           `json:"file,omitempty"`
	Reactions map[string][]string `json:"reactions"`
}

// RoomInfo is a catalog entry used for discovery.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UserCount   int    `json:"userCount"`
}

// RoomConfig defines one room of the static catalog.
type RoomConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultRooms is the catalog used when none is configured.
func DefaultRooms() []RoomConfig {
	return []RoomConfig{
		{ID: "general", Name: "General", Description: "General discussion for everyone"},
		{ID: "tech", Name: "Tech Talk", Description: "Programming, gadgets and technology"},
		{ID: "random", Name: "Random", Description: "Anything goes"},
		{ID: "gaming", Name: "Gaming", Description: "Games and gaming culture"},
	}
}

// JoinedRoom is the payload of EventJoinedRoom.
type JoinedRoom struct {
	Room     RoomInfo  `json:"room"`
	Messages []Message `json:"messages"`
}

// MemberDelta is the payload of EventUserJoined and EventUserLeft.
type MemberDelta struct {
	User        User `json:"user"`
	MemberCount int  `json:"memberCount"`
}

// Roster is the payload of EventRoomUsers.
type Roster struct {
	RoomID string `json:"roomId"`
	Users  []User `json:"users"`
}

// ReactionUpdate is the payload of EventReactionUpdated.
type ReactionUpdate struct {
	MessageID string              `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
}

// Typing is the payload of EventUserTyping and EventUserStopTyping.
type Typing struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Observer receives notifications about engine activity. Implementations
// must be safe for concurrent use.
type Observer interface {
	UserConnected()
	UserDisconnected()
	MessageStored(roomID, msgType string)
	ReactionToggled(roomID string)
	DeliveryDropped(eventType string)
}

type nopObserver struct{}

func (nopObserver) UserConnected()            {}
func (nopObserver) UserDisconnected()         {}
func (nopObserver) MessageStored(_, _ string) {}
func (nopObserver) ReactionToggled(_ string)  {}
func (nopObserver) DeliveryDropped(_ string)  {}
