package server

import (
	"encoding/json"
	"strings"
)

// Inbound event types sent by clients.
const (
	EventJoinChat     = "join-chat"
	EventGetRooms     = "get-rooms"
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventSendMessage  = "send-message"
	EventTypingStart  = "typing-start"
	EventTypingStop   = "typing-stop"
	EventReactMessage = "react-message"
	EventUploadFile   = "upload-file"
	EventGetRoomUsers = "get-room-users"
)

// Envelope is the JSON frame format in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type joinChatPayload struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// sendMessagePayload carries free text only. A "type" field sent by the
// client is ignored; attachments go through upload-file.
type sendMessagePayload struct {
	Text string `json:"text"`
}

type reactPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type uploadFilePayload struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
