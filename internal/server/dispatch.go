package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/roomchat/internal/chat"
)

var errUnknownEvent = errors.New("unknown event type")

// dispatch decodes one inbound frame and applies it to the chat engine.
// Requests the engine declines (unknown room, no room, stale message) are
// not errors; only undecodable frames are.
func (s *Server) dispatch(c *Client, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case EventJoinChat:
		var p joinChatPayload
		if err := decodeData(env, &p); err != nil {
			return err
		}
		s.engine.JoinChat(c.id, p.Name, p.Avatar, c)

	case EventGetRooms:
		s.engine.SendRooms(c)

	case EventJoinRoom:
		var p joinRoomPayload
		if err := decodeData(env, &p); err != nil {
			return err
		}
		s.engine.JoinRoom(c.id, p.RoomID)

	case EventLeaveRoom:
		s.engine.LeaveRoom(c.id)

	case EventSendMessage:
		var p sendMessagePayload
		if err := decodeData(env, &p); err != nil {
			return err
		}
		s.engine.SendMessage(c.id, p.Text)

	case EventTypingStart:
		s.engine.StartTyping(c.id)

	case EventTypingStop:
		s.engine.StopTyping(c.id)

	case EventReactMessage:
		var p reactPayload
		if err := decodeData(env, &p); err != nil {
			return err
		}
		s.engine.React(c.id, p.MessageID, p.Emoji)

	case EventUploadFile:
		var p uploadFilePayload
		if err := decodeData(env, &p); err != nil {
			return err
		}
		s.engine.UploadFile(c.id, chat.FileInfo{
			Name:     p.Name,
			Size:     p.Size,
			MimeType: p.MimeType,
			URL:      p.URL,
		})

	case EventGetRoomUsers:
		s.engine.RoomUsers(c.id)

	default:
		return fmt.Errorf("%w: %q", errUnknownEvent, env.Type)
	}
	return nil
}

// decodeData unmarshals the envelope payload into v. A missing payload
// leaves v at its zero value.
func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
