package chat

// JoinRoom moves the connection into roomID. The room registry releases a
// membership in another room first, so membership is never held in two
// rooms. Unknown rooms and unregistered connections are ignored.
//
// The joiner receives the recent history privately, the other members get
// a user-joined delta, then everyone in the room receives the full roster.
func (e *Engine) JoinRoom(connID, roomID string) {
	s := e.users.get(connID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.user.Room == roomID {
		e.resendRoom(s)
		return
	}

	prev := s.user.Room
	user := s.user
	user.Room = roomID

	err := e.rooms.join(roomID, user, s.conn, e.announceLeave, func(room *Room, joined User) {
		e.deliver(s.conn, Event{Type: EventJoinedRoom, Data: JoinedRoom{
			Room:     room.info(),
			Messages: room.recent(BackfillLimit),
		}})
		e.broadcast(room, Event{Type: EventUserJoined, Data: MemberDelta{User: joined, MemberCount: len(room.members)}}, joined.ID)
		e.broadcast(room, Event{Type: EventRoomUsers, Data: Roster{RoomID: room.id, Users: room.roster()}}, "")
	})
	if err != nil {
		if isRoomNotFound(err) {
			e.log.Debug("join to unknown room", "conn", connID, "room", roomID)
		}
		return
	}

	s.user = user
	if prev != "" {
		e.log.Info("user left room", "conn", connID, "room", prev)
	}
	e.log.Info("user joined room", "conn", connID, "room", roomID)
}

// resendRoom replays joined-room and the roster to a user that asked to
// join the room it is already in. The session lock must be held.
func (e *Engine) resendRoom(s *session) {
	room, err := e.rooms.Get(s.user.Room)
	if err != nil {
		return
	}
	room.update(func() {
		e.deliver(s.conn, Event{Type: EventJoinedRoom, Data: JoinedRoom{
			Room:     room.info(),
			Messages: room.recent(BackfillLimit),
		}})
		e.deliver(s.conn, Event{Type: EventRoomUsers, Data: Roster{RoomID: room.id, Users: room.roster()}})
	})
}

// LeaveRoom takes the connection out of its current room.
func (e *Engine) LeaveRoom(connID string) {
	s := e.users.get(connID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e.leaveLocked(s)
}

// Disconnect tears the connection down: room membership is released, the
// remaining members are notified, then the registry entry is removed.
// Repeated calls are no-ops.
func (e *Engine) Disconnect(connID string) {
	s := e.users.get(connID)
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	e.leaveLocked(s)
	s.closed = true
	s.mu.Unlock()

	if e.users.Unregister(connID) {
		e.obs.UserDisconnected()
		e.log.Info("user disconnected", "conn", connID)
	}
}

// leaveLocked removes the session from its room. The session lock must be
// held.
func (e *Engine) leaveLocked(s *session) {
	roomID := s.user.Room
	if roomID == "" {
		return
	}
	s.user.Room = ""

	if e.rooms.leave(roomID, s.user.ID, e.announceLeave) {
		e.log.Info("user left room", "conn", s.user.ID, "room", roomID)
	}
}

// announceLeave tells the remaining members who left, then sends the new
// roster. It runs under the room lock.
func (e *Engine) announceLeave(room *Room, left User) {
	e.broadcast(room, Event{Type: EventUserLeft, Data: MemberDelta{User: left, MemberCount: len(room.members)}}, "")
	e.broadcast(room, Event{Type: EventRoomUsers, Data: Roster{RoomID: room.id, Users: room.roster()}}, "")
}
