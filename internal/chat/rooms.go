package chat

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

type member struct {
	user User
	conn Conn
	seq  uint64
}

// storedMessage keeps reactions as a set of user ids per emoji.
type storedMessage struct {
	msg       Message
	reactions map[string]map[string]struct{}
}

// toggle adds userID under emoji, or removes it when already present.
// Emptied emoji keys are pruned. It reports whether the user was added.
func (m *storedMessage) toggle(emoji, userID string) bool {
	users, ok := m.reactions[emoji]
	if ok {
		if _, reacted := users[userID]; reacted {
			delete(users, userID)
			if len(users) == 0 {
				delete(m.reactions, emoji)
			}
			return false
		}
	} else {
		users = make(map[string]struct{})
		m.reactions[emoji] = users
	}
	users[userID] = struct{}{}
	return true
}

func (m *storedMessage) reactionMap() map[string][]string {
	out := make(map[string][]string, len(m.reactions))
	for emoji, users := range m.reactions {
		ids := make([]string, 0, len(users))
		for id := range users {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		out[emoji] = ids
	}
	return out
}

func (m *storedMessage) view() Message {
	msg := m.msg
	msg.Reactions = m.reactionMap()
	return msg
}

// Room holds the membership and bounded history of one catalog room.
// All state is guarded by mu; holding it across mutation and fan-out gives
// members a single order of events.
type Room struct {
	id          string
	name        string
	description string

	mu      sync.Mutex
	members map[string]*member
	joinSeq uint64
	history []*storedMessage
	index   map[string]*storedMessage
}

func newRoom(cfg RoomConfig) *Room {
	return &Room{
		id:          cfg.ID,
		name:        cfg.Name,
		description: cfg.Description,
		members:     make(map[string]*member),
		index:       make(map[string]*storedMessage),
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

func (r *Room) update(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *Room) info() RoomInfo {
	return RoomInfo{
		ID:          r.id,
		Name:        r.name,
		Description: r.description,
		UserCount:   len(r.members),
	}
}

func (r *Room) add(user User, conn Conn) {
	if m, ok := r.members[user.ID]; ok {
		m.user = user
		m.conn = conn
		return
	}
	r.joinSeq++
	r.members[user.ID] = &member{user: user, conn: conn, seq: r.joinSeq}
}

func (r *Room) remove(connID string) (*member, bool) {
	m, ok := r.members[connID]
	if ok {
		delete(r.members, connID)
	}
	return m, ok
}

// sortedMembers returns members in the order they joined the room.
func (r *Room) sortedMembers() []*member {
	out := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *member) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

func (r *Room) roster() []User {
	members := r.sortedMembers()
	users := make([]User, len(members))
	for i, m := range members {
		users[i] = m.user
	}
	return users
}

func (r *Room) append(msg Message) {
	sm := &storedMessage{msg: msg, reactions: make(map[string]map[string]struct{})}
	r.history = append(r.history, sm)
	r.index[msg.ID] = sm

	if over := len(r.history) - MaxHistory; over > 0 {
		for _, old := range r.history[:over] {
			delete(r.index, old.msg.ID)
		}
		n := copy(r.history, r.history[over:])
		clear(r.history[n:])
		r.history = r.history[:n]
	}
}

func (r *Room) recent(limit int) []Message {
	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	window := r.history[len(r.history)-limit:]
	out := make([]Message, len(window))
	for i, sm := range window {
		out[i] = sm.view()
	}
	return out
}

// Rooms is the room registry. The catalog is fixed at construction.
//
// moveMu serializes membership changes and guards current, which records
// the room each connection is in. It is taken before any room lock.
type Rooms struct {
	order []*Room
	byID  map[string]*Room

	moveMu  sync.Mutex
	current map[string]*Room
}

// leaveFunc and joinFunc run under the lock of the room whose membership
// changed, after the change has been applied.
type (
	leaveFunc func(room *Room, left User)
	joinFunc  func(room *Room, joined User)
)

// NewRooms builds the registry from a static catalog. Duplicate or empty
// ids are rejected.
func NewRooms(catalog []RoomConfig) (*Rooms, error) {
	rs := &Rooms{
		byID:    make(map[string]*Room, len(catalog)),
		current: make(map[string]*Room),
	}
	for _, cfg := range catalog {
		if cfg.ID == "" {
			return nil, fmt.Errorf("room %q: empty id", cfg.Name)
		}
		if _, dup := rs.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("room %q: duplicate id", cfg.ID)
		}
		if cfg.Name == "" {
			cfg.Name = cfg.ID
		}
		room := newRoom(cfg)
		rs.order = append(rs.order, room)
		rs.byID[cfg.ID] = room
	}
	return rs, nil
}

// Get returns the room with the given id.
func (rs *Rooms) Get(roomID string) (*Room, error) {
	room, ok := rs.byID[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return room, nil
}

// Len returns the number of rooms in the catalog.
func (rs *Rooms) Len() int { return len(rs.order) }

// Snapshot lists the catalog with current member counts.
func (rs *Rooms) Snapshot() []RoomInfo {
	out := make([]RoomInfo, 0, len(rs.order))
	for _, room := range rs.order {
		room.mu.Lock()
		out = append(out, room.info())
		room.mu.Unlock()
	}
	return out
}

// Current returns the id of the room user connID is a member of.
func (rs *Rooms) Current(connID string) (string, bool) {
	rs.moveMu.Lock()
	defer rs.moveMu.Unlock()
	room, ok := rs.current[connID]
	if !ok {
		return "", false
	}
	return room.id, true
}

// Join adds user to the room's member set. A membership in another room is
// removed first, so a connection is never a member of two rooms. Joining
// the current room again refreshes the member record.
func (rs *Rooms) Join(roomID string, user User, conn Conn) error {
	return rs.join(roomID, user, conn, nil, nil)
}

func (rs *Rooms) join(roomID string, user User, conn Conn, onLeave leaveFunc, onJoin joinFunc) error {
	room, err := rs.Get(roomID)
	if err != nil {
		return err
	}

	rs.moveMu.Lock()
	defer rs.moveMu.Unlock()

	if prev, ok := rs.current[user.ID]; ok && prev != room {
		rs.removeLocked(prev, user.ID, onLeave)
	}
	rs.current[user.ID] = room
	room.update(func() {
		room.add(user, conn)
		if onJoin != nil {
			onJoin(room, user)
		}
	})
	return nil
}

// Leave removes connID from the room. It is a no-op for non-members.
func (rs *Rooms) Leave(roomID, connID string) {
	rs.leave(roomID, connID, nil)
}

// leave reports whether connID was a member of roomID.
func (rs *Rooms) leave(roomID, connID string, onLeave leaveFunc) bool {
	room, err := rs.Get(roomID)
	if err != nil {
		return false
	}

	rs.moveMu.Lock()
	defer rs.moveMu.Unlock()

	if rs.current[connID] != room {
		return false
	}
	return rs.removeLocked(room, connID, onLeave)
}

// removeLocked drops connID from room. moveMu must be held.
func (rs *Rooms) removeLocked(room *Room, connID string, onLeave leaveFunc) bool {
	delete(rs.current, connID)

	var removed bool
	room.update(func() {
		m, ok := room.remove(connID)
		if !ok {
			return
		}
		removed = true
		if onLeave != nil {
			onLeave(room, m.user)
		}
	})
	return removed
}

// AppendMessage stores msg, evicting the oldest entries beyond MaxHistory.
func (rs *Rooms) AppendMessage(roomID string, msg Message) error {
	room, err := rs.Get(roomID)
	if err != nil {
		return err
	}
	room.update(func() { room.append(msg) })
	return nil
}

// RecentHistory returns the last limit messages in send order. A limit of
// zero or less returns the whole retained window.
func (rs *Rooms) RecentHistory(roomID string, limit int) ([]Message, error) {
	room, err := rs.Get(roomID)
	if err != nil {
		return nil, err
	}
	var out []Message
	room.update(func() { out = room.recent(limit) })
	return out, nil
}

// Members returns the roster of the room in join order.
func (rs *Rooms) Members(roomID string) ([]User, error) {
	room, err := rs.Get(roomID)
	if err != nil {
		return nil, err
	}
	var out []User
	room.update(func() { out = room.roster() })
	return out, nil
}
