package chat

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"
)

// session is the registry entry for one live connection. mu serializes
// every event handled on behalf of the connection, including teardown.
type session struct {
	mu     sync.Mutex
	user   User
	conn   Conn
	closed bool
}

// Users is the connection registry. It maps connection ids to user
// profiles and their current room.
type Users struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewUsers creates an empty connection registry.
func NewUsers() *Users {
	return &Users{sessions: make(map[string]*session)}
}

// Register creates the user record for connID the first time the connection
// announces itself. Later calls return the existing record and false.
func (u *Users) Register(connID, name, avatar string, conn Conn) (User, bool) {
	u.mu.Lock()
	if s, ok := u.sessions[connID]; ok {
		u.mu.Unlock()
		return s.profile(), false
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = syntheticName()
	}
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		avatar = defaultAvatar(name)
	}

	s := &session{
		user: User{
			ID:       connID,
			Name:     name,
			Avatar:   avatar,
			Status:   StatusOnline,
			JoinedAt: time.Now().UTC(),
		},
		conn: conn,
	}
	u.sessions[connID] = s
	u.mu.Unlock()

	return s.user, true
}

// Lookup returns the user registered for connID.
func (u *Users) Lookup(connID string) (User, bool) {
	s := u.get(connID)
	if s == nil {
		return User{}, false
	}
	return s.profile(), true
}

// Unregister removes the record for connID. Removing an unknown id is a no-op.
func (u *Users) Unregister(connID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.sessions[connID]; !ok {
		return false
	}
	delete(u.sessions, connID)
	return true
}

// Count returns the number of registered users.
func (u *Users) Count() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.sessions)
}

func (u *Users) get(connID string) *session {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.sessions[connID]
}

func (s *session) profile() User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// syntheticName produces a display name for users that did not pick one.
// Names are not unique.
func syntheticName() string {
	return fmt.Sprintf("User%d", rand.IntN(10000))
}

func defaultAvatar(name string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(name)
}
