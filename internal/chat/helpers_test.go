package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder is a Conn that keeps every delivered event.
type recorder struct {
	mu     sync.Mutex
	events []Event
	full   bool
}

func (r *recorder) Deliver(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) ofType(typ string) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type countingObserver struct {
	mu        sync.Mutex
	connected int
	gone      int
	stored    int
	reactions int
	dropped   int
}

func (o *countingObserver) UserConnected()            { o.inc(&o.connected) }
func (o *countingObserver) UserDisconnected()         { o.inc(&o.gone) }
func (o *countingObserver) MessageStored(_, _ string) { o.inc(&o.stored) }
func (o *countingObserver) ReactionToggled(_ string)  { o.inc(&o.reactions) }
func (o *countingObserver) DeliveryDropped(_ string)  { o.inc(&o.dropped) }

func (o *countingObserver) inc(n *int) {
	o.mu.Lock()
	*n++
	o.mu.Unlock()
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(nil, opts...)
	require.NoError(t, err)
	return e
}

// connect registers a user and clears the join-chat replies.
func connect(t *testing.T, e *Engine, id, name string) *recorder {
	t.Helper()
	rec := &recorder{}
	e.JoinChat(id, name, "", rec)
	rec.reset()
	return rec
}

func lastMessage(t *testing.T, rec *recorder) Message {
	t.Helper()
	msgs := rec.ofType(EventNewMessage)
	require.NotEmpty(t, msgs)
	msg, ok := msgs[len(msgs)-1].Data.(Message)
	require.True(t, ok)
	return msg
}

func rosterIDs(t *testing.T, ev Event) []string {
	t.Helper()
	roster, ok := ev.Data.(Roster)
	require.True(t, ok)
	ids := make([]string, len(roster.Users))
	for i, u := range roster.Users {
		ids[i] = u.ID
	}
	return ids
}
