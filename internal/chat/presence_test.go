package chat

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRoomSequence(t *testing.T) {
	e := newTestEngine(t)
	a := connect(t, e, "a", "alice")
	b := connect(t, e, "b", "bob")
	e.JoinRoom("a", "general")
	e.SendMessage("a", "before bob")
	a.reset()

	e.JoinRoom("b", "general")

	bEvents := b.all()
	require.Len(t, bEvents, 2)
	assert.Equal(t, EventJoinedRoom, bEvents[0].Type)
	joined := bEvents[0].Data.(JoinedRoom)
	assert.Equal(t, "general", joined.Room.ID)
	assert.Equal(t, 2, joined.Room.UserCount)
	require.Len(t, joined.Messages, 1)
	assert.Equal(t, "before bob", joined.Messages[0].Text)
	assert.Equal(t, EventRoomUsers, bEvents[1].Type)
	assert.Equal(t, []string{"a", "b"}, rosterIDs(t, bEvents[1]))

	aEvents := a.all()
	require.Len(t, aEvents, 2)
	assert.Equal(t, EventUserJoined, aEvents[0].Type)
	delta := aEvents[0].Data.(MemberDelta)
	assert.Equal(t, "b", delta.User.ID)
	assert.Equal(t, "general", delta.User.Room)
	assert.Equal(t, 2, delta.MemberCount)
	assert.Equal(t, EventRoomUsers, aEvents[1].Type)
	assert.Equal(t, []string{"a", "b"}, rosterIDs(t, aEvents[1]))

	u, ok := e.Users().Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "general", u.Room)
}

func TestJoinRoomBackfillIsBounded(t *testing.T) {
	e := newTestEngine(t)
	connect(t, e, "a", "alice")
	b := connect(t, e, "b", "bob")
	e.JoinRoom("a", "general")
	for i := 0; i < MaxHistory; i++ {
		e.SendMessage("a", fmt.Sprint(i))
	}

	e.JoinRoom("b", "general")

	joined := b.ofType(EventJoinedRoom)
	require.Len(t, joined, 1)
	msgs := joined[0].Data.(JoinedRoom).Messages
	require.Len(t, msgs, BackfillLimit)
	assert.Equal(t, fmt.Sprint(MaxHistory-BackfillLimit), msgs[0].Text)
	assert.Equal(t, fmt.Sprint(MaxHistory-1), msgs[BackfillLimit-1].Text)
}

func TestJoinUnknownRoomIsSilent(t *testing.T) {
	e := newTestEngine(t)
	a := connect(t, e, "a", "alice")
	e.JoinRoom("a", "general")
	a.reset()

	e.JoinRoom("a", "does-not-exist")

	assert.Empty(t, a.all())
	u, _ := e.Users().Lookup("a")
	assert.Equal(t, "general", u.Room, "failed join must not leave the current room")

	e.JoinRoom("ghost", "general")
	members, err := e.Rooms().Members("general")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestJoinSameRoomResendsStateToJoinerOnly(t *testing.T) {
	e := newTestEngine(t)
	a := connect(t, e, "a", "alice")
	b := connect(t, e, "b", "bob")
	e.JoinRoom("a", "general")
	e.JoinRoom("b", "general")
	a.reset()
	b.reset()

	e.JoinRoom("a", "general")

	types := make([]string, 0)
	for _, ev := range a.all() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventJoinedRoom, EventRoomUsers}, types)
	assert.Empty(t, b.all())
}

func TestSwitchRoomsLeavesPreviousRoom(t *testing.T) {
	e := newTestEngine(t)
	a := connect(t, e, "a", "alice")
	b := connect(t, e, "b", "bob")
	e.JoinRoom("a", "general")
	e.JoinRoom("b", "general")
	b.reset()

	e.JoinRoom("a", "tech")

	left := b.ofType(EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "a", left[0].Data.(MemberDelta).User.ID)
	assert.Equal(t, 1, left[0].Data.(MemberDelta).MemberCount)
	rosters := b.ofType(EventRoomUsers)
	require.Len(t, rosters, 1)
	assert.Equal(t, []string{"b"}, rosterIDs(t, rosters[0]))

	general, _ := e.Rooms().Members("general")
	tech, _ := e.Rooms().Members("tech")
	assert.Len(t, general, 1)
	require.Len(t, tech, 1)
	assert.Equal(t, "tech", tech[0].Room)

	assert.NotEmpty(t, a.ofType(EventJoinedRoom))
}

func TestLeaveRoom(t *testing.T) {
	e := newTestEngine(t)
	a := connect(t, e, "a", "alice")
	b := connect(t, e, "b", "bob")
	e.JoinRoom("a", "random")
	e.JoinRoom("b", "random")
	a.reset()
	b.reset()

	e.LeaveRoom("a")
	e.LeaveRoom("a")

	assert.Len(t, b.ofType(EventUserLeft), 1)
	assert.Empty(t, a.all())
	u, _ := e.Users().Lookup("a")
	assert.Empty(t, u.Room)

	e.SendMessage("a", "after leaving")
	assert.Empty(t, b.ofType(EventNewMessage))
}

func TestDisconnectNotifiesRemainingMember(t *testing.T) {
	obs := &countingObserver{}
	e := newTestEngine(t, WithObserver(obs))
	connect(t, e, "a", "alice")
	b := connect(t, e, "b", "bob")
	e.JoinRoom("a", "tech")
	e.JoinRoom("b", "tech")
	b.reset()

	e.Disconnect("a")
	e.Disconnect("a")

	events := b.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventUserLeft, events[0].Type)
	assert.Equal(t, EventRoomUsers, events[1].Type)
	assert.Equal(t, []string{"b"}, rosterIDs(t, events[1]))

	_, ok := e.Users().Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 1, obs.gone)
	assert.Equal(t, 1, e.Stats().Rooms["tech"].Users)
}

func TestDisconnectWithoutRoom(t *testing.T) {
	e := newTestEngine(t)
	connect(t, e, "a", "alice")

	e.Disconnect("a")
	e.Disconnect("never-registered")

	assert.Zero(t, e.Users().Count())
}

func TestDisconnectRacingWithEvents(t *testing.T) {
	for round := 0; round < 20; round++ {
		e := newTestEngine(t)
		connect(t, e, "a", "alice")
		watcher := connect(t, e, "w", "watcher")
		e.JoinRoom("a", "general")
		e.JoinRoom("w", "general")

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				e.SendMessage("a", fmt.Sprint(i))
				e.StartTyping("a")
			}
		}()
		go func() {
			defer wg.Done()
			e.JoinRoom("a", "tech")
			e.JoinRoom("a", "general")
		}()
		go func() {
			defer wg.Done()
			e.Disconnect("a")
		}()
		wg.Wait()

		st := e.Stats()
		assert.Equal(t, 1, st.TotalUsers)
		for id, rs := range st.Rooms {
			want := 0
			if id == "general" {
				want = 1
			}
			assert.Equal(t, want, rs.Users, "room %s", id)
		}

		rosters := watcher.ofType(EventRoomUsers)
		require.NotEmpty(t, rosters)
		assert.Equal(t, []string{"w"}, rosterIDs(t, rosters[len(rosters)-1]))
	}
}

func TestMembershipAndRosterNeverDrift(t *testing.T) {
	e := newTestEngine(t)
	rng := rand.New(rand.NewPCG(1, 2))
	rooms := []string{"general", "tech", "random", "gaming"}

	recs := make(map[string]*recorder)
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
		recs[ids[i]] = connect(t, e, ids[i], ids[i])
	}

	for step := 0; step < 300; step++ {
		id := ids[rng.IntN(len(ids))]
		if rng.IntN(4) == 0 {
			e.LeaveRoom(id)
		} else {
			e.JoinRoom(id, rooms[rng.IntN(len(rooms))])
		}

		memberships := 0
		for _, room := range rooms {
			members, err := e.Rooms().Members(room)
			require.NoError(t, err)
			for _, m := range members {
				if m.ID == id {
					memberships++
				}
			}
		}
		assert.LessOrEqual(t, memberships, 1, "user %s is in %d rooms", id, memberships)

		user, ok := e.Users().Lookup(id)
		require.True(t, ok)
		current, inRoom := e.Rooms().Current(id)
		assert.Equal(t, user.Room, current, "registry and session disagree for %s", id)
		assert.Equal(t, user.Room != "", inRoom)
	}

	for _, room := range rooms {
		members, err := e.Rooms().Members(room)
		require.NoError(t, err)
		want := make([]string, len(members))
		for i, m := range members {
			want[i] = m.ID
		}

		for _, id := range want {
			rosters := recs[id].ofType(EventRoomUsers)
			require.NotEmpty(t, rosters)
			got := rosterIDs(t, rosters[len(rosters)-1])
			assert.True(t, slices.Equal(want, got), "roster of %s seen by %s: got %v want %v", room, id, got, want)
		}
	}
}
