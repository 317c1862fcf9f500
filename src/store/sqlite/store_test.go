package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/src/store"
	"github.com/harborchat/harbor/src/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, username string) store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, username+"@example.com", "hash")
	require.NoError(t, err)
	return u
}

// befriend runs the full request/accept flow and returns the pair's private
// room.
func befriend(t *testing.T, s *Store, a, b store.User) store.ChatRoom {
	t.Helper()
	ctx := context.Background()
	fr, err := s.CreateFriendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, s.RespondFriendRequest(ctx, fr.ID, b.ID, true))
	room, err := s.PrivateRoom(ctx, a.ID, b.ID)
	require.NoError(t, err)
	return room
}

func TestCreateUserAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := createUser(t, s, "alice")
	assert.NotZero(t, u.ID)

	byName, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	_, err = s.CreateUser(ctx, "alice", "other@example.com", "hash")
	assert.ErrorIs(t, err, store.ErrUsernameTaken)

	_, err = s.UserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestFriendRequestFlow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	_, err := s.CreateFriendRequest(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, store.ErrSelfRequest)

	fr, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// Duplicate requests in either direction are rejected.
	_, err = s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, store.ErrRequestExists)
	_, err = s.CreateFriendRequest(ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, store.ErrRequestExists)

	received, sent, err := s.PendingRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "alice", received[0].SenderName)
	assert.Empty(t, sent)

	require.NoError(t, s.RespondFriendRequest(ctx, fr.ID, bob.ID, true))

	friends, err := s.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, friends)

	// Accepting created the pair's private room.
	roomList, err := s.RoomsForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, roomList, 1)
	assert.Equal(t, store.RoomTypePrivate, roomList[0].Type)

	_, err = s.CreateFriendRequest(ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, store.ErrAlreadyFriends)
}

func TestRespondRequiresReceiver(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	fr, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// Only the receiver can respond.
	err = s.RespondFriendRequest(ctx, fr.ID, alice.ID, true)
	assert.ErrorIs(t, err, store.ErrRequestNotFound)
}

func TestPrivateRoomGetOrCreate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	carol := createUser(t, s, "carol")

	room := befriend(t, s, alice, bob)

	again, err := s.PrivateRoom(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID, "same pair must get the same room")

	_, err = s.PrivateRoom(ctx, alice.ID, carol.ID)
	assert.ErrorIs(t, err, store.ErrNotFriends)
}

func TestLookupKinds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	open, err := s.CreateAnonymousRoom(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Anonymous Chat", open.Name)

	closed := befriend(t, s, alice, bob)

	room, err := s.Lookup(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoomOpen, room.Kind)
	assert.Empty(t, room.Participants)

	room, err = s.Lookup(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoomClosed, room.Kind)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID}, room.Participants)

	_, err = s.Lookup(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestGroupRoomParticipants(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	group, err := s.CreateGroupRoom(ctx, "backyard", alice.ID)
	require.NoError(t, err)

	require.NoError(t, s.AddParticipant(ctx, group.ID, bob.ID))
	require.NoError(t, s.AddParticipant(ctx, group.ID, bob.ID), "adding twice is idempotent")

	room, err := s.Lookup(ctx, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID}, room.Participants)
}

func TestPersistMessageClosedRoomRules(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	eve := createUser(t, s, "eve")
	room := befriend(t, s, alice, bob)

	msg, err := s.PersistMessage(ctx, room.ID, types.Authenticated(alice.ID, "alice"), "hello", "")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, "alice", msg.SenderName)
	require.NotNil(t, msg.SenderID)
	assert.Equal(t, alice.ID, *msg.SenderID)

	_, err = s.PersistMessage(ctx, room.ID, types.Authenticated(eve.ID, "eve"), "intruding", "")
	assert.ErrorIs(t, err, store.ErrNotParticipant)

	_, err = s.PersistMessage(ctx, room.ID, types.Anonymous("ghost"), "boo", "ghost")
	assert.ErrorIs(t, err, store.ErrNotParticipant)
}

func TestPersistMessageOpenRoom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	room, err := s.CreateAnonymousRoom(ctx, "lobby")
	require.NoError(t, err)

	msg, err := s.PersistMessage(ctx, room.ID, types.Anonymous(""), "hi there", "mystery")
	require.NoError(t, err)
	assert.Equal(t, "mystery", msg.AnonymousName)
	assert.Nil(t, msg.SenderID)

	// An authenticated sender in an open room keeps their user id on record.
	alice := createUser(t, s, "alice")
	msg, err = s.PersistMessage(ctx, room.ID, types.Authenticated(alice.ID, "alice"), "me too", "")
	require.NoError(t, err)
	require.NotNil(t, msg.SenderID)
	assert.Equal(t, "alice", msg.SenderName)

	_, err = s.PersistMessage(ctx, room.ID, types.Anonymous(""), "   ", "")
	assert.Error(t, err, "blank content is rejected")

	_, err = s.PersistMessage(ctx, 9999, types.Anonymous(""), "hi", "")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestMessageHistoryOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	room, err := s.CreateAnonymousRoom(ctx, "lobby")
	require.NoError(t, err)

	for _, content := range []string{"first", "second", "third"} {
		_, err := s.PersistMessage(ctx, room.ID, types.Anonymous("a"), content, "a")
		require.NoError(t, err)
	}

	history, err := s.Messages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "third", history[2].Content)

	_, err = s.Messages(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestSearchUsersStatuses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob_friend")
	carl := createUser(t, s, "carl_pending")
	dana := createUser(t, s, "dana_incoming")
	createUser(t, s, "erin_stranger")

	befriend(t, s, alice, bob)
	_, err := s.CreateFriendRequest(ctx, alice.ID, carl.ID)
	require.NoError(t, err)
	_, err = s.CreateFriendRequest(ctx, dana.ID, alice.ID)
	require.NoError(t, err)

	results, err := s.SearchUsers(ctx, alice.ID, "example.com")
	require.NoError(t, err)

	statuses := map[string]string{}
	for _, r := range results {
		statuses[r.Username] = r.FriendshipStatus
	}
	assert.Equal(t, store.StatusFriend, statuses["bob_friend"])
	assert.Equal(t, store.StatusRequestSent, statuses["carl_pending"])
	assert.Equal(t, store.StatusRequestReceived, statuses["dana_incoming"])
	assert.Equal(t, store.StatusNone, statuses["erin_stranger"])
	assert.NotContains(t, statuses, "alice", "searcher is excluded")
}
