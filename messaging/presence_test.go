package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/types"
)

func onlineUsersOf(t *testing.T, c *testConn) [][]string {
	t.Helper()
	res := make([][]string, 0)
	for _, raw := range c.events(types.EventOnlineUsers) {
		data := types.OnlineUsersData{}
		decode(t, raw, &data)
		res = append(res, data.Users)
	}
	return res
}

func TestPresenceAcrossSessions(t *testing.T) {
	h := newHarness(t)
	h.user("u", "U")
	h.user("v", "V")
	h.room("R", types.RoomTypeGroup, "u", "v")
	observer := h.session("c-v", "v")

	h.session("c-u1", "u")
	assert.Equal(t, [][]string{{"v"}, {"u", "v"}}, onlineUsersOf(t, observer), "first session fans out")
	u, err := h.persister.GetUser("u")
	require.NoError(t, err)
	assert.Equal(t, types.UserStatusOnline, u.Status)

	observer.reset()
	second := h.session("c-u2", "u")
	assert.Empty(t, onlineUsersOf(t, observer), "a second session is no transition")
	assert.Equal(t, [][]string{{"u", "v"}}, onlineUsersOf(t, second), "the announcing connection always gets the list")

	h.svc.Disconnect("c-u2")
	assert.True(t, h.registry.Online("u"))
	assert.Empty(t, onlineUsersOf(t, observer))

	h.svc.Disconnect("c-u1")
	assert.False(t, h.registry.Online("u"))
	assert.Equal(t, [][]string{{"v"}}, onlineUsersOf(t, observer), "exactly one status broadcast")
	u, err = h.persister.GetUser("u")
	require.NoError(t, err)
	assert.Equal(t, types.UserStatusOffline, u.Status)

	h.svc.Disconnect("c-u1")
	assert.Len(t, onlineUsersOf(t, observer), 1, "disconnecting twice is a no-op")
}

func TestDisconnectUsesPreRemovalRooms(t *testing.T) {
	h := newHarness(t)
	h.user("u", "U")
	h.user("v", "V")
	h.user("w", "W")
	h.room("R1", types.RoomTypeGroup, "u", "v")
	h.room("R2", types.RoomTypeGroup, "u", "w")
	v := h.session("c-v", "v")
	w := h.session("c-w", "w")
	h.session("c-u", "u")
	v.reset()
	w.reset()

	h.svc.Disconnect("c-u")
	assert.Len(t, onlineUsersOf(t, v), 1)
	assert.Len(t, onlineUsersOf(t, w), 1)
	assert.Empty(t, h.router.Rooms("c-u"))
}

func TestAnnounceReturnsRoomViews(t *testing.T) {
	h := newHarness(t)
	h.user("u", "U")
	h.user("v", "V")
	h.room("R1", types.RoomTypeGroup, "u", "v")
	h.room("R2", types.RoomTypeGroup, "v")
	h.session("c-v", "v")
	h.send("c-v", "R1", "t-1", "hello u")
	h.send("c-v", "R1", "t-2", "are you there")

	h.connect("c-u")
	ack := h.svc.Handle("c-u", &types.Announce{UserId: "u"})
	require.True(t, ack.Success, ack.Error)
	views, ok := ack.Data.([]*types.RoomView)
	require.True(t, ok)
	require.Len(t, views, 1)
	assert.Equal(t, "R1", views[0].Id)
	assert.Equal(t, int64(2), views[0].UnseenCount)
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, "are you there", views[0].LastMessage.Body)
	assert.Equal(t, "V", views[0].LastMessage.Sender.Name)
	assert.Equal(t, []string{"R1"}, h.router.Rooms("c-u"))
}

func TestAnnounceUnknownUser(t *testing.T) {
	h := newHarness(t)
	h.connect("c")
	ack := h.svc.Handle("c", &types.Announce{UserId: "ghost"})
	assert.False(t, ack.Success)
	assert.False(t, h.registry.Online("ghost"))
}

func TestAnnounceGuest(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.GuestUsers = true })
	h.connect("c")
	ack := h.svc.Handle("c", &types.Announce{UserId: "guest-1"})
	require.True(t, ack.Success, ack.Error)
	u, err := h.persister.GetUser("guest-1")
	require.NoError(t, err)
	assert.NotEmpty(t, u.Name)
	assert.Equal(t, "guest-1", u.Username)
	assert.Equal(t, types.UserStatusOnline, u.Status)
}

func TestAnnounceAsAnotherUserIsRefused(t *testing.T) {
	h := newHarness(t)
	h.user("u", "U")
	h.user("v", "V")
	h.session("c", "u")
	ack := h.svc.Handle("c", &types.Announce{UserId: "v"})
	assert.False(t, ack.Success)
	assert.False(t, h.registry.Online("v"))
	assert.Equal(t, types.Presence{UserId: "u", Online: true, Sessions: 1}, h.svc.Presence("u"))
}

func TestStatusWriteFollowsRegistry(t *testing.T) {
	h, _, _ := chatSetup(t)

	// a late offline write for a user who is online again is dropped
	h.svc.setStatus("ann", types.UserStatusOffline)
	u, err := h.persister.GetUser("ann")
	require.NoError(t, err)
	assert.Equal(t, types.UserStatusOnline, u.Status)

	h.svc.Disconnect("c-ann")
	h.svc.setStatus("ann", types.UserStatusOnline)
	u, err = h.persister.GetUser("ann")
	require.NoError(t, err)
	assert.Equal(t, types.UserStatusOffline, u.Status)
}
