package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-messenger/types"
)

func TestTypingSuppressionAndStop(t *testing.T) {
	h, ann, bob := chatSetup(t)

	h.ok("c-ann", &types.Typing{DisplayName: "Ann", RoomId: "R1"})
	h.ok("c-ann", &types.Typing{DisplayName: "Ann", RoomId: "R1"})
	require.Len(t, bob.events(types.EventTyping), 1)
	data := types.TypingData{}
	decode(t, bob.events(types.EventTyping)[0], &data)
	assert.Equal(t, types.TypingData{RoomId: "R1", DisplayName: "Ann", UserId: "ann"}, data)

	h.ok("c-ann", &types.StopTyping{DisplayName: "Ann", RoomId: "R1"})
	assert.Len(t, bob.events(types.EventStopTyping), 1)
	assert.Len(t, ann.events(types.EventStopTyping), 1)

	h.ok("c-ann", &types.Typing{DisplayName: "Ann", RoomId: "R1"})
	assert.Len(t, bob.events(types.EventTyping), 2, "typing again after a stop is broadcast")
}

func TestTypingSweep(t *testing.T) {
	h, _, bob := chatSetup(t)
	h.ok("c-ann", &types.Typing{DisplayName: "Ann", RoomId: "R1"})
	h.clock = h.clock.Add(5 * time.Second)
	h.ok("c-bob", &types.Typing{DisplayName: "Bob", RoomId: "R1"})

	h.clock = h.clock.Add(6 * time.Second)
	assert.Equal(t, 1, h.svc.SweepTyping())
	stops := bob.events(types.EventStopTyping)
	require.Len(t, stops, 1)
	data := types.TypingData{}
	decode(t, stops[0], &data)
	assert.Equal(t, "Ann", data.DisplayName)

	h.clock = h.clock.Add(time.Minute)
	assert.Equal(t, 1, h.svc.SweepTyping())
	assert.Equal(t, 0, h.svc.SweepTyping())
}

func TestTypingStopsWhenUserGoesOffline(t *testing.T) {
	h, _, bob := chatSetup(t)
	h.ok("c-ann", &types.Typing{DisplayName: "Ann", RoomId: "R1"})
	h.svc.Disconnect("c-ann")
	assert.Len(t, bob.events(types.EventStopTyping), 1)
	assert.Empty(t, h.svc.typing.Typing("R1"))
}

func TestPlayVoiceRecordsFirstListenOnly(t *testing.T) {
	h, ann, _ := chatSetup(t)
	id := h.ok("c-ann", &types.CreateMessage{RoomId: "R1", TempId: "v-1", Voice: &types.VoicePayload{Src: "blob:1", Duration: 3.5}}).Id
	ann.reset()

	firstPlay := h.clock
	for i := 0; i < 3; i++ {
		h.ok("c-bob", &types.PlayVoice{Id: id, ListenerId: "bob"})
		h.clock = h.clock.Add(time.Minute)
	}
	assert.Len(t, ann.events(types.EventVoicePlayed), 3, "every play is broadcast")

	m, err := h.persister.GetMessage(id)
	require.NoError(t, err)
	require.NotNil(t, m.Voice)
	require.Len(t, m.Voice.PlayedBy, 1)
	assert.Equal(t, "bob", m.Voice.PlayedBy[0].ListenerId)
	assert.True(t, m.Voice.PlayedBy[0].PlayedAt.Equal(firstPlay))

	listeners, err := h.svc.voiceListeners(&types.GetVoiceListeners{Id: id})
	require.NoError(t, err)
	require.Len(t, listeners, 1)
	assert.Equal(t, "bob", listeners[0].User.Id)
}

func TestVoiceListenersWithLegacyRecords(t *testing.T) {
	h, _, _ := chatSetup(t)
	id := h.ok("c-ann", &types.CreateMessage{RoomId: "R1", TempId: "v-1", Voice: &types.VoicePayload{Src: "blob:1"}}).Id
	_, err := h.persister.UpdateMessage(id, func(m *types.Message) error {
		m.Voice.PlayedBy = []types.PlaybackRecord{
			types.ParsePlaybackRecord("bob_2024-01-01T10:00:00Z"),
			types.ParsePlaybackRecord("bob_2024-02-01T10:00:00Z"),
			types.ParsePlaybackRecord("ann"),
			types.ParsePlaybackRecord("unknown-user_2024-01-01T10:00:00Z"),
		}
		return nil
	})
	require.NoError(t, err)

	listeners, err := h.svc.voiceListeners(&types.GetVoiceListeners{Id: id})
	require.NoError(t, err)
	require.Len(t, listeners, 2)
	assert.Equal(t, "bob", listeners[0].User.Id)
	require.NotNil(t, listeners[0].PlayedAt)
	assert.Equal(t, time.January, listeners[0].PlayedAt.Month())
	assert.Equal(t, "ann", listeners[1].User.Id)
	assert.Nil(t, listeners[1].PlayedAt)

	h.ok("c-ann", &types.PlayVoice{Id: id, ListenerId: "ann"})
	m, err := h.persister.GetMessage(id)
	require.NoError(t, err)
	assert.Len(t, m.Voice.PlayedBy, 4, "a legacy record without timestamp still counts as played")
}

func TestPlayVoiceOnTextMessage(t *testing.T) {
	h, ann, _ := chatSetup(t)
	id := h.send("c-ann", "R1", "t-1", "text")
	ann.reset()
	ack := h.svc.Handle("c-bob", &types.PlayVoice{Id: id, ListenerId: "bob"})
	assert.False(t, ack.Success)
	assert.Empty(t, ann.events(types.EventVoicePlayed))
}

func TestTypingRequiresSubscription(t *testing.T) {
	h, ann, _ := chatSetup(t)
	h.user("eve", "Eve")
	h.session("c-eve", "eve")
	h.connect("c-anon")

	for _, connId := range []string{"c-eve", "c-anon"} {
		assert.False(t, h.svc.Handle(connId, &types.Typing{DisplayName: "Eve", RoomId: "R1"}).Success)
		assert.False(t, h.svc.Handle(connId, &types.StopTyping{DisplayName: "Ann", RoomId: "R1"}).Success)
	}
	assert.Empty(t, ann.events(types.EventTyping))
	assert.Empty(t, ann.events(types.EventStopTyping))
	assert.Empty(t, h.svc.typing.Typing("R1"))
}
