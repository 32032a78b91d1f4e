package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaybackRecord(t *testing.T) {
	rec := ParsePlaybackRecord("u1_2024-03-01T10:00:00.000Z")
	assert.Equal(t, "u1", rec.ListenerId)
	require.NotNil(t, rec.PlayedAt)
	assert.Equal(t, 2024, rec.PlayedAt.Year())

	rec = ParsePlaybackRecord("u2")
	assert.Equal(t, "u2", rec.ListenerId)
	assert.Nil(t, rec.PlayedAt)

	rec = ParsePlaybackRecord("u3_garbage")
	assert.Equal(t, "u3", rec.ListenerId)
	assert.Nil(t, rec.PlayedAt)
}

func TestVoicePayloadMixedRecords(t *testing.T) {
	raw := `{"src":"s","duration":2,"playedBy":["u1_2024-03-01T10:00:00Z","u1",{"listenerId":"u2","playedAt":"2024-03-02T10:00:00Z"},"u3"]}`
	v := VoicePayload{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	require.Len(t, v.PlayedBy, 4)

	listeners := v.Listeners()
	require.Len(t, listeners, 3)
	assert.Equal(t, "u1", listeners[0].ListenerId)
	require.NotNil(t, listeners[0].PlayedAt)
	assert.Equal(t, "u2", listeners[1].ListenerId)
	assert.Equal(t, "u3", listeners[2].ListenerId)
	assert.Nil(t, listeners[2].PlayedAt)
}

func TestRecordPlaybackFirstListenWins(t *testing.T) {
	v := &VoicePayload{}
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, v.RecordPlayback("u1", first))
	for i := 0; i < 5; i++ {
		assert.False(t, v.RecordPlayback("u1", first.Add(time.Hour)))
	}
	require.Len(t, v.PlayedBy, 1)
	assert.Equal(t, first, *v.PlayedBy[0].PlayedAt)

	// legacy record without timestamp still counts as listened
	v.PlayedBy = append(v.PlayedBy, ParsePlaybackRecord("u2"))
	assert.False(t, v.RecordPlayback("u2", first))
}

func TestStringList(t *testing.T) {
	l := StringList{}
	assert.True(t, l.AddUnique("a"))
	assert.False(t, l.AddUnique("a"))
	assert.True(t, l.AddUnique("b"))
	assert.True(t, l.Remove("a"))
	assert.False(t, l.Remove("a"))
	assert.Equal(t, StringList{"b"}, l)

	var nilList StringList
	b, err := json.Marshal(nilList)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	scanned := StringList{}
	require.NoError(t, scanned.Scan(`["x","y"]`))
	assert.Equal(t, StringList{"x", "y"}, scanned)
}

func TestMessageIdForIsStable(t *testing.T) {
	a, err := MessageIdFor("t-1")
	require.NoError(t, err)
	b, err := MessageIdFor("t-1")
	require.NoError(t, err)
	c, err := MessageIdFor("t-2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
