package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu     sync.Mutex
	events []string
}

func (m *recordingMirror) Online(userId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "+"+userId)
}

func (m *recordingMirror) Offline(userId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "-"+userId)
}

func TestMultiSessionPresence(t *testing.T) {
	mirror := &recordingMirror{}
	r := NewRegistry(mirror)

	first, err := r.Add("c1", "u")
	require.NoError(t, err)
	assert.True(t, first)
	first, err = r.Add("c2", "u")
	require.NoError(t, err)
	assert.False(t, first)
	assert.True(t, r.Online("u"))
	assert.Equal(t, []string{"c1", "c2"}, r.Sessions("u"))

	userId, last := r.Remove("c2")
	assert.Equal(t, "u", userId)
	assert.False(t, last)
	assert.True(t, r.Online("u"), "one session left")

	userId, last = r.Remove("c1")
	assert.Equal(t, "u", userId)
	assert.True(t, last)
	assert.False(t, r.Online("u"))
	assert.Empty(t, r.Sessions("u"))

	assert.Equal(t, []string{"+u", "-u"}, mirror.events)
}

func TestAnnounceTwice(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Add("c1", "u")
	require.NoError(t, err)
	first, err := r.Add("c1", "u")
	require.NoError(t, err)
	assert.False(t, first)
	_, err = r.Add("c1", "other")
	assert.ErrorIs(t, err, ErrAlreadyAnnounced)
	assert.Equal(t, []string{"c1"}, r.Sessions("u"))
}

func TestRemoveUnannounced(t *testing.T) {
	r := NewRegistry(nil)
	userId, last := r.Remove("nope")
	assert.Empty(t, userId)
	assert.False(t, last)
}

func TestOnlineUsersSortedAndDistinct(t *testing.T) {
	r := NewRegistry(nil)
	for _, pair := range [][2]string{{"c1", "zed"}, {"c2", "amy"}, {"c3", "zed"}} {
		_, err := r.Add(pair[0], pair[1])
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"amy", "zed"}, r.OnlineUsers())
	userId, ok := r.UserOf("c3")
	assert.True(t, ok)
	assert.Equal(t, "zed", userId)
}

func TestConcurrentSessions(t *testing.T) {
	mirror := &recordingMirror{}
	r := NewRegistry(mirror)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connId := fmt.Sprintf("c%d", i)
			_, err := r.Add(connId, "u")
			assert.NoError(t, err)
			r.Remove(connId)
		}(i)
	}
	wg.Wait()
	assert.False(t, r.Online("u"))
	// transitions alternate, starting online
	for i, e := range mirror.events {
		if i%2 == 0 {
			assert.Equal(t, "+u", e)
		} else {
			assert.Equal(t, "-u", e)
		}
	}
}
