package signals

import (
	"sort"
	"sync"
	"time"
)

type typingKey struct {
	roomId      string
	displayName string
}

// Typist is a display name marked as typing in a room.
type Typist struct {
	RoomId      string
	DisplayName string
	UserId      string
	LastSeen    time.Time
}

// TypingTracker holds the typing indicators of all rooms. Entries are keyed by room and display name, so the same
// name typing in two rooms is tracked twice.
type TypingTracker struct {
	mu      sync.Mutex
	typists map[typingKey]*Typist
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{typists: make(map[typingKey]*Typist)}
}

// Start marks displayName as typing in roomId. It returns true if the name was not typing yet, i.e. if the signal
// should be broadcast. A repeated signal only refreshes the entry.
func (t *TypingTracker) Start(roomId, displayName, userId string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := typingKey{roomId: roomId, displayName: displayName}
	if typist, ok := t.typists[key]; ok {
		typist.LastSeen = now
		return false
	}
	t.typists[key] = &Typist{RoomId: roomId, DisplayName: displayName, UserId: userId, LastSeen: now}
	return true
}

// Stop removes the entry and reports whether there was one.
func (t *TypingTracker) Stop(roomId, displayName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := typingKey{roomId: roomId, displayName: displayName}
	if _, ok := t.typists[key]; !ok {
		return false
	}
	delete(t.typists, key)
	return true
}

// StopUser removes all entries of userId (in every room) and returns them.
func (t *TypingTracker) StopUser(userId string) []Typist {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeWhere(func(typist *Typist) bool { return typist.UserId != "" && typist.UserId == userId })
}

// Sweep removes the entries not refreshed since before and returns them.
func (t *TypingTracker) Sweep(before time.Time) []Typist {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeWhere(func(typist *Typist) bool { return typist.LastSeen.Before(before) })
}

func (t *TypingTracker) removeWhere(match func(*Typist) bool) []Typist {
	removed := make([]Typist, 0)
	for key, typist := range t.typists {
		if match(typist) {
			removed = append(removed, *typist)
			delete(t.typists, key)
		}
	}
	sortTypists(removed)
	return removed
}

// Typing returns the display names typing in roomId, sorted.
func (t *TypingTracker) Typing(roomId string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]string, 0)
	for key := range t.typists {
		if key.roomId == roomId {
			res = append(res, key.displayName)
		}
	}
	sort.Strings(res)
	return res
}

func sortTypists(typists []Typist) {
	sort.Slice(typists, func(i, j int) bool {
		if typists[i].RoomId != typists[j].RoomId {
			return typists[i].RoomId < typists[j].RoomId
		}
		return typists[i].DisplayName < typists[j].DisplayName
	})
}
