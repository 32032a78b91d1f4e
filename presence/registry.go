package presence

import (
	"errors"
	"sort"
	"sync"
)

var ErrAlreadyAnnounced = errors.New("connection is already bound to another user")

// Mirror receives the online/offline transitions of users, in the order they happen.
type Mirror interface {
	Online(userId string)
	Offline(userId string)
}

// Registry is the process-wide table of online users and their sessions. A user is online iff at least one
// connection is bound to it.
type Registry struct {
	mu       sync.RWMutex
	users    map[string]string              // connection id -> user id
	sessions map[string]map[string]struct{} // user id -> connection ids
	mirror   Mirror
}

func NewRegistry(mirror Mirror) *Registry {
	return &Registry{
		users:    make(map[string]string),
		sessions: make(map[string]map[string]struct{}),
		mirror:   mirror,
	}
}

// Add binds connId to userId and reports whether this is the user's first session. Binding an already bound
// connection to the same user is a no-op, binding it to a different user fails.
func (r *Registry) Add(connId, userId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.users[connId]; ok {
		if current != userId {
			return false, ErrAlreadyAnnounced
		}
		return false, nil
	}
	r.users[connId] = userId
	conns, ok := r.sessions[userId]
	if !ok {
		conns = make(map[string]struct{})
		r.sessions[userId] = conns
	}
	conns[connId] = struct{}{}
	first := len(conns) == 1
	if first && r.mirror != nil {
		r.mirror.Online(userId)
	}
	return first, nil
}

// Remove unbinds connId. It returns the user the connection was bound to ("" if none) and whether that was the
// user's last session.
func (r *Registry) Remove(connId string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userId, ok := r.users[connId]
	if !ok {
		return "", false
	}
	delete(r.users, connId)
	conns := r.sessions[userId]
	delete(conns, connId)
	if len(conns) > 0 {
		return userId, false
	}
	delete(r.sessions, userId)
	if r.mirror != nil {
		r.mirror.Offline(userId)
	}
	return userId, true
}

func (r *Registry) Online(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userId]) > 0
}

// UserOf returns the user bound to connId.
func (r *Registry) UserOf(connId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userId, ok := r.users[connId]
	return userId, ok
}

// Sessions returns the connection ids of userId, sorted.
func (r *Registry) Sessions(userId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.sessions[userId]))
	for connId := range r.sessions[userId] {
		res = append(res, connId)
	}
	sort.Strings(res)
	return res
}

// OnlineUsers returns the distinct online user ids, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.sessions))
	for userId := range r.sessions {
		res = append(res, userId)
	}
	sort.Strings(res)
	return res
}
