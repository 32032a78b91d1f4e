package room

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/types"
)

// Conn is one live connection as seen by the router.
type Conn interface {
	Id() string
	// Deliver queues an encoded event without blocking. It returns false if the connection is already closed or
	// cannot take more messages.
	Deliver(msg []byte) bool
}

// SessionLister resolves a user to its connection ids.
type SessionLister interface {
	Sessions(userId string) []string
}

// Router keeps the room subscriptions of the live connections and fans events out to them. A connection receives
// an event for a room only while it is subscribed to it.
type Router struct {
	conns    map[string]Conn
	members  map[string]map[string]struct{} // room id -> connection ids
	rooms    map[string]map[string]struct{} // connection id -> room ids
	sessions SessionLister

	sync.RWMutex
}

func NewRouter(sessions SessionLister) *Router {
	return &Router{
		conns:    make(map[string]Conn),
		members:  make(map[string]map[string]struct{}),
		rooms:    make(map[string]map[string]struct{}),
		sessions: sessions,
	}
}

func (r *Router) Register(conn Conn) {
	r.Lock()
	defer r.Unlock()
	r.conns[conn.Id()] = conn
	if _, ok := r.rooms[conn.Id()]; !ok {
		r.rooms[conn.Id()] = make(map[string]struct{})
	}
}

// Unregister removes the connection and all its subscriptions. It returns the rooms it was subscribed to.
func (r *Router) Unregister(connId string) []string {
	r.Lock()
	defer r.Unlock()
	subscribed := sortedKeys(r.rooms[connId])
	for _, roomId := range subscribed {
		r.removeMember(roomId, connId)
	}
	delete(r.rooms, connId)
	delete(r.conns, connId)
	return subscribed
}

// Subscribe adds the connection to the room's fanout set. It returns false if the connection is unknown.
func (r *Router) Subscribe(connId, roomId string) bool {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.conns[connId]; !ok {
		return false
	}
	r.rooms[connId][roomId] = struct{}{}
	m, ok := r.members[roomId]
	if !ok {
		m = make(map[string]struct{})
		r.members[roomId] = m
	}
	m[connId] = struct{}{}
	return true
}

// SubscribeUser subscribes all sessions of userId and returns how many were subscribed.
func (r *Router) SubscribeUser(userId, roomId string) int {
	n := 0
	for _, connId := range r.sessions.Sessions(userId) {
		if r.Subscribe(connId, roomId) {
			n++
		}
	}
	return n
}

func (r *Router) Unsubscribe(connId, roomId string) {
	r.Lock()
	defer r.Unlock()
	if rooms, ok := r.rooms[connId]; ok {
		delete(rooms, roomId)
	}
	r.removeMember(roomId, connId)
}

// DropRoom removes every subscription to roomId.
func (r *Router) DropRoom(roomId string) {
	r.Lock()
	defer r.Unlock()
	for connId := range r.members[roomId] {
		delete(r.rooms[connId], roomId)
	}
	delete(r.members, roomId)
}

func (r *Router) removeMember(roomId, connId string) {
	m, ok := r.members[roomId]
	if !ok {
		return
	}
	delete(m, connId)
	if len(m) == 0 {
		delete(r.members, roomId)
	}
}

// Rooms returns the rooms connId is subscribed to, sorted.
func (r *Router) Rooms(connId string) []string {
	r.RLock()
	defer r.RUnlock()
	return sortedKeys(r.rooms[connId])
}

// Members returns the connection ids subscribed to roomId, sorted.
func (r *Router) Members(roomId string) []string {
	r.RLock()
	defer r.RUnlock()
	return sortedKeys(r.members[roomId])
}

func (r *Router) Subscribed(connId, roomId string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.members[roomId][connId]
	return ok
}

// Fanout delivers the event to every connection subscribed to roomId and returns the number of deliveries.
func (r *Router) Fanout(roomId string, event *types.Event) int {
	return r.FanoutExcept(roomId, "", event)
}

// FanoutExcept is Fanout without the connection exceptConnId.
func (r *Router) FanoutExcept(roomId, exceptConnId string, event *types.Event) int {
	msg, ok := encode(event)
	if !ok {
		return 0
	}
	r.RLock()
	defer r.RUnlock()
	n := 0
	for connId := range r.members[roomId] {
		if connId == exceptConnId {
			continue
		}
		if r.deliver(connId, msg) {
			n++
		}
	}
	return n
}

// FanoutRooms delivers the event once to every connection subscribed to at least one of roomIds.
func (r *Router) FanoutRooms(roomIds []string, event *types.Event) int {
	msg, ok := encode(event)
	if !ok {
		return 0
	}
	r.RLock()
	defer r.RUnlock()
	targets := make(map[string]struct{})
	for _, roomId := range roomIds {
		for connId := range r.members[roomId] {
			targets[connId] = struct{}{}
		}
	}
	return r.deliverAll(targets, msg)
}

// FanoutRoomAndUsers delivers the event once to the union of the room's subscribers and the sessions of userIds.
func (r *Router) FanoutRoomAndUsers(roomId string, userIds []string, event *types.Event) int {
	msg, ok := encode(event)
	if !ok {
		return 0
	}
	targets := make(map[string]struct{})
	for _, userId := range userIds {
		for _, connId := range r.sessions.Sessions(userId) {
			targets[connId] = struct{}{}
		}
	}
	r.RLock()
	defer r.RUnlock()
	for connId := range r.members[roomId] {
		targets[connId] = struct{}{}
	}
	return r.deliverAll(targets, msg)
}

// FanoutToUser delivers the event to all sessions of userId, regardless of their subscriptions.
func (r *Router) FanoutToUser(userId string, event *types.Event) int {
	msg, ok := encode(event)
	if !ok {
		return 0
	}
	connIds := r.sessions.Sessions(userId)
	r.RLock()
	defer r.RUnlock()
	n := 0
	for _, connId := range connIds {
		if r.deliver(connId, msg) {
			n++
		}
	}
	return n
}

// Send delivers the event to a single connection.
func (r *Router) Send(connId string, event *types.Event) bool {
	msg, ok := encode(event)
	if !ok {
		return false
	}
	r.RLock()
	defer r.RUnlock()
	return r.deliver(connId, msg)
}

func (r *Router) deliverAll(targets map[string]struct{}, msg []byte) int {
	n := 0
	for connId := range targets {
		if r.deliver(connId, msg) {
			n++
		}
	}
	return n
}

// deliver must be called with the read lock held. Unknown and closed connections are skipped.
func (r *Router) deliver(connId string, msg []byte) bool {
	conn, ok := r.conns[connId]
	if !ok {
		return false
	}
	return conn.Deliver(msg)
}

func encode(event *types.Event) ([]byte, bool) {
	msg, err := json.Marshal(event)
	if err != nil {
		globals.AppLogger.Error("could not marshal event", "event", event.Name, "error", err)
		return nil, false
	}
	return msg, true
}

func sortedKeys(m map[string]struct{}) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
