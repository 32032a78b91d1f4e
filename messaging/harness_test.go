package messaging

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/presence"
	"github.com/tcriess/lightspeed-messenger/room"
	"github.com/tcriess/lightspeed-messenger/types"
)

type testConn struct {
	id string

	mu       sync.Mutex
	received []types.WebsocketMessage
}

func (c *testConn) Id() string { return c.id }

func (c *testConn) Deliver(msg []byte) bool {
	wm := types.WebsocketMessage{}
	if err := json.Unmarshal(msg, &wm); err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, wm)
	return true
}

// events returns the payloads of the received events named name.
func (c *testConn) events(name string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]json.RawMessage, 0)
	for _, wm := range c.received {
		if wm.Event == name {
			res = append(res, wm.Data)
		}
	}
	return res
}

func (c *testConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = nil
}

type harness struct {
	t         *testing.T
	svc       *Service
	persister persistence.Persister
	registry  *presence.Registry
	router    *room.Router
	clock     time.Time
}

func newHarness(t *testing.T, configure ...func(*config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
		TypingConfig:      config.TypingConfig{TTL: 10 * time.Second},
		UserCacheSize:     16,
	}
	for _, fn := range configure {
		fn(cfg)
	}
	p, err := persistence.NewPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	registry := presence.NewRegistry(nil)
	router := room.NewRouter(registry)
	svc, err := NewService(cfg, p, registry, router)
	require.NoError(t, err)
	h := &harness{t: t, svc: svc, persister: p, registry: registry, router: router, clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) user(id, name string) {
	h.t.Helper()
	require.NoError(h.t, h.persister.StoreUser(&types.User{Id: id, Name: name, Username: id, Status: types.UserStatusOffline}))
}

func (h *harness) room(id, roomType string, participants ...string) {
	h.t.Helper()
	require.NoError(h.t, h.persister.CreateRoom(&types.Room{Id: id, Name: "room " + id, Type: roomType, Participants: types.StringList(participants), CreatedAt: h.clock}))
}

func (h *harness) connect(id string) *testConn {
	c := &testConn{id: id}
	h.svc.Connect(c)
	return c
}

// session connects and announces userId.
func (h *harness) session(connId, userId string) *testConn {
	h.t.Helper()
	c := h.connect(connId)
	ack := h.svc.Handle(connId, &types.Announce{UserId: userId})
	require.True(h.t, ack.Success, ack.Error)
	return c
}

func (h *harness) ok(connId string, cmd types.Command) *types.Ack {
	h.t.Helper()
	require.NoError(h.t, cmd.Validate())
	ack := h.svc.Handle(connId, cmd)
	require.True(h.t, ack.Success, ack.Error)
	return ack
}

func (h *harness) send(connId, roomId, tempId, body string) string {
	h.t.Helper()
	h.clock = h.clock.Add(time.Second)
	return h.ok(connId, &types.CreateMessage{RoomId: roomId, TempId: tempId, Body: body}).Id
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func lastMessageOf(t *testing.T, raw json.RawMessage) *types.Message {
	t.Helper()
	data := types.LastMessageUpdateData{}
	decode(t, raw, &data)
	return data.Message
}

var errStoreDown = errors.New("store unavailable")

// flakyStore fails the named methods a number of times before passing calls through.
type flakyStore struct {
	persistence.Persister

	mu       sync.Mutex
	failures map[string]int
}

func (f *flakyStore) fail(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[method] > 0 {
		f.failures[method]--
		return errStoreDown
	}
	return nil
}

func (f *flakyStore) CreateMessage(m *types.Message) error {
	if err := f.fail("CreateMessage"); err != nil {
		return err
	}
	return f.Persister.CreateMessage(m)
}

func (f *flakyStore) DeleteMessage(id string) error {
	if err := f.fail("DeleteMessage"); err != nil {
		return err
	}
	return f.Persister.DeleteMessage(id)
}

func (f *flakyStore) RemoveRoomMessage(roomId, messageId string) error {
	if err := f.fail("RemoveRoomMessage"); err != nil {
		return err
	}
	return f.Persister.RemoveRoomMessage(roomId, messageId)
}

// failOnce makes the service's next call of method fail.
func (h *harness) failOnce(method string) {
	h.svc.persister = &flakyStore{Persister: h.persister, failures: map[string]int{method: 1}}
}
