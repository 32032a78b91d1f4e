package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/types"
)

func newStore(t *testing.T) persistence.Persister {
	p, err := persistence.NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func run(t *testing.T, p persistence.Persister, stdin string, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := newRootCmd(p, strings.NewReader(stdin), out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSetAndShowUser(t *testing.T) {
	p := newStore(t)
	_, err := run(t, p, "", "set", "user", `{"id":"ann","name":"Ann"}`)
	require.NoError(t, err)
	_, err = run(t, p, `{"id":"bob","name":"Bob"}`, "set", "user", "-")
	require.NoError(t, err)

	out, err := run(t, p, "", "show", "user", "ann")
	require.NoError(t, err)
	u := types.User{}
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, types.UserStatusOffline, u.Status)

	out, err = run(t, p, "", "show", "users")
	require.NoError(t, err)
	users := make([]types.User, 0)
	require.NoError(t, json.Unmarshal([]byte(out), &users))
	assert.Len(t, users, 2)

	_, err = run(t, p, "", "delete", "user", "ann")
	require.NoError(t, err)
	_, err = run(t, p, "", "show", "user", "ann")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	_, err = run(t, p, "", "set", "user", `{"name":"nobody"}`)
	assert.Error(t, err)
}

func TestSetShowDeleteRoom(t *testing.T) {
	p := newStore(t)
	_, err := run(t, p, "", "set", "room", `{"id":"R1","name":"general","participants":["ann"]}`)
	require.NoError(t, err)
	require.NoError(t, p.CreateMessage(&types.Message{Id: "m1", TempId: "t1", RoomId: "R1", SenderId: "ann", Body: "hi"}))
	require.NoError(t, p.AppendRoomMessage("R1", "m1"))

	_, err = run(t, p, "", "set", "room", `{"id":"R1","name":"renamed","participants":["ann","bob"]}`)
	require.NoError(t, err)
	out, err := run(t, p, "", "show", "room", "renamed")
	require.NoError(t, err)
	r := types.Room{}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "R1", r.Id)
	assert.Equal(t, types.RoomTypeGroup, r.Type)
	assert.Equal(t, types.StringList{"m1"}, r.Messages, "an update keeps the message refs")

	_, err = run(t, p, "", "set", "room", `{"id":"R2","name":"x","type":"lobby"}`)
	assert.Error(t, err)

	_, err = run(t, p, "", "delete", "room", "R1")
	require.NoError(t, err)
	_, err = p.GetMessage("m1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	out, err = run(t, p, "", "show", "rooms")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}
