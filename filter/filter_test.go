package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyAllow(t *testing.T) {
	p, err := NewPolicy(`len(Body) <= 5 || HasVoice`)
	require.NoError(t, err)
	assert.True(t, p.Allow(Env{Body: "hi"}))
	assert.False(t, p.Allow(Env{Body: "too long"}))
	assert.True(t, p.Allow(Env{Body: "too long", HasVoice: true}))

	p, err = NewPolicy(`Room.Type != "channel" || Sender.Id == "owner"`)
	require.NoError(t, err)
	assert.True(t, p.Allow(Env{Room: Room{Type: "group"}, Sender: Sender{Id: "x"}}))
	assert.False(t, p.Allow(Env{Room: Room{Type: "channel"}, Sender: Sender{Id: "x"}}))
	assert.True(t, p.Allow(Env{Room: Room{Type: "channel"}, Sender: Sender{Id: "owner"}}))
}

func TestEmptyPolicyAcceptsAll(t *testing.T) {
	p, err := NewPolicy("")
	require.NoError(t, err)
	assert.True(t, p.Allow(Env{}))
	var nilPolicy *Policy
	assert.True(t, nilPolicy.Allow(Env{Body: "x"}))
}

func TestPolicyCompileErrors(t *testing.T) {
	_, err := NewPolicy(`Body +`)
	assert.Error(t, err)
	_, err = NewPolicy(`len(Body)`)
	assert.Error(t, err, "non-boolean policies are rejected at compile time")
	_, err = NewPolicy(`Unknown == 1`)
	assert.Error(t, err)
}
