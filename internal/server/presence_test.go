package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresence(t *testing.T) {
	p := NewPresence()
	c1 := &Client{user: alice}
	c2 := &Client{user: alice}
	stranger := &Client{user: alice}

	assert.False(t, p.IsOnline(alice.Id), "expected registry to start empty")

	assert.True(t, p.Add(alice.Id, c1), "expected first connection to be reported")
	assert.False(t, p.Add(alice.Id, c2))
	assert.ElementsMatch(t, []*Client{c1, c2}, p.Connections(alice.Id))

	assert.False(t, p.Remove(alice.Id, stranger), "expected unknown connection to be ignored")
	assert.False(t, p.Remove(alice.Id, c1), "expected user to remain online")
	assert.True(t, p.IsOnline(alice.Id))

	assert.True(t, p.Remove(alice.Id, c2), "expected last connection to be reported")
	assert.False(t, p.IsOnline(alice.Id))
	assert.Empty(t, p.Connections(alice.Id))
	assert.False(t, p.Remove(alice.Id, c2))
}
