package server

import "sync"

// Presence maps user ids to their live, identified connections. It starts
// empty and lives only as long as the process.
type Presence struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
}

func NewPresence() *Presence {
	return &Presence{users: make(map[string]map[*Client]struct{})}
}

// Add registers c under userId and reports whether it is the user's first
// connection.
func (p *Presence) Add(userId string, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userId]
	if !ok {
		conns = make(map[*Client]struct{})
		p.users[userId] = conns
	}
	conns[c] = struct{}{}

	return !ok
}

// Remove drops c and reports whether userId has no connections left. It is a
// no-op returning false when c was not registered.
func (p *Presence) Remove(userId string, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userId]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}

	delete(conns, c)
	if len(conns) == 0 {
		delete(p.users, userId)
		return true
	}

	return false
}

func (p *Presence) Connections(userId string) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := make([]*Client, 0, len(p.users[userId]))
	for c := range p.users[userId] {
		conns = append(conns, c)
	}

	return conns
}

func (p *Presence) IsOnline(userId string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.users[userId]) > 0
}
