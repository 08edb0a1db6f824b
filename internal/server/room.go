package server

import "sync"

// roomChannels tracks which connections joined which room channel. A
// connection may be a member of many channels.
type roomChannels struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
}

func newRoomChannels() *roomChannels {
	return &roomChannels{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
	}
}

func (rc *roomChannels) join(roomId string, c *Client) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	members, ok := rc.rooms[roomId]
	if !ok {
		members = make(map[*Client]struct{})
		rc.rooms[roomId] = members
	}
	members[c] = struct{}{}

	joined, ok := rc.clients[c]
	if !ok {
		joined = make(map[string]struct{})
		rc.clients[c] = joined
	}
	joined[roomId] = struct{}{}
}

// leaveAll removes c from every channel it joined. Empty channels are
// dropped.
func (rc *roomChannels) leaveAll(c *Client) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for roomId := range rc.clients[c] {
		members := rc.rooms[roomId]
		delete(members, c)
		if len(members) == 0 {
			delete(rc.rooms, roomId)
		}
	}
	delete(rc.clients, c)
}

func (rc *roomChannels) members(roomId string) []*Client {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	members := make([]*Client, 0, len(rc.rooms[roomId]))
	for c := range rc.rooms[roomId] {
		members = append(members, c)
	}

	return members
}
