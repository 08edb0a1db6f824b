package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/npezzotti/medchat/internal/chat"
	"github.com/npezzotti/medchat/internal/stats"
	"github.com/npezzotti/medchat/internal/types"
)

const (
	metricActiveClients = "NumActiveClients"
	metricOnlineUsers   = "NumOnlineUsers"
	metricMessagesSent  = "NumMessagesSent"
)

// Broadcaster pushes the result of a chat mutation to the online
// participants. The REST gateway uses it so HTTP writes reach sockets too.
type Broadcaster interface {
	MessageCreated(msg types.Message)
	MessageEdited(msg types.Message)
	MessageDeleted(msg types.Message)
	MessageRead(msg types.Message)
}

// Relay forwards per-user frames to other instances of the service.
type Relay interface {
	Publish(userId string, frame []byte) error
}

// Limiter decides whether a user may send another message.
type Limiter interface {
	Allow(ctx context.Context, userId string) (bool, error)
}

type Option func(*ChatServer)

func WithRelay(r Relay) Option {
	return func(cs *ChatServer) {
		cs.relay = r
	}
}

func WithLimiter(l Limiter) Option {
	return func(cs *ChatServer) {
		cs.limiter = l
	}
}

type stopRequest struct {
	done chan struct{}
}

type ChatServer struct {
	log           *log.Logger
	chat          chat.Service
	stats         stats.StatsProvider
	presence      *Presence
	rooms         *roomChannels
	clients       map[*Client]struct{}
	clientsLock   sync.RWMutex
	broadcastChan chan *ServerMessage
	stop          chan stopRequest
	done          chan struct{}
	relay         Relay
	limiter       Limiter
}

func NewChatServer(logger *log.Logger, svc chat.Service, su stats.StatsProvider, presence *Presence, opts ...Option) (*ChatServer, error) {
	cs := &ChatServer{
		log:           logger,
		chat:          svc,
		stats:         su,
		presence:      presence,
		rooms:         newRoomChannels(),
		clients:       make(map[*Client]struct{}),
		broadcastChan: make(chan *ServerMessage, 256),
		stop:          make(chan stopRequest),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cs)
	}

	cs.stats.RegisterMetric(metricActiveClients)
	cs.stats.RegisterMetric(metricOnlineUsers)
	cs.stats.RegisterMetric(metricMessagesSent)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case msg := <-cs.broadcastChan:
			cs.handleBroadcast(msg)
		case req := <-cs.stop:
			cs.log.Println("stopping clients")
			cs.clientsLock.RLock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// Shutdown stops every client and waits for Run to exit or ctx to end.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopRequest{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.log.Printf("adding connection from %q", c.user.Id)
	cs.addClient(c)
}

// DeRegisterClient removes c from the server, the presence registry and
// all room channels. user_offline goes out when c was the user's last
// connection.
func (cs *ChatServer) DeRegisterClient(c *Client) {
	cs.log.Printf("removing connection from %q", c.user.Id)
	cs.removeClient(c)
	cs.rooms.leaveAll(c)

	if cs.presence.Remove(c.user.Id, c) {
		cs.stats.Decr(metricOnlineUsers)
		msg := NewServerMessage(EventUserOffline, UserPresence{UserId: c.user.Id})
		msg.SkipUser = c.user.Id
		cs.broadcast(msg)
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.stats.Incr(metricActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr(metricActiveClients)
	}
}

// identify registers c in the presence registry and announces the user
// when this is their first connection.
func (cs *ChatServer) identify(c *Client) {
	if !cs.presence.Add(c.user.Id, c) {
		return
	}

	cs.stats.Incr(metricOnlineUsers)
	msg := NewServerMessage(EventUserOnline, UserPresence{UserId: c.user.Id})
	msg.SkipUser = c.user.Id
	cs.broadcast(msg)
}

// broadcast hands msg to the hub goroutine unless the server stopped.
func (cs *ChatServer) broadcast(msg *ServerMessage) {
	select {
	case cs.broadcastChan <- msg:
	case <-cs.done:
	}
}

func (cs *ChatServer) handleBroadcast(msg *ServerMessage) {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	for c := range cs.clients {
		if msg.SkipUser != "" && c.user.Id == msg.SkipUser {
			continue
		}
		c.queueMessage(msg)
	}
}

// publish forwards msg for userId to the relay, if one is configured.
func (cs *ChatServer) publish(userId string, msg *ServerMessage) {
	if cs.relay == nil {
		return
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		cs.log.Printf("encode relay frame: %v", err)
		return
	}

	if err := cs.relay.Publish(userId, frame); err != nil {
		cs.log.Printf("relay publish to %q: %v", userId, err)
	}
}

// pushToUser queues msg on every connection of userId.
func (cs *ChatServer) pushToUser(userId string, msg *ServerMessage) {
	for _, c := range cs.presence.Connections(userId) {
		c.queueMessage(msg)
	}
	cs.publish(userId, msg)
}

// deliver queues msg once on each connection that is either a member of
// the room channel or belongs to one of userIds.
func (cs *ChatServer) deliver(msg *ServerMessage, roomId string, userIds ...string) {
	targets := make(map[*Client]struct{})
	for _, c := range cs.rooms.members(roomId) {
		targets[c] = struct{}{}
	}
	for _, id := range userIds {
		for _, c := range cs.presence.Connections(id) {
			targets[c] = struct{}{}
		}
	}

	for c := range targets {
		c.queueMessage(msg)
	}

	for _, id := range userIds {
		cs.publish(id, msg)
	}
}

// DeliverRelayed queues a frame encoded by another instance on the local
// connections of userId.
func (cs *ChatServer) DeliverRelayed(userId string, frame []byte) {
	for _, c := range cs.presence.Connections(userId) {
		c.queueMessage(&ServerMessage{raw: frame})
	}
}

func (cs *ChatServer) MessageCreated(msg types.Message) {
	cs.stats.Incr(metricMessagesSent)
	cs.deliver(NewServerMessage(EventNewMessage, msg), msg.RoomId, msg.Sender.Id, msg.Receiver.Id)
	cs.pushToUser(msg.Receiver.Id, NewServerMessage(EventMessageNotification, MessageNotification{
		Message:    msg,
		RoomId:     msg.RoomId,
		SenderName: msg.Sender.Name,
	}))
}

func (cs *ChatServer) MessageEdited(msg types.Message) {
	cs.deliver(NewServerMessage(EventMessageEdited, msg), msg.RoomId, msg.Sender.Id, msg.Receiver.Id)
}

func (cs *ChatServer) MessageDeleted(msg types.Message) {
	cs.deliver(NewServerMessage(EventMessageDeleted, MessageRef{
		MessageId: msg.Id,
		RoomId:    msg.RoomId,
	}), msg.RoomId, msg.Sender.Id, msg.Receiver.Id)
}

func (cs *ChatServer) MessageRead(msg types.Message) {
	cs.deliver(NewServerMessage(EventMessageRead, MessageRef{
		MessageId: msg.Id,
		RoomId:    msg.RoomId,
	}), msg.RoomId, msg.Sender.Id, msg.Receiver.Id)
}

// reachable reports whether userId may have a live connection. With a relay
// the user could be connected to another instance.
func (cs *ChatServer) reachable(userId string) bool {
	return cs.relay != nil || cs.presence.IsOnline(userId)
}
