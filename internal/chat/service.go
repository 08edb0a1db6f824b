package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/npezzotti/medchat/internal/database"
	"github.com/npezzotti/medchat/internal/types"
)

var messageTypes = map[string]struct{}{
	types.MessageTypeText:  {},
	types.MessageTypeImage: {},
	types.MessageTypeVoice: {},
	types.MessageTypeVideo: {},
}

// Service is the set of chat operations shared by the REST and websocket
// gateways. The actor of every call is the authenticated user.
type Service interface {
	GetUser(ctx context.Context, userId string) (types.User, error)
	ResolveOrCreateRoom(ctx context.Context, userA, userB string) (types.Room, error)
	GetRoom(ctx context.Context, roomId, requesterId string) (types.Room, error)
	ListRooms(ctx context.Context, userId string) ([]types.Room, error)
	ListMessages(ctx context.Context, roomId, requesterId string) ([]types.Message, error)
	SendMessage(ctx context.Context, senderId, receiverId, content, msgType string) (types.Message, error)
	EditMessage(ctx context.Context, messageId, editorId, content string) (types.Message, error)
	DeleteMessage(ctx context.Context, messageId, requesterId string) (types.Message, error)
	MarkRead(ctx context.Context, messageId, readerId string) (types.Message, error)
	ReconcileUnread(ctx context.Context, roomId, userId string) (int, error)
}

type ChatService struct {
	log   *log.Logger
	db    database.ChatRepository
	clock *Clock
}

func NewChatService(logger *log.Logger, db database.ChatRepository) *ChatService {
	return &ChatService{
		log:   logger,
		db:    db,
		clock: NewClock(),
	}
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		Role:         u.Role,
	}
}

// userOrStub returns the directory entry for id, or a summary carrying only
// the id when the account is gone.
func userOrStub(users map[string]types.User, id string) types.User {
	if u, ok := users[id]; ok {
		return u
	}
	return types.User{Id: id}
}

func toMessage(m database.Message, users map[string]types.User) types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		Sender:    userOrStub(users, m.SenderId),
		Receiver:  userOrStub(users, m.ReceiverId),
		Content:   m.Content,
		Type:      m.Type,
		IsRead:    m.IsRead,
		IsEdited:  m.IsEdited,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
	}
}

func (s *ChatService) lookupUsers(ctx context.Context, ids ...string) (map[string]types.User, error) {
	users, err := s.db.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}

	res := make(map[string]types.User, len(users))
	for _, u := range users {
		res[u.Id] = toUser(u)
	}

	return res, nil
}

func (s *ChatService) requireUsers(ctx context.Context, ids ...string) (map[string]types.User, error) {
	users, err := s.lookupUsers(ctx, ids...)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
	}

	return users, nil
}

func (s *ChatService) toRoom(ctx context.Context, r database.Room, users map[string]types.User) types.Room {
	room := types.Room{
		Id: r.Id,
		Participants: []types.User{
			userOrStub(users, r.Participants[0]),
			userOrStub(users, r.Participants[1]),
		},
		LastActivity: r.LastActivity,
		UnreadCount:  r.UnreadCount,
		CreatedAt:    r.CreatedAt,
	}
	if room.UnreadCount == nil {
		room.UnreadCount = make(map[string]int)
	}

	if r.LastMessageId != "" {
		last, err := s.db.GetMessage(ctx, r.LastMessageId)
		switch {
		case err == nil:
			m := toMessage(last, users)
			room.LastMessage = &m
		case !errors.Is(err, database.ErrNotFound):
			s.log.Printf("get last message for room %q: %v", r.Id, err)
		}
	}

	return room
}

func (s *ChatService) GetUser(ctx context.Context, userId string) (types.User, error) {
	u, err := s.db.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.User{}, fmt.Errorf("%w: user %s", ErrNotFound, userId)
		}
		return types.User{}, fmt.Errorf("get user: %w", err)
	}

	return toUser(u), nil
}

// resolveRoom returns the room for the pair, creating it when missing. A
// concurrent create for the same pair loses on the unique pair key and is
// answered with the winner's room.
func (s *ChatService) resolveRoom(ctx context.Context, userA, userB string) (database.Room, error) {
	key := PairKey(userA, userB)

	room, err := s.db.FindRoomByPair(ctx, key)
	if err == nil {
		return checkPair(room, userA, userB)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return database.Room{}, fmt.Errorf("find room: %w", err)
	}

	now := s.clock.Now()
	room, err = s.db.CreateRoom(ctx, database.Room{
		Id:           uuid.NewString(),
		PairKey:      key,
		Participants: [2]string{userA, userB},
		LastActivity: now,
		UnreadCount:  make(map[string]int),
		CreatedAt:    now,
	})
	if errors.Is(err, database.ErrDuplicateRoom) {
		room, err = s.db.FindRoomByPair(ctx, key)
	}
	if err != nil {
		return database.Room{}, fmt.Errorf("create room: %w", err)
	}

	return checkPair(room, userA, userB)
}

// checkPair rejects a room found by pair key whose participants are not
// exactly userA and userB.
func checkPair(room database.Room, userA, userB string) (database.Room, error) {
	p := room.Participants
	if (p[0] == userA && p[1] == userB) || (p[0] == userB && p[1] == userA) {
		return room, nil
	}

	return database.Room{}, fmt.Errorf("room %s: pair key %q does not match participants", room.Id, room.PairKey)
}

func validatePair(userA, userB string) error {
	if userA == "" || userB == "" {
		return invalid("both participants are required")
	}
	if userA == userB {
		return invalid("participants must be distinct")
	}
	return nil
}

func (s *ChatService) ResolveOrCreateRoom(ctx context.Context, userA, userB string) (types.Room, error) {
	if err := validatePair(userA, userB); err != nil {
		return types.Room{}, err
	}

	users, err := s.requireUsers(ctx, userA, userB)
	if err != nil {
		return types.Room{}, err
	}

	room, err := s.resolveRoom(ctx, userA, userB)
	if err != nil {
		return types.Room{}, err
	}

	return s.toRoom(ctx, room, users), nil
}

// participantRoom loads a room and checks that userId belongs to it.
func (s *ChatService) participantRoom(ctx context.Context, roomId, userId string) (database.Room, error) {
	room, err := s.db.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Room{}, fmt.Errorf("%w: room %s", ErrNotFound, roomId)
		}
		return database.Room{}, fmt.Errorf("get room: %w", err)
	}

	if !room.HasParticipant(userId) {
		return database.Room{}, fmt.Errorf("%w: room %s", ErrAccessDenied, roomId)
	}

	return room, nil
}

func (s *ChatService) GetRoom(ctx context.Context, roomId, requesterId string) (types.Room, error) {
	room, err := s.participantRoom(ctx, roomId, requesterId)
	if err != nil {
		return types.Room{}, err
	}

	users, err := s.lookupUsers(ctx, room.Participants[:]...)
	if err != nil {
		return types.Room{}, err
	}

	return s.toRoom(ctx, room, users), nil
}

func (s *ChatService) ListRooms(ctx context.Context, userId string) ([]types.Room, error) {
	rooms, err := s.db.ListRoomsForUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, r := range rooms {
		for _, p := range r.Participants {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				ids = append(ids, p)
			}
		}
	}

	users := make(map[string]types.User)
	if len(ids) > 0 {
		if users, err = s.lookupUsers(ctx, ids...); err != nil {
			return nil, err
		}
	}

	res := make([]types.Room, 0, len(rooms))
	for _, r := range rooms {
		res = append(res, s.toRoom(ctx, r, users))
	}

	return res, nil
}

func (s *ChatService) ListMessages(ctx context.Context, roomId, requesterId string) ([]types.Message, error) {
	room, err := s.participantRoom(ctx, roomId, requesterId)
	if err != nil {
		return nil, err
	}

	messages, err := s.db.ListMessages(ctx, room.Id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	users, err := s.lookupUsers(ctx, room.Participants[:]...)
	if err != nil {
		return nil, err
	}

	res := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		res = append(res, toMessage(m, users))
	}

	return res, nil
}

func (s *ChatService) SendMessage(ctx context.Context, senderId, receiverId, content, msgType string) (types.Message, error) {
	if receiverId == "" {
		return types.Message{}, invalid("receiver is required")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, invalid("content is required")
	}

	if msgType == "" {
		msgType = types.MessageTypeText
	}
	if _, ok := messageTypes[msgType]; !ok {
		return types.Message{}, invalid("unsupported message type %q", msgType)
	}

	if err := validatePair(senderId, receiverId); err != nil {
		return types.Message{}, err
	}

	users, err := s.requireUsers(ctx, senderId, receiverId)
	if err != nil {
		return types.Message{}, err
	}

	room, err := s.resolveRoom(ctx, senderId, receiverId)
	if err != nil {
		return types.Message{}, err
	}

	msg, err := s.db.CreateMessage(ctx, database.Message{
		Id:         uuid.NewString(),
		RoomId:     room.Id,
		SenderId:   senderId,
		ReceiverId: receiverId,
		Content:    content,
		Type:       msgType,
		CreatedAt:  s.clock.Now(),
	})
	switch {
	case errors.Is(err, database.ErrRoomNotUpdated):
		s.log.Printf("send message %q: %v", msg.Id, err)
		if _, err := s.reconcile(ctx, room.Id, receiverId); err != nil {
			s.log.Printf("reconcile unread for room %q: %v", room.Id, err)
		}
	case errors.Is(err, database.ErrNotFound):
		return types.Message{}, fmt.Errorf("%w: room %s", ErrNotFound, room.Id)
	case err != nil:
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	return toMessage(msg, users), nil
}

// ownMessage loads a message and checks that senderId sent it.
func (s *ChatService) ownMessage(ctx context.Context, messageId, senderId string) (database.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Message{}, fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return database.Message{}, fmt.Errorf("get message: %w", err)
	}

	if msg.SenderId != senderId {
		return database.Message{}, notSender(messageId)
	}

	return msg, nil
}

func (s *ChatService) messageView(ctx context.Context, msg database.Message) (types.Message, error) {
	users, err := s.lookupUsers(ctx, msg.SenderId, msg.ReceiverId)
	if err != nil {
		return types.Message{}, err
	}

	return toMessage(msg, users), nil
}

func (s *ChatService) EditMessage(ctx context.Context, messageId, editorId, content string) (types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, invalid("content is required")
	}

	if _, err := s.ownMessage(ctx, messageId, editorId); err != nil {
		return types.Message{}, err
	}

	msg, err := s.db.UpdateMessageContent(ctx, messageId, editorId, content, s.clock.Now())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Message{}, fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	return s.messageView(ctx, msg)
}

func (s *ChatService) DeleteMessage(ctx context.Context, messageId, requesterId string) (types.Message, error) {
	if _, err := s.ownMessage(ctx, messageId, requesterId); err != nil {
		return types.Message{}, err
	}

	msg, err := s.db.DeleteMessage(ctx, messageId, requesterId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Message{}, fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return types.Message{}, fmt.Errorf("delete message: %w", err)
	}

	if !msg.IsRead {
		if err := s.db.DecrementUnread(ctx, msg.RoomId, msg.ReceiverId); err != nil {
			s.log.Printf("decrement unread for room %q: %v", msg.RoomId, err)
		}
	}

	return s.messageView(ctx, msg)
}

func (s *ChatService) MarkRead(ctx context.Context, messageId, readerId string) (types.Message, error) {
	msg, flipped, err := s.db.MarkMessageRead(ctx, messageId, readerId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Message{}, fmt.Errorf("%w: message %s", ErrNotFound, messageId)
		}
		return types.Message{}, fmt.Errorf("mark read: %w", err)
	}

	if flipped {
		if err := s.db.DecrementUnread(ctx, msg.RoomId, readerId); err != nil {
			s.log.Printf("decrement unread for room %q: %v", msg.RoomId, err)
		}
	}

	return s.messageView(ctx, msg)
}

func (s *ChatService) reconcile(ctx context.Context, roomId, userId string) (int, error) {
	count, err := s.db.CountUnread(ctx, roomId, userId)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	if err := s.db.SetUnread(ctx, roomId, userId, count); err != nil {
		return 0, fmt.Errorf("set unread: %w", err)
	}

	return count, nil
}

// ReconcileUnread recomputes userId's unread counter in the room from the
// messages themselves.
func (s *ChatService) ReconcileUnread(ctx context.Context, roomId, userId string) (int, error) {
	room, err := s.participantRoom(ctx, roomId, userId)
	if err != nil {
		return 0, err
	}

	return s.reconcile(ctx, room.Id, userId)
}
