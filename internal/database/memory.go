package database

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryChatRepository keeps users, rooms and messages in process memory.
// It is used for local development and as the backing store in tests.
type MemoryChatRepository struct {
	mu           sync.RWMutex
	users        map[string]User
	rooms        map[string]*Room
	pairs        map[string]string
	messages     map[string]*Message
	roomMessages map[string][]string
}

func NewMemoryChatRepository(users ...User) *MemoryChatRepository {
	db := &MemoryChatRepository{
		users:        make(map[string]User),
		rooms:        make(map[string]*Room),
		pairs:        make(map[string]string),
		messages:     make(map[string]*Message),
		roomMessages: make(map[string][]string),
	}

	for _, u := range users {
		db.users[u.Id] = u
	}

	return db
}

// AddUser inserts or replaces a user in the directory.
func (db *MemoryChatRepository) AddUser(_ context.Context, u User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.users[u.Id] = u
	return nil
}

func (db *MemoryChatRepository) Ping(_ context.Context) error {
	return nil
}

func (db *MemoryChatRepository) Close() error {
	return nil
}

func (db *MemoryChatRepository) GetUser(_ context.Context, id string) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return User{}, ErrNotFound
	}

	return u, nil
}

func (db *MemoryChatRepository) GetUserByEmail(_ context.Context, email string) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.EmailAddress == email {
			return u, nil
		}
	}

	return User{}, ErrNotFound
}

func (db *MemoryChatRepository) GetUsers(_ context.Context, ids []string) ([]User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := db.users[id]; ok {
			users = append(users, u)
		}
	}

	return users, nil
}

func (db *MemoryChatRepository) roomCopy(r *Room) Room {
	cp := *r
	cp.UnreadCount = copyUnread(r.UnreadCount)
	return cp
}

func (db *MemoryChatRepository) FindRoomByPair(_ context.Context, pairKey string) (Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.pairs[pairKey]
	if !ok {
		return Room{}, ErrNotFound
	}

	return db.roomCopy(db.rooms[id]), nil
}

func (db *MemoryChatRepository) CreateRoom(_ context.Context, room Room) (Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.pairs[room.PairKey]; ok {
		return Room{}, ErrDuplicateRoom
	}

	r := room
	r.UnreadCount = copyUnread(room.UnreadCount)
	db.rooms[r.Id] = &r
	db.pairs[r.PairKey] = r.Id

	return db.roomCopy(&r), nil
}

func (db *MemoryChatRepository) GetRoom(_ context.Context, id string) (Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}

	return db.roomCopy(r), nil
}

func (db *MemoryChatRepository) ListRoomsForUser(_ context.Context, userId string) ([]Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rooms := make([]Room, 0)
	for _, r := range db.rooms {
		if r.HasParticipant(userId) {
			rooms = append(rooms, db.roomCopy(r))
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActivity.Equal(rooms[j].LastActivity) {
			return rooms[i].Id > rooms[j].Id
		}
		return rooms[i].LastActivity.After(rooms[j].LastActivity)
	})

	return rooms, nil
}

func (db *MemoryChatRepository) CreateMessage(_ context.Context, msg Message) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	room, ok := db.rooms[msg.RoomId]
	if !ok {
		return Message{}, ErrNotFound
	}

	m := msg
	m.IsRead = false
	m.IsEdited = false
	m.EditedAt = nil
	db.messages[m.Id] = &m
	db.roomMessages[m.RoomId] = append(db.roomMessages[m.RoomId], m.Id)

	room.LastMessageId = m.Id
	room.LastActivity = m.CreatedAt
	room.UnreadCount[m.ReceiverId]++

	return m, nil
}

func (db *MemoryChatRepository) GetMessage(_ context.Context, id string) (Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}

	return *m, nil
}

func (db *MemoryChatRepository) ListMessages(_ context.Context, roomId string) ([]Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := db.roomMessages[roomId]
	messages := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := db.messages[id]; ok {
			messages = append(messages, *m)
		}
	}

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].Id < messages[j].Id
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	return messages, nil
}

func (db *MemoryChatRepository) UpdateMessageContent(_ context.Context, id, senderId, content string, editedAt time.Time) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.messages[id]
	if !ok || m.SenderId != senderId {
		return Message{}, ErrNotFound
	}

	m.Content = content
	m.IsEdited = true
	t := editedAt
	m.EditedAt = &t

	return *m, nil
}

func (db *MemoryChatRepository) DeleteMessage(_ context.Context, id, senderId string) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.messages[id]
	if !ok || m.SenderId != senderId {
		return Message{}, ErrNotFound
	}

	delete(db.messages, id)
	ids := db.roomMessages[m.RoomId]
	for i, mid := range ids {
		if mid == id {
			db.roomMessages[m.RoomId] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}

	return *m, nil
}

func (db *MemoryChatRepository) MarkMessageRead(_ context.Context, id, receiverId string) (Message, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.messages[id]
	if !ok || m.ReceiverId != receiverId {
		return Message{}, false, ErrNotFound
	}

	if m.IsRead {
		return *m, false, nil
	}

	m.IsRead = true
	return *m, true, nil
}

func (db *MemoryChatRepository) DecrementUnread(_ context.Context, roomId, userId string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.rooms[roomId]
	if !ok {
		return nil
	}

	if r.UnreadCount[userId] > 0 {
		r.UnreadCount[userId]--
	}

	return nil
}

func (db *MemoryChatRepository) CountUnread(_ context.Context, roomId, userId string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	count := 0
	for _, id := range db.roomMessages[roomId] {
		if m, ok := db.messages[id]; ok && m.ReceiverId == userId && !m.IsRead {
			count++
		}
	}

	return count, nil
}

func (db *MemoryChatRepository) SetUnread(_ context.Context, roomId, userId string, count int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.rooms[roomId]
	if !ok {
		return ErrNotFound
	}

	if count < 0 {
		count = 0
	}
	r.UnreadCount[userId] = count

	return nil
}
