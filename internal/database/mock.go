package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetUser(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockChatRepository) FindRoomByPair(ctx context.Context, pairKey string) (Room, error) {
	args := m.Called(ctx, pairKey)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(ctx context.Context, room Room) (Room, error) {
	args := m.Called(ctx, room)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoom(ctx context.Context, id string) (Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessage(ctx context.Context, id string) (Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) ListMessages(ctx context.Context, roomId string) ([]Message, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) UpdateMessageContent(ctx context.Context, id, senderId, content string, editedAt time.Time) (Message, error) {
	args := m.Called(ctx, id, senderId, content, editedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) DeleteMessage(ctx context.Context, id, senderId string) (Message, error) {
	args := m.Called(ctx, id, senderId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessageRead(ctx context.Context, id, receiverId string) (Message, bool, error) {
	args := m.Called(ctx, id, receiverId)
	return args.Get(0).(Message), args.Bool(1), args.Error(2)
}
func (m *MockChatRepository) DecrementUnread(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) CountUnread(ctx context.Context, roomId, userId string) (int, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) SetUnread(ctx context.Context, roomId, userId string, count int) error {
	args := m.Called(ctx, roomId, userId, count)
	return args.Error(0)
}
