package chat

import (
	"context"

	"github.com/npezzotti/medchat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetUser(ctx context.Context, userId string) (types.User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockService) ResolveOrCreateRoom(ctx context.Context, userA, userB string) (types.Room, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockService) GetRoom(ctx context.Context, roomId, requesterId string) (types.Room, error) {
	args := m.Called(ctx, roomId, requesterId)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockService) ListRooms(ctx context.Context, userId string) ([]types.Room, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]types.Room), args.Error(1)
}
func (m *MockService) ListMessages(ctx context.Context, roomId, requesterId string) ([]types.Message, error) {
	args := m.Called(ctx, roomId, requesterId)
	return args.Get(0).([]types.Message), args.Error(1)
}
func (m *MockService) SendMessage(ctx context.Context, senderId, receiverId, content, msgType string) (types.Message, error) {
	args := m.Called(ctx, senderId, receiverId, content, msgType)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockService) EditMessage(ctx context.Context, messageId, editorId, content string) (types.Message, error) {
	args := m.Called(ctx, messageId, editorId, content)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockService) DeleteMessage(ctx context.Context, messageId, requesterId string) (types.Message, error) {
	args := m.Called(ctx, messageId, requesterId)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockService) MarkRead(ctx context.Context, messageId, readerId string) (types.Message, error) {
	args := m.Called(ctx, messageId, readerId)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockService) ReconcileUnread(ctx context.Context, roomId, userId string) (int, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Int(0), args.Error(1)
}
