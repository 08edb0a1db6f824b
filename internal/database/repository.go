package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user, room or message does not exist or
	// does not match the ownership filter of the query.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateRoom is returned by CreateRoom when a room for the same
	// unordered participant pair already exists.
	ErrDuplicateRoom = errors.New("room already exists for participants")
	// ErrRoomNotUpdated is returned by CreateMessage when the message was
	// stored but the room bookkeeping (last message, unread counter) failed.
	// The returned message is valid in that case.
	ErrRoomNotUpdated = errors.New("message stored but room not updated")
)

type ChatRepository interface {
	Ping(ctx context.Context) error
	Close() error

	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsers(ctx context.Context, ids []string) ([]User, error)

	FindRoomByPair(ctx context.Context, pairKey string) (Room, error)
	CreateRoom(ctx context.Context, room Room) (Room, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRoomsForUser(ctx context.Context, userId string) ([]Room, error)

	CreateMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	ListMessages(ctx context.Context, roomId string) ([]Message, error)
	UpdateMessageContent(ctx context.Context, id, senderId, content string, editedAt time.Time) (Message, error)
	DeleteMessage(ctx context.Context, id, senderId string) (Message, error)
	MarkMessageRead(ctx context.Context, id, receiverId string) (Message, bool, error)

	DecrementUnread(ctx context.Context, roomId, userId string) error
	CountUnread(ctx context.Context, roomId, userId string) (int, error)
	SetUnread(ctx context.Context, roomId, userId string, count int) error
}
