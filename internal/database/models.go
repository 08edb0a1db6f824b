package database

import "time"

type User struct {
	Id           string
	Name         string
	EmailAddress string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id            string
	PairKey       string
	Participants  [2]string
	LastMessageId string
	LastActivity  time.Time
	UnreadCount   map[string]int
	CreatedAt     time.Time
}

// HasParticipant reports whether userId is one of the room's two participants.
func (r Room) HasParticipant(userId string) bool {
	return r.Participants[0] == userId || r.Participants[1] == userId
}

// Peer returns the participant that is not userId.
func (r Room) Peer(userId string) string {
	if r.Participants[0] == userId {
		return r.Participants[1]
	}
	return r.Participants[0]
}

type Message struct {
	Id         string
	RoomId     string
	SenderId   string
	ReceiverId string
	Content    string
	Type       string
	IsRead     bool
	IsEdited   bool
	EditedAt   *time.Time
	CreatedAt  time.Time
}

func copyUnread(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
