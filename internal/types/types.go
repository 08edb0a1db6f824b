package types

import (
	"time"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVoice = "voice"
	MessageTypeVideo = "video"
)

type User struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email"`
	Role         string `json:"role"`
}

type Room struct {
	Id           string         `json:"id"`
	Participants []User         `json:"participants"`
	LastMessage  *Message       `json:"lastMessage,omitempty"`
	LastActivity time.Time      `json:"lastActivity"`
	UnreadCount  map[string]int `json:"unreadCount"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type Message struct {
	Id        string     `json:"id"`
	RoomId    string     `json:"roomId"`
	Sender    User       `json:"sender"`
	Receiver  User       `json:"receiver"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	IsRead    bool       `json:"isRead"`
	IsEdited  bool       `json:"isEdited"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
