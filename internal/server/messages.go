package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/medchat/internal/types"
)

// client events
const (
	EventJoinUser      = "join_user"
	EventJoinRoom      = "join_room"
	EventSendMessage   = "send_message"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
	EventMarkRead      = "mark_read"
	EventInitiateCall  = "initiate_call"
	EventCallResponse  = "call_response"
	EventCallSignal    = "call_signal"
	EventEndCall       = "end_call"
)

// server events
const (
	EventNewMessage          = "new_message"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventMessageRead         = "message_read"
	EventMessageNotification = "message_notification"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventIncomingCall        = "incoming_call"
	EventCallEnded           = "call_ended"
	EventCallFailed          = "call_failed"
	EventError               = "error"
)

const (
	errMsgInvalidMessage = "invalid message format"
	errMsgNotIdentified  = "not identified"
	errMsgForbidden      = "forbidden"
	errMsgNotFound       = "not found"
	errMsgInvalidRequest = "invalid request"
	errMsgRateLimited    = "rate limited"
	errMsgInternal       = "internal server error"
)

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinUser struct {
	UserId string `json:"userId"`
}

type JoinRoom struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
}

type SendMessage struct {
	SenderId   string `json:"senderId"`
	ReceiverId string `json:"receiverId"`
	Content    string `json:"content"`
	Type       string `json:"type"`
}

type EditMessage struct {
	MessageId string `json:"messageId"`
	Content   string `json:"content"`
	UserId    string `json:"userId"`
}

// MessageAction is the payload of delete_message and mark_read.
type MessageAction struct {
	MessageId string `json:"messageId"`
	UserId    string `json:"userId"`
}

type InitiateCall struct {
	CallerId   string `json:"callerId"`
	ReceiverId string `json:"receiverId"`
	CallType   string `json:"callType"`
}

type CallResponse struct {
	CallId     string          `json:"callId"`
	CallerId   string          `json:"callerId"`
	ReceiverId string          `json:"receiverId"`
	Accepted   bool            `json:"accepted"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type CallSignal struct {
	CallId   string          `json:"callId"`
	TargetId string          `json:"targetId"`
	FromId   string          `json:"fromId,omitempty"`
	Signal   json.RawMessage `json:"signal,omitempty"`
}

type EndCall struct {
	CallId   string `json:"callId"`
	TargetId string `json:"targetId"`
	FromId   string `json:"fromId,omitempty"`
}

type MessageRef struct {
	MessageId string `json:"messageId"`
	RoomId    string `json:"roomId"`
}

type MessageNotification struct {
	Message    types.Message `json:"message"`
	RoomId     string        `json:"roomId"`
	SenderName string        `json:"senderName"`
}

type UserPresence struct {
	UserId string `json:"userId"`
}

type IncomingCall struct {
	CallId     string `json:"callId"`
	CallerId   string `json:"callerId"`
	CallerName string `json:"callerName"`
	CallType   string `json:"callType"`
}

type CallFailed struct {
	CallId string `json:"callId,omitempty"`
	Reason string `json:"reason"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// ServerMessage is a frame pushed to clients. UserId selects the user whose
// connections receive it; an empty UserId reaches every connection except
// those of SkipUser.
type ServerMessage struct {
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SkipUser  string    `json:"-"`
	// raw holds a frame already encoded by another instance.
	raw []byte
}

func NewServerMessage(event string, data any) *ServerMessage {
	return &ServerMessage{
		Event:     event,
		Data:      data,
		Timestamp: Now(),
	}
}

func ErrMessage(message string) *ServerMessage {
	return NewServerMessage(EventError, ErrorMessage{Message: message})
}

func ErrInvalidMessage() *ServerMessage {
	return ErrMessage(errMsgInvalidMessage)
}

func ErrNotIdentified() *ServerMessage {
	return ErrMessage(errMsgNotIdentified)
}

func ErrForbidden() *ServerMessage {
	return ErrMessage(errMsgForbidden)
}

func ErrInternalError() *ServerMessage {
	return ErrMessage(errMsgInternal)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
