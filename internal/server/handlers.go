package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/npezzotti/medchat/internal/chat"
	"github.com/teris-io/shortid"
)

const reasonUserOffline = "user offline"

func (c *Client) handleMessage(msg *ClientMessage) {
	if msg.Event != EventJoinUser && !c.identified {
		c.queueMessage(ErrNotIdentified())
		return
	}

	switch msg.Event {
	case EventJoinUser:
		c.joinUser(msg.Data)
	case EventJoinRoom:
		c.joinRoom(msg.Data)
	case EventSendMessage:
		c.sendChatMessage(msg.Data)
	case EventEditMessage:
		c.editMessage(msg.Data)
	case EventDeleteMessage:
		c.deleteMessage(msg.Data)
	case EventMarkRead:
		c.markRead(msg.Data)
	case EventInitiateCall:
		c.initiateCall(msg.Data)
	case EventCallResponse:
		c.callResponse(msg.Data)
	case EventCallSignal:
		c.callSignal(msg.Data)
	case EventEndCall:
		c.endCall(msg.Data)
	default:
		c.queueMessage(ErrInvalidMessage())
	}
}

func (c *Client) decode(data json.RawMessage, v any) bool {
	if len(data) == 0 {
		c.queueMessage(ErrInvalidMessage())
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.queueMessage(ErrInvalidMessage())
		return false
	}
	return true
}

// actorOk rejects payloads that name an actor other than the connection's
// user. An empty id defaults to the connection's user.
func (c *Client) actorOk(id string) bool {
	if id != "" && id != c.user.Id {
		c.queueMessage(ErrForbidden())
		return false
	}
	return true
}

func (c *Client) reportError(op string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.queueMessage(ErrMessage(errMsgNotFound))
	case errors.Is(err, chat.ErrAccessDenied):
		c.queueMessage(ErrForbidden())
	case errors.Is(err, chat.ErrValidation):
		c.queueMessage(ErrMessage(errMsgInvalidRequest))
	default:
		c.log.Printf("%s: %v", op, err)
		c.queueMessage(ErrInternalError())
	}
}

func (c *Client) joinUser(data json.RawMessage) {
	var req JoinUser
	if !c.decode(data, &req) {
		return
	}

	if req.UserId != c.user.Id {
		c.queueMessage(ErrForbidden())
		return
	}

	if c.identified {
		return
	}

	c.identified = true
	c.chatServer.identify(c)
}

func (c *Client) joinRoom(data json.RawMessage) {
	var req JoinRoom
	if !c.decode(data, &req) || !c.actorOk(req.UserId) {
		return
	}

	if req.RoomId == "" {
		c.queueMessage(ErrMessage(errMsgInvalidRequest))
		return
	}

	if _, err := c.chatServer.chat.GetRoom(context.Background(), req.RoomId, c.user.Id); err != nil {
		c.reportError("join room", err)
		return
	}

	c.chatServer.rooms.join(req.RoomId, c)
}

func (c *Client) sendChatMessage(data json.RawMessage) {
	var req SendMessage
	if !c.decode(data, &req) || !c.actorOk(req.SenderId) {
		return
	}

	ctx := context.Background()
	if l := c.chatServer.limiter; l != nil {
		allowed, err := l.Allow(ctx, c.user.Id)
		if err != nil {
			c.log.Printf("rate limit: %v", err)
		} else if !allowed {
			c.queueMessage(ErrMessage(errMsgRateLimited))
			return
		}
	}

	msg, err := c.chatServer.chat.SendMessage(ctx, c.user.Id, req.ReceiverId, req.Content, req.Type)
	if err != nil {
		c.reportError("send message", err)
		return
	}

	c.chatServer.MessageCreated(msg)
}

func (c *Client) editMessage(data json.RawMessage) {
	var req EditMessage
	if !c.decode(data, &req) || !c.actorOk(req.UserId) {
		return
	}

	msg, err := c.chatServer.chat.EditMessage(context.Background(), req.MessageId, c.user.Id, req.Content)
	if err != nil {
		c.reportError("edit message", err)
		return
	}

	c.chatServer.MessageEdited(msg)
}

func (c *Client) deleteMessage(data json.RawMessage) {
	var req MessageAction
	if !c.decode(data, &req) || !c.actorOk(req.UserId) {
		return
	}

	msg, err := c.chatServer.chat.DeleteMessage(context.Background(), req.MessageId, c.user.Id)
	if err != nil {
		c.reportError("delete message", err)
		return
	}

	c.chatServer.MessageDeleted(msg)
}

func (c *Client) markRead(data json.RawMessage) {
	var req MessageAction
	if !c.decode(data, &req) || !c.actorOk(req.UserId) {
		return
	}

	msg, err := c.chatServer.chat.MarkRead(context.Background(), req.MessageId, c.user.Id)
	if err != nil {
		c.reportError("mark read", err)
		return
	}

	c.chatServer.MessageRead(msg)
}

func (c *Client) initiateCall(data json.RawMessage) {
	var req InitiateCall
	if !c.decode(data, &req) || !c.actorOk(req.CallerId) {
		return
	}

	if req.ReceiverId == "" || req.ReceiverId == c.user.Id {
		c.queueMessage(ErrMessage(errMsgInvalidRequest))
		return
	}

	callId, err := shortid.Generate()
	if err != nil {
		c.reportError("generate call id", err)
		return
	}

	if !c.chatServer.reachable(req.ReceiverId) {
		c.queueMessage(NewServerMessage(EventCallFailed, CallFailed{
			CallId: callId,
			Reason: reasonUserOffline,
		}))
		return
	}

	c.chatServer.pushToUser(req.ReceiverId, NewServerMessage(EventIncomingCall, IncomingCall{
		CallId:     callId,
		CallerId:   c.user.Id,
		CallerName: c.user.Name,
		CallType:   req.CallType,
	}))
}

func (c *Client) callResponse(data json.RawMessage) {
	var req CallResponse
	if !c.decode(data, &req) || !c.actorOk(req.ReceiverId) {
		return
	}

	if req.CallId == "" || req.CallerId == "" {
		c.queueMessage(ErrMessage(errMsgInvalidRequest))
		return
	}

	req.ReceiverId = c.user.Id
	c.chatServer.pushToUser(req.CallerId, NewServerMessage(EventCallResponse, req))
}

func (c *Client) callSignal(data json.RawMessage) {
	var req CallSignal
	if !c.decode(data, &req) {
		return
	}

	if req.CallId == "" || req.TargetId == "" {
		c.queueMessage(ErrMessage(errMsgInvalidRequest))
		return
	}

	req.FromId = c.user.Id
	c.chatServer.pushToUser(req.TargetId, NewServerMessage(EventCallSignal, req))
}

func (c *Client) endCall(data json.RawMessage) {
	var req EndCall
	if !c.decode(data, &req) {
		return
	}

	if req.CallId == "" || req.TargetId == "" {
		c.queueMessage(ErrMessage(errMsgInvalidRequest))
		return
	}

	req.FromId = c.user.Id
	c.chatServer.pushToUser(req.TargetId, NewServerMessage(EventCallEnded, req))
}
