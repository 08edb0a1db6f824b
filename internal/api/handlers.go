package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/medchat/internal/server"
	"github.com/npezzotti/medchat/internal/types"
)

type CreateRoomRequest struct {
	ParticipantId string `json:"participantId"`
}

type SendMessageRequest struct {
	ReceiverId string `json:"receiverId"`
	Content    string `json:"content"`
	Type       string `json:"type,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type DeleteMessageResponse struct {
	MessageId string `json:"messageId"`
}

type ReconcileResponse struct {
	RoomId      string `json:"roomId"`
	UnreadCount int    `json:"unreadCount"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// writeError reports a chat service error. Internal causes are logged and
// never returned to the caller.
func (s *ChatApp) writeError(w http.ResponseWriter, op string, err error) {
	errResp := errorFromService(err)
	if errResp.StatusCode == http.StatusInternalServerError {
		s.log.Printf("%s: %v", op, err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ChatApp) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}
	return true
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	rooms, err := s.chat.ListRooms(r.Context(), userId)
	if err != nil {
		s.writeError(w, "list rooms", err)
		return
	}

	if rooms == nil {
		rooms = []types.Room{}
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *ChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req CreateRoomRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	room, err := s.chat.ResolveOrCreateRoom(r.Context(), userId, req.ParticipantId)
	if err != nil {
		s.writeError(w, "create room", err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *ChatApp) reconcileUnread(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	roomId := r.PathValue("roomId")

	count, err := s.chat.ReconcileUnread(r.Context(), roomId, userId)
	if err != nil {
		s.writeError(w, "reconcile unread", err)
		return
	}

	s.writeJson(w, http.StatusOK, ReconcileResponse{RoomId: roomId, UnreadCount: count})
}

func (s *ChatApp) listMessages(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	messages, err := s.chat.ListMessages(r.Context(), r.PathValue("roomId"), userId)
	if err != nil {
		s.writeError(w, "list messages", err)
		return
	}

	if messages == nil {
		messages = []types.Message{}
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req SendMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), userId)
		if err != nil {
			s.log.Printf("rate limit: %v", err)
		} else if !ok {
			errResp := NewTooManyRequestsError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	msg, err := s.chat.SendMessage(r.Context(), userId, req.ReceiverId, req.Content, req.Type)
	if err != nil {
		s.writeError(w, "send message", err)
		return
	}

	if s.notify != nil {
		s.notify.MessageCreated(msg)
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatApp) editMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req EditMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	msg, err := s.chat.EditMessage(r.Context(), r.PathValue("id"), userId, req.Content)
	if err != nil {
		s.writeError(w, "edit message", err)
		return
	}

	if s.notify != nil {
		s.notify.MessageEdited(msg)
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *ChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	msg, err := s.chat.DeleteMessage(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, "delete message", err)
		return
	}

	if s.notify != nil {
		s.notify.MessageDeleted(msg)
	}

	s.writeJson(w, http.StatusOK, DeleteMessageResponse{MessageId: msg.Id})
}

func (s *ChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	msg, err := s.chat.MarkRead(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, "mark read", err)
		return
	}

	if s.notify != nil {
		s.notify.MessageRead(msg)
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.chat.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, "get user", err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
