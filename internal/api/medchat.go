package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/medchat/internal/chat"
	"github.com/npezzotti/medchat/internal/config"
	"github.com/npezzotti/medchat/internal/database"
	"github.com/npezzotti/medchat/internal/server"
)

type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	chat           chat.Service
	cs             *server.ChatServer
	notify         server.Broadcaster
	limiter        server.Limiter
	srv            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

// NewChatApp wires the REST and websocket routes onto mux. Mutations made
// over HTTP are pushed to online participants through cs.
func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, svc chat.Service, db database.ChatRepository, limiter server.Limiter, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		chat:           svc,
		cs:             cs,
		limiter:        limiter,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	if cs != nil {
		s.notify = cs
	}

	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("GET /api/chat/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("POST /api/chat/rooms/create", s.authMiddleware(s.createRoom))
	mux.HandleFunc("POST /api/chat/rooms/{roomId}/reconcile", s.authMiddleware(s.reconcileUnread))
	mux.HandleFunc("GET /api/chat/messages/{roomId}", s.authMiddleware(s.listMessages))
	mux.HandleFunc("POST /api/chat/messages", s.authMiddleware(s.sendMessage))
	mux.HandleFunc("PUT /api/chat/messages/{id}", s.authMiddleware(s.editMessage))
	mux.HandleFunc("DELETE /api/chat/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/chat/messages/{id}/read", s.authMiddleware(s.markRead))

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	corsMiddleware := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)

	var handler http.Handler = mux
	handler = corsMiddleware(handler)
	handler = s.errorHandler(handler)
	if logger != nil {
		handler = handlers.CombinedLoggingHandler(logger.Writer(), handler)
	}

	s.srv = &http.Server{
		Addr:     cfg.ServerAddr,
		Handler:  handler,
		ErrorLog: logger,
	}

	return s
}

func (s *ChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
