package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/sitechat/sitechat/internal/chat"
	"github.com/sitechat/sitechat/internal/config"
	"github.com/sitechat/sitechat/internal/database"
	"github.com/sitechat/sitechat/internal/directory"
	"github.com/sitechat/sitechat/internal/server"
)

type App struct {
	log            *log.Logger
	db             database.ChatRepository
	dir            directory.Directory
	chat           *chat.Service
	hub            *server.Hub
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *log.Logger, hub *server.Hub, chatService *chat.Service,
	dir directory.Directory, db database.ChatRepository, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		db:             db,
		dir:            dir,
		chat:           chatService,
		hub:            hub,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createGroupRoom))
	mux.Handle("POST /api/rooms/private", s.authMiddleware(s.createPrivateRoom))
	mux.Handle("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.Handle("PUT /api/rooms/{id}/name", s.authMiddleware(s.renameRoom))
	mux.Handle("POST /api/rooms/{id}/invite", s.authMiddleware(s.inviteToRoom))
	mux.Handle("POST /api/rooms/{id}/leave", s.authMiddleware(s.leaveRoom))
	mux.Handle("POST /api/rooms/{id}/read", s.authMiddleware(s.markRead))
	mux.Handle("POST /api/rooms/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
