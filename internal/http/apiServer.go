package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"techpaint/internal/api"
	"techpaint/internal/auth"
	"techpaint/internal/storage"
	"techpaint/internal/ws"
	"techpaint/static"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(authService *auth.AuthService, hub *ws.Hub, storage *storage.BboltStorage, pushPublicKey, addr string) *APIServer {
	server := ws.NewServer(authService, hub)
	apiHandlers := api.New(authService, storage, pushPublicKey)

	mux := http.NewServeMux()

	// Pages, with a session check on the guarded ones
	mux.HandleFunc("GET /", NewPageHandler(authService, static.Content))

	// API endpoints
	mux.HandleFunc("POST /api/login", api.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("POST /api/register/step1", api.RequireSameOrigin(apiHandlers.RegisterStep1Handler))
	mux.HandleFunc("POST /api/register", api.RequireSameOrigin(apiHandlers.RegisterHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("GET /api/users", apiHandlers.RequireAuth(apiHandlers.UsersHandler))
	mux.HandleFunc("GET /api/conversations", apiHandlers.RequireAuth(apiHandlers.ConversationsHandler))
	mux.HandleFunc("GET /api/messages/{contactID}", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("POST /api/messages/read", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.MarkReadHandler)))
	mux.HandleFunc("GET /api/projects", apiHandlers.RequireAuth(apiHandlers.ListProjectsHandler))
	mux.HandleFunc("POST /api/projects", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.CreateProjectHandler)))
	mux.HandleFunc("POST /api/projects/{id}/vote", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.VoteHandler)))
	mux.HandleFunc("GET /api/projects/{id}/comments", apiHandlers.RequireAuth(apiHandlers.CommentsHandler))
	mux.HandleFunc("POST /api/projects/{id}/comments", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.AddCommentHandler)))
	mux.HandleFunc("GET /api/push/key", apiHandlers.RequireAuth(apiHandlers.PushKeyHandler))
	mux.HandleFunc("POST /api/push/subscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler)))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/chat", server.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler exposes the routing table, mostly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
