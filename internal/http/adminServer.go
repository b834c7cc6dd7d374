package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"techpaint/internal/api"
	"techpaint/internal/auth"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAdminServer builds the loopback-only administration API.
func NewAdminServer(authService *auth.AuthService, hub api.RoomDirectory, addr string) *AdminServer {
	adminHandler := api.NewAdminHandler(authService, hub)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", adminHandler.AddUserHandler)
	mux.HandleFunc("DELETE /admin/users", adminHandler.DeleteUserHandler)
	mux.HandleFunc("GET /admin/rooms", adminHandler.RoomsHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
