package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"techpaint/internal/auth"
	"techpaint/internal/models"
)

// RoomDirectory is the live chat state the admin API exposes and acts on.
type RoomDirectory interface {
	Rooms() []models.RoomInfo
	DisconnectUser(userID string) int
}

type AdminHandler struct {
	authService *auth.AuthService
	hub         RoomDirectory
}

func NewAdminHandler(authService *auth.AuthService, hub RoomDirectory) *AdminHandler {
	return &AdminHandler{authService: authService, hub: hub}
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddUserRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "E-mail is required")
		return
	}

	user, password, err := h.authService.AddUser(req.Email, req.Name, req.Area)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrInvalidRegistration):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create user: %v", err))
		}
		return
	}

	slog.Info("user added by admin", "user_id", user.ID)
	writeJSON(w, http.StatusOK, models.AddUserResponse{
		APIResponse: ok("User created"),
		User:        user,
		Password:    password,
	})
}

func (h *AdminHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	if err := h.authService.DeleteUser(userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete user: %v", err))
		return
	}

	n := h.hub.DisconnectUser(userID)
	slog.Info("user deleted by admin", "user_id", userID, "connections_closed", n)
	writeJSON(w, http.StatusOK, ok(fmt.Sprintf("User %s deleted", userID)))
}

func (h *AdminHandler) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.RoomsResponse{APIResponse: ok(""), Rooms: h.hub.Rooms()})
}
