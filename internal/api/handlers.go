package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"techpaint/internal/auth"
	"techpaint/internal/models"
	"techpaint/internal/ws"
)

// Store is the part of the storage layer the REST handlers read and write.
type Store interface {
	Conversations(userID string) ([]models.Conversation, error)
	ListPrivateMessages(userID, contactID string) ([]models.PrivateMessage, error)
	MarkRead(userID, contactID string) (int, error)

	CreateProject(p models.Project) (models.Project, error)
	GetProject(id int64, viewerID string) (models.Project, error)
	ListProjects(viewerID string) ([]models.Project, error)
	Vote(projectID int64, userID string, vote models.VoteType) (models.VoteResult, error)
	AddComment(c models.Comment) (models.Comment, error)
	ListComments(projectID int64) ([]models.Comment, error)

	UpsertPushSubscription(userID string, sub models.PushSubscription) error
}

type API struct {
	auth          *auth.AuthService
	store         Store
	pushPublicKey string
	now           func() time.Time
}

func New(auth *auth.AuthService, store Store, pushPublicKey string) *API {
	return &API{
		auth:          auth,
		store:         store,
		pushPublicKey: pushPublicKey,
		now:           time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.APIResponse{Success: false, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func ok(message string) models.APIResponse {
	return models.APIResponse{Success: true, Message: message}
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and Form.
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !decode(w, r, &req) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Failed to parse form")
			return
		}
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "E-mail and password are required")
		return
	}

	loginResp := a.auth.Login(req)
	if !loginResp.Success {
		writeJSON(w, http.StatusUnauthorized, loginResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})
	writeJSON(w, http.StatusOK, loginResp)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := ws.TokenFromRequest(r); token != "" {
		if err := a.auth.Logoff(token); err != nil {
			slog.Warn("logoff failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, ok("Logged off"))
}

// RegisterStep1Handler stores the first page of the registration wizard.
func (a *API) RegisterStep1Handler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegistrationStep
	if !decode(w, r, &req) {
		return
	}

	token, err := a.auth.StartRegistration(req)
	if err != nil {
		a.registrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RegistrationStepResponse{
		APIResponse: ok(""),
		DraftToken:  token,
	})
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegistrationRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := a.auth.Register(req)
	if err != nil {
		a.registrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UserResponse{
		APIResponse: ok("Registration successful"),
		User:        user,
	})
}

func (a *API) registrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidRegistration), errors.Is(err, auth.ErrUnknownDraft):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
	}
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.UserResponse{
		APIResponse: ok(""),
		User:        userFromContext(r.Context()),
	})
}

func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.URL.Query().Get("exclude"))
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, models.UsersResponse{APIResponse: ok(""), Users: users})
}

func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	conversations, err := a.store.Conversations(user.ID)
	if err != nil {
		slog.Error("failed to list conversations", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, models.ConversationsResponse{
		APIResponse:   ok(""),
		Conversations: conversations,
	})
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	contactID := r.PathValue("contactID")
	if _, err := a.auth.GetUser(contactID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		slog.Error("failed to look up contact", "contact_id", contactID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	messages, err := a.store.ListPrivateMessages(user.ID, contactID)
	if err != nil {
		slog.Error("failed to list messages", "user_id", user.ID, "contact_id", contactID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, models.MessagesResponse{APIResponse: ok(""), Messages: messages})
}

func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req models.MarkReadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ContactID == "" {
		writeError(w, http.StatusBadRequest, "contactId is required")
		return
	}

	n, err := a.store.MarkRead(user.ID, req.ContactID)
	if err != nil {
		slog.Error("failed to mark messages read", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, models.MarkReadResponse{APIResponse: ok(""), Updated: n})
}

func (a *API) PushKeyHandler(w http.ResponseWriter, r *http.Request) {
	if a.pushPublicKey == "" {
		writeError(w, http.StatusNotFound, "Push notifications are disabled")
		return
	}
	writeJSON(w, http.StatusOK, models.PushKeyResponse{APIResponse: ok(""), PublicKey: a.pushPublicKey})
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var sub models.PushSubscription
	if !decode(w, r, &sub) {
		return
	}
	if sub.Endpoint == "" || sub.Keys.Auth == "" || sub.Keys.P256dh == "" {
		writeError(w, http.StatusBadRequest, "Incomplete subscription")
		return
	}
	sub.CreatedAt = a.now().UnixMilli()

	if err := a.store.UpsertPushSubscription(user.ID, sub); err != nil {
		slog.Error("failed to store push subscription", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store subscription")
		return
	}
	writeJSON(w, http.StatusOK, ok("Subscribed"))
}
