package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"techpaint/internal/content"
	"techpaint/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	DraftExpiry        = 30 * time.Minute
	loginFailedMessage = "Invalid credentials"
)

var (
	ErrUserExists          = errors.New("e-mail is already registered")
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrUnknownDraft        = errors.New("registration draft not found or expired")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message,omitempty"`
	Token       string       `json:"token,omitempty"`
	TokenExpiry int64        `json:"tokenExpiry,omitempty"`
	User        *models.User `json:"user,omitempty"`
}

// RegistrationStep is the first page of the registration wizard.
// It is held server side until the second page is submitted.
type RegistrationStep struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Area      string `json:"area"`
}

type RegistrationRequest struct {
	// DraftToken refers to a stored RegistrationStep. When set, Name and
	// Area are taken from the draft.
	DraftToken string `json:"draftToken,omitempty"`
	Name       string `json:"name,omitempty"`
	Area       string `json:"area,omitempty"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	GitHub     string `json:"github,omitempty"`
}

type UserCredentials struct {
	models.User
	PasswordHash string
	CreatedAt    int64
}

// StoredToken is the persisted form of a session token. Only the keyed
// hash of the token is stored.
type StoredToken struct {
	Hash      string
	UserID    string
	ExpiresAt int64 // Unix seconds
}

type Storage interface {
	CreateUser(UserCredentials) error
	GetUser(id string) (UserCredentials, error)
	GetUserByEmail(email string) (UserCredentials, error)
	ListUsers() ([]models.User, error)
	DeleteUser(id string) error
	UpsertToken(StoredToken) error
	DeleteToken(hash string) error
	ListTokens() ([]StoredToken, error)
}

type loginAttempts struct {
	Failed      int64
	LastAttempt int64
}

type Config struct {
	Secret          string        `json:"secret"`
	secretBytes     []byte        `json:"-"`
	TokenExpiry     time.Duration `json:"tokenExpiry"`
	CorporateDomain string        `json:"corporateDomain"`
	BcryptCost      int           `json:"bcryptCost"`
}

type AuthService struct {
	Config
	storage    Storage
	attempts   *geche.Locker[string, *loginAttempts]
	liveTokens geche.Geche[string, StoredToken]
	drafts     geche.Geche[string, RegistrationStep]
	now        func() time.Time
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}

	return nil
}

func NewAuthService(ctx context.Context, config Config, storage Storage) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	as := &AuthService{
		Config:     config,
		storage:    storage,
		attempts:   geche.NewLocker[string, *loginAttempts](geche.NewMapCache[string, *loginAttempts]()),
		liveTokens: geche.NewMapTTLCache[string, StoredToken](ctx, config.TokenExpiry, time.Minute),
		drafts:     geche.NewMapTTLCache[string, RegistrationStep](ctx, DraftExpiry, time.Minute),
		now:        time.Now,
	}

	if err := as.restoreTokens(); err != nil {
		return nil, err
	}

	return as, nil
}

// restoreTokens loads persisted sessions that have not expired yet and
// drops the rest.
func (as *AuthService) restoreTokens() error {
	tokens, err := as.storage.ListTokens()
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}
	now := as.now().Unix()
	for _, t := range tokens {
		if t.ExpiresAt <= now {
			if err := as.storage.DeleteToken(t.Hash); err != nil {
				slog.Warn("failed to delete expired token", "user_id", t.UserID, "error", err)
			}
			continue
		}
		as.liveTokens.Set(t.Hash, t)
	}
	return nil
}

func (as *AuthService) hashToken(token string) string {
	h := hmac.New(sha256.New, as.secretBytes)
	h.Write([]byte(token))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// StartRegistration validates the first wizard page and returns a draft
// token to be sent with the second page.
func (as *AuthService) StartRegistration(step RegistrationStep) (string, error) {
	step.FirstName = content.Clean(step.FirstName, content.MaxNameLength)
	step.LastName = content.Clean(step.LastName, content.MaxNameLength)
	step.Area = content.Clean(step.Area, content.MaxNameLength)

	if step.FirstName == "" || step.LastName == "" || step.Area == "" {
		return "", fmt.Errorf("%w: all fields are required", ErrInvalidRegistration)
	}
	if err := content.ValidateName(step.FirstName); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	if err := content.ValidateName(step.LastName); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}

	token, err := as.generateToken()
	if err != nil {
		return "", err
	}
	as.drafts.Set(token, step)
	return token, nil
}

func (as *AuthService) Register(req RegistrationRequest) (models.User, error) {
	if req.DraftToken != "" {
		step, err := as.drafts.Get(req.DraftToken)
		if err != nil {
			return models.User{}, ErrUnknownDraft
		}
		req.Name = step.FirstName + " " + step.LastName
		req.Area = step.Area
	}

	name := content.Clean(req.Name, content.MaxNameLength)
	area := content.Clean(req.Area, content.MaxNameLength)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	github := strings.TrimSpace(req.GitHub)

	if name == "" || email == "" || req.Password == "" || area == "" {
		return models.User{}, fmt.Errorf("%w: all fields are required", ErrInvalidRegistration)
	}
	for _, err := range []error{
		content.ValidateName(name),
		content.ValidateEmail(email, as.CorporateDomain),
		content.ValidatePassword(req.Password),
		content.ValidateGitHub(github),
	} {
		if err != nil {
			return models.User{}, fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), as.BcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	creds := UserCredentials{
		User: models.User{
			ID:     uuid.NewString(),
			Name:   name,
			Email:  email,
			Area:   area,
			GitHub: github,
		},
		PasswordHash: string(hash),
		CreatedAt:    as.now().Unix(),
	}
	if err := as.storage.CreateUser(creds); err != nil {
		return models.User{}, err
	}

	if req.DraftToken != "" {
		_ = as.drafts.Del(req.DraftToken)
	}

	slog.Info("user registered", "user_id", creds.ID, "area", creds.Area)
	return creds.User, nil
}

// AddUser creates an account on behalf of an administrator with a random
// initial password, which is returned once.
func (as *AuthService) AddUser(email, name, area string) (models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if area == "" {
		area = "General"
	}

	password, err := as.generateToken()
	if err != nil {
		return models.User{}, "", err
	}
	u, err := as.Register(RegistrationRequest{
		Name:     name,
		Area:     area,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return models.User{}, "", err
	}
	return u, password, nil
}

func (as *AuthService) Login(req LoginRequest) LoginResponse {
	now := as.now()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	tx := as.attempts.Lock()
	defer tx.Unlock()

	attempts, err := tx.Get(email)
	if err != nil {
		attempts = &loginAttempts{}
		tx.Set(email, attempts)
	}

	// Check failed login attempts
	if attempts.Failed > 3 {
		nextAttempt := attempts.LastAttempt + 30*(attempts.Failed*attempts.Failed)
		if now.Unix() < nextAttempt {
			return LoginResponse{
				Success: false,
				Message: fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", nextAttempt-now.Unix()),
			}
		}
	}

	user, err := as.storage.GetUserByEmail(email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("login lookup failed", "error", err)
		}
		attempts.Failed++
		attempts.LastAttempt = now.Unix()
		return LoginResponse{Success: false, Message: loginFailedMessage}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		attempts.Failed++
		attempts.LastAttempt = now.Unix()
		return LoginResponse{Success: false, Message: loginFailedMessage}
	}

	token, err := as.generateToken()
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return LoginResponse{Success: false, Message: "internal error"}
	}

	stored := StoredToken{
		Hash:      as.hashToken(token),
		UserID:    user.ID,
		ExpiresAt: now.Add(as.TokenExpiry).Unix(),
	}
	if err := as.storage.UpsertToken(stored); err != nil {
		slog.Error("failed to persist token", "user_id", user.ID, "error", err)
		return LoginResponse{Success: false, Message: "internal error"}
	}
	as.liveTokens.Set(stored.Hash, stored)

	attempts.Failed = 0
	attempts.LastAttempt = now.Unix()

	u := user.User
	return LoginResponse{
		Success:     true,
		Message:     "Login successful",
		Token:       token,
		TokenExpiry: stored.ExpiresAt,
		User:        &u,
	}
}

func (as *AuthService) Logoff(token string) error {
	hash := as.hashToken(token)
	_ = as.liveTokens.Del(hash)
	return as.storage.DeleteToken(hash)
}

func (as *AuthService) generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (as *AuthService) GetUserID(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	t, err := as.liveTokens.Get(as.hashToken(token))
	if err != nil {
		return "", ErrInvalidToken
	}
	if t.ExpiresAt <= as.now().Unix() {
		return "", ErrInvalidToken
	}
	return t.UserID, nil
}

// Authenticate resolves a token to the full user record.
func (as *AuthService) Authenticate(token string) (models.User, error) {
	id, err := as.GetUserID(token)
	if err != nil {
		return models.User{}, err
	}
	return as.GetUser(id)
}

func (as *AuthService) GetUser(id string) (models.User, error) {
	creds, err := as.storage.GetUser(id)
	if err != nil {
		return models.User{}, err
	}
	return creds.User, nil
}

// ListUsers returns every user except excludeID, sorted by name.
func (as *AuthService) ListUsers(excludeID string) ([]models.User, error) {
	users, err := as.storage.ListUsers()
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID == excludeID {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// DeleteUser removes the user and invalidates their live sessions.
func (as *AuthService) DeleteUser(id string) error {
	if err := as.storage.DeleteUser(id); err != nil {
		return err
	}
	tokens, err := as.storage.ListTokens()
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t.UserID != id {
			continue
		}
		_ = as.liveTokens.Del(t.Hash)
		if err := as.storage.DeleteToken(t.Hash); err != nil {
			return err
		}
	}
	return nil
}
