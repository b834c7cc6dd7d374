// Package client talks to the TechPaint server: the JSON REST API and the
// real-time chat socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"techpaint/internal/auth"
	"techpaint/internal/content"
	"techpaint/internal/models"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptyTitle   = errors.New("project title is required")
	ErrNotInRoom    = errors.New("not in a room")
	ErrNoRecipient  = errors.New("recipient is required")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type REST struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewREST(baseURL, token string) *REST {
	return &REST{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *REST) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("token", c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var r models.APIResponse
		if json.Unmarshal(data, &r) == nil && r.Message != "" {
			apiErr.Message = r.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Login authenticates and keeps the token for later calls.
func (c *REST) Login(ctx context.Context, email, password string) (auth.LoginResponse, error) {
	var resp auth.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", auth.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return resp, err
	}
	c.Token = resp.Token
	return resp, nil
}

func (c *REST) Logoff(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/logoff", nil, nil)
	c.Token = ""
	return err
}

// StartRegistration submits the first registration page and returns the
// draft token for the second.
func (c *REST) StartRegistration(ctx context.Context, step auth.RegistrationStep) (string, error) {
	var resp models.RegistrationStepResponse
	if err := c.do(ctx, http.MethodPost, "/api/register/step1", step, &resp); err != nil {
		return "", err
	}
	return resp.DraftToken, nil
}

func (c *REST) Register(ctx context.Context, req auth.RegistrationRequest) (models.User, error) {
	var resp models.UserResponse
	err := c.do(ctx, http.MethodPost, "/api/register", req, &resp)
	return resp.User, err
}

func (c *REST) Me(ctx context.Context) (models.User, error) {
	var resp models.UserResponse
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &resp)
	return resp.User, err
}

// Users lists registered users except excludeID.
func (c *REST) Users(ctx context.Context, excludeID string) ([]models.User, error) {
	path := "/api/users"
	if excludeID != "" {
		path += "?exclude=" + url.QueryEscape(excludeID)
	}
	var resp models.UsersResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Users, err
}

func (c *REST) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var resp models.ConversationsResponse
	err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &resp)
	return resp.Conversations, err
}

func (c *REST) Messages(ctx context.Context, contactID string) ([]models.PrivateMessage, error) {
	var resp models.MessagesResponse
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(contactID), nil, &resp)
	return resp.Messages, err
}

func (c *REST) MarkRead(ctx context.Context, contactID string) (int, error) {
	var resp models.MarkReadResponse
	err := c.do(ctx, http.MethodPost, "/api/messages/read", models.MarkReadRequest{ContactID: contactID}, &resp)
	return resp.Updated, err
}

func (c *REST) Projects(ctx context.Context) ([]models.Project, error) {
	var resp models.ProjectsResponse
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, &resp)
	return resp.Projects, err
}

func (c *REST) CreateProject(ctx context.Context, req models.CreateProjectRequest) (models.Project, error) {
	if strings.TrimSpace(req.Title) == "" {
		return models.Project{}, ErrEmptyTitle
	}
	if err := content.ValidateRepoURL(strings.TrimSpace(req.GitHubURL)); err != nil {
		return models.Project{}, err
	}
	var resp models.ProjectResponse
	err := c.do(ctx, http.MethodPost, "/api/projects", req, &resp)
	return resp.Project, err
}

func projectPath(id int64) string {
	return "/api/projects/" + strconv.FormatInt(id, 10)
}

func (c *REST) Vote(ctx context.Context, projectID int64, vote models.VoteType) (models.VoteResult, error) {
	if !vote.Valid() {
		return models.VoteResult{}, fmt.Errorf("unknown vote %q", vote)
	}
	var resp models.VoteResponse
	err := c.do(ctx, http.MethodPost, projectPath(projectID)+"/vote", models.VoteRequest{Type: vote}, &resp)
	return resp.VoteResult, err
}

func (c *REST) Comments(ctx context.Context, projectID int64) ([]models.Comment, error) {
	var resp models.CommentsResponse
	err := c.do(ctx, http.MethodGet, projectPath(projectID)+"/comments", nil, &resp)
	return resp.Comments, err
}

func (c *REST) AddComment(ctx context.Context, projectID int64, text string) (models.Comment, error) {
	if content.ValidateMessage(text) != nil {
		return models.Comment{}, ErrEmptyMessage
	}
	var resp models.CommentResponse
	err := c.do(ctx, http.MethodPost, projectPath(projectID)+"/comments", models.CommentRequest{Text: text}, &resp)
	return resp.Comment, err
}
