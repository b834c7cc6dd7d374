package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"techpaint/internal/auth"
	"techpaint/internal/models"
	"techpaint/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeHub struct {
	rooms        []models.RoomInfo
	disconnected []string
}

func (f *fakeHub) Rooms() []models.RoomInfo { return f.rooms }

func (f *fakeHub) DisconnectUser(userID string) int {
	f.disconnected = append(f.disconnected, userID)
	return 1
}

type testEnv struct {
	auth  *auth.AuthService
	store *storage.BboltStorage
	hub   *fakeHub
	mux   *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	as, err := auth.NewAuthService(ctx, auth.Config{
		Secret:          base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		CorporateDomain: "techpaint.com",
		BcryptCost:      bcrypt.MinCost,
	}, store)
	require.NoError(t, err)

	a := New(as, store, "vapid-public")
	hub := &fakeHub{rooms: []models.RoomInfo{{Name: "general", Users: []string{"Alice"}}}}
	admin := NewAdminHandler(as, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", RequireSameOrigin(a.LoginHandler))
	mux.HandleFunc("POST /api/logoff", RequireSameOrigin(a.LogoffHandler))
	mux.HandleFunc("POST /api/register/step1", RequireSameOrigin(a.RegisterStep1Handler))
	mux.HandleFunc("POST /api/register", RequireSameOrigin(a.RegisterHandler))
	mux.HandleFunc("GET /api/me", a.RequireAuth(a.MeHandler))
	mux.HandleFunc("GET /api/users", a.RequireAuth(a.UsersHandler))
	mux.HandleFunc("GET /api/conversations", a.RequireAuth(a.ConversationsHandler))
	mux.HandleFunc("GET /api/messages/{contactID}", a.RequireAuth(a.MessagesHandler))
	mux.HandleFunc("POST /api/messages/read", RequireSameOrigin(a.RequireAuth(a.MarkReadHandler)))
	mux.HandleFunc("GET /api/projects", a.RequireAuth(a.ListProjectsHandler))
	mux.HandleFunc("POST /api/projects", RequireSameOrigin(a.RequireAuth(a.CreateProjectHandler)))
	mux.HandleFunc("POST /api/projects/{id}/vote", RequireSameOrigin(a.RequireAuth(a.VoteHandler)))
	mux.HandleFunc("GET /api/projects/{id}/comments", a.RequireAuth(a.CommentsHandler))
	mux.HandleFunc("POST /api/projects/{id}/comments", RequireSameOrigin(a.RequireAuth(a.AddCommentHandler)))
	mux.HandleFunc("GET /api/push/key", a.RequireAuth(a.PushKeyHandler))
	mux.HandleFunc("POST /api/push/subscribe", RequireSameOrigin(a.RequireAuth(a.PushSubscribeHandler)))
	mux.HandleFunc("POST /admin/users", admin.AddUserHandler)
	mux.HandleFunc("DELETE /admin/users", admin.DeleteUserHandler)
	mux.HandleFunc("GET /admin/rooms", admin.RoomsHandler)

	return &testEnv{auth: as, store: store, hub: hub, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (e *testEnv) register(t *testing.T, name, email string) (models.User, string) {
	t.Helper()
	var reg models.UserResponse
	code := e.do(t, http.MethodPost, "/api/register", "", auth.RegistrationRequest{
		Name:     name,
		Area:     "Engineering",
		Email:    email,
		Password: "password123",
	}, &reg)
	require.Equal(t, http.StatusOK, code)

	var login auth.LoginResponse
	code = e.do(t, http.MethodPost, "/api/login", "", auth.LoginRequest{Email: email, Password: "password123"}, &login)
	require.Equal(t, http.StatusOK, code)
	require.True(t, login.Success)
	return reg.User, login.Token
}

func TestRegistrationWizard(t *testing.T) {
	e := newTestEnv(t)

	var step models.RegistrationStepResponse
	code := e.do(t, http.MethodPost, "/api/register/step1", "", auth.RegistrationStep{
		FirstName: "Ana", LastName: "Lopez", Area: "Design",
	}, &step)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, step.DraftToken)

	var reg models.UserResponse
	code = e.do(t, http.MethodPost, "/api/register", "", auth.RegistrationRequest{
		DraftToken: step.DraftToken,
		Email:      "ana@techpaint.com",
		Password:   "password123",
	}, &reg)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ana Lopez", reg.User.Name)
	assert.Equal(t, "Design", reg.User.Area)

	var resp models.APIResponse
	code = e.do(t, http.MethodPost, "/api/register", "", auth.RegistrationRequest{
		Name: "Ana Again", Area: "Design", Email: "ana@techpaint.com", Password: "password123",
	}, &resp)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)

	code = e.do(t, http.MethodPost, "/api/register", "", auth.RegistrationRequest{
		Name: "Eve", Area: "Design", Email: "eve@elsewhere.com", Password: "password123",
	}, &resp)
	assert.Equal(t, http.StatusBadRequest, code)

	code = e.do(t, http.MethodPost, "/api/register/step1", "", auth.RegistrationStep{FirstName: "A"}, &resp)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoginLogoff(t *testing.T) {
	e := newTestEnv(t)
	user, token := e.register(t, "Alice Smith", "alice@techpaint.com")

	var me models.UserResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/me", token, nil, &me))
	assert.Equal(t, user.ID, me.User.ID)
	assert.Equal(t, "alice@techpaint.com", me.User.Email)

	var resp models.APIResponse
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/login", "", auth.LoginRequest{
		Email: "alice@techpaint.com", Password: "wrong-password",
	}, &resp))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/login", "", auth.LoginRequest{}, &resp))

	t.Run("cookie is set on login", func(t *testing.T) {
		body, _ := json.Marshal(auth.LoginRequest{Email: "alice@techpaint.com", Password: "password123"})
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "token", cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
	})

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/logoff", token, nil, &resp))
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/me", token, nil, &resp))
}

func TestRequireAuth(t *testing.T) {
	e := newTestEnv(t)
	var resp models.APIResponse
	for _, path := range []string{"/api/me", "/api/users", "/api/conversations", "/api/projects"} {
		assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, path, "", nil, &resp), path)
		assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, path, "bogus", nil, &resp), path)
	}
}

func TestRequireSameOrigin(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.register(t, "Alice Smith", "alice@techpaint.com")

	body, _ := json.Marshal(models.CreateProjectRequest{Title: "x", GitHubURL: "https://github.com/a/b"})
	req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader(body))
	req.Header.Set("token", token)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader(body))
	req.Header.Set("token", token)
	req.Header.Set("Origin", "http://"+req.Host)
	rec = httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUsersAndMessages(t *testing.T) {
	e := newTestEnv(t)
	alice, aliceToken := e.register(t, "Alice Smith", "alice@techpaint.com")
	bob, bobToken := e.register(t, "Bob Jones", "bob@techpaint.com")

	var users models.UsersResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/users?exclude="+alice.ID, aliceToken, nil, &users))
	require.Len(t, users.Users, 1)
	assert.Equal(t, bob.ID, users.Users[0].ID)

	for _, text := range []string{"hi", "are you there?"} {
		_, err := e.store.AddPrivateMessage(models.PrivateMessage{From: bob.ID, To: alice.ID, Text: text, Timestamp: 1})
		require.NoError(t, err)
	}

	var convs models.ConversationsResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/conversations", aliceToken, nil, &convs))
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, bob.ID, convs.Conversations[0].ID)
	assert.Equal(t, "are you there?", convs.Conversations[0].LastMessage)
	assert.Equal(t, 2, convs.Conversations[0].Unread)

	var msgs models.MessagesResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/messages/"+bob.ID, aliceToken, nil, &msgs))
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "hi", msgs.Messages[0].Text)

	var resp models.APIResponse
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/messages/nobody", aliceToken, nil, &resp))

	var read models.MarkReadResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/messages/read", aliceToken, models.MarkReadRequest{ContactID: bob.ID}, &read))
	assert.Equal(t, 2, read.Updated)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/conversations", aliceToken, nil, &convs))
	assert.Equal(t, 0, convs.Conversations[0].Unread)

	// Bob's own messages are not unread for him.
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/conversations", bobToken, nil, &convs))
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, 0, convs.Conversations[0].Unread)
}

func TestProjects(t *testing.T) {
	e := newTestEnv(t)
	_, aliceToken := e.register(t, "Alice Smith", "alice@techpaint.com")
	_, bobToken := e.register(t, "Bob Jones", "bob@techpaint.com")

	var resp models.APIResponse
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/projects", aliceToken,
		models.CreateProjectRequest{GitHubURL: "https://github.com/a/b"}, &resp))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/projects", aliceToken,
		models.CreateProjectRequest{Title: "Paint", GitHubURL: "javascript:alert(1)"}, &resp))

	var created models.ProjectResponse
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/projects", aliceToken, models.CreateProjectRequest{
		Title:        "Paint Mixer",
		Description:  "**fast** <script>alert(1)</script>",
		GitHubURL:    "https://github.com/techpaint/mixer",
		Technologies: "Go, bbolt",
	}, &created))
	p := created.Project
	assert.Equal(t, "Alice Smith", p.UserName)
	assert.Contains(t, p.DescriptionHTML, "<strong>fast</strong>")
	assert.NotContains(t, p.DescriptionHTML, "<script>")

	path := "/api/projects/" + strconv.FormatInt(p.ID, 10)

	var vote models.VoteResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, path+"/vote", bobToken, models.VoteRequest{Type: models.VoteLike}, &vote))
	assert.Equal(t, 1, vote.Likes)
	assert.Equal(t, models.VoteLike, vote.UserVote)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, path+"/vote", bobToken, models.VoteRequest{Type: models.VoteDislike}, &vote))
	assert.Equal(t, 0, vote.Likes)
	assert.Equal(t, 1, vote.Dislikes)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, path+"/vote", bobToken, models.VoteRequest{Type: models.VoteDislike}, &vote))
	assert.Equal(t, 0, vote.Dislikes)
	assert.Empty(t, vote.UserVote)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, path+"/vote", bobToken, models.VoteRequest{Type: "meh"}, &resp))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/projects/999/vote", bobToken, models.VoteRequest{Type: models.VoteLike}, &resp))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/projects/abc/vote", bobToken, models.VoteRequest{Type: models.VoteLike}, &resp))

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, path+"/comments", bobToken, models.CommentRequest{Text: "   "}, &resp))
	var comment models.CommentResponse
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, path+"/comments", bobToken, models.CommentRequest{Text: "nice"}, &comment))
	assert.Equal(t, "Bob Jones", comment.Comment.UserName)

	var comments models.CommentsResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, path+"/comments", aliceToken, nil, &comments))
	require.Len(t, comments.Comments, 1)
	assert.Equal(t, "nice", comments.Comments[0].Text)

	raw := `a < b && c > "d"`
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, path+"/comments", bobToken, models.CommentRequest{Text: raw}, &comment))
	assert.Equal(t, raw, comment.Comment.Text)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, path+"/comments", aliceToken, nil, &comments))
	require.Len(t, comments.Comments, 2)
	assert.Equal(t, raw, comments.Comments[1].Text, "comments are stored as typed")
	assert.Contains(t, comments.Comments[1].TextHTML, "&lt;")
	assert.NotContains(t, comments.Comments[1].TextHTML, "<")
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/projects/999/comments", aliceToken, nil, &resp))

	var list models.ProjectsResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/projects", aliceToken, nil, &list))
	require.Len(t, list.Projects, 1)
	assert.NotEmpty(t, list.Projects[0].DescriptionHTML)
}

func TestPush(t *testing.T) {
	e := newTestEnv(t)
	user, token := e.register(t, "Alice Smith", "alice@techpaint.com")

	var key models.PushKeyResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/push/key", token, nil, &key))
	assert.Equal(t, "vapid-public", key.PublicKey)

	var resp models.APIResponse
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/push/subscribe", token,
		models.PushSubscription{Endpoint: "https://push.example/1"}, &resp))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/push/subscribe", token, models.PushSubscription{
		Endpoint: "https://push.example/1",
		Keys:     models.PushKeys{Auth: "a", P256dh: "p"},
	}, &resp))

	subs, err := e.store.ListPushSubscriptions(user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.NotZero(t, subs[0].CreatedAt)
}

func TestAdmin(t *testing.T) {
	e := newTestEnv(t)

	var added models.AddUserResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/admin/users", "", models.AddUserRequest{Email: "carol@techpaint.com"}, &added))
	assert.Equal(t, "carol", added.User.Name)
	require.NotEmpty(t, added.Password)

	login := e.auth.Login(auth.LoginRequest{Email: "carol@techpaint.com", Password: added.Password})
	require.True(t, login.Success)

	var resp models.APIResponse
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/admin/users", "", models.AddUserRequest{Email: "carol@techpaint.com"}, &resp))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/admin/users", "", models.AddUserRequest{}, &resp))

	var rooms models.RoomsResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/admin/rooms", "", nil, &rooms))
	assert.Equal(t, e.hub.rooms, rooms.Rooms)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodDelete, "/admin/users?id="+added.User.ID, "", nil, &resp))
	assert.Equal(t, []string{added.User.ID}, e.hub.disconnected)
	_, err := e.auth.GetUserID(login.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/admin/users?id="+added.User.ID, "", nil, &resp))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodDelete, "/admin/users", "", nil, &resp))
}
