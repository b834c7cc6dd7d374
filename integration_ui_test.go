package main

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"techpaint/internal/auth"
	"techpaint/internal/client"

	"github.com/stretchr/testify/require"
)

// TestIntegrationPages walks the pages the way a browser does: form login,
// cookie session, guarded pages and logoff.
func TestIntegrationPages(t *testing.T) {
	adminAddr := "127.0.0.1:18891"
	apiAddr := "127.0.0.1:18890"
	baseURL := "http://" + apiAddr

	t.Setenv("TECHPAINT_DB", filepath.Join(t.TempDir(), "integration_ui.db"))
	t.Setenv("ADMIN_ADDR", adminAddr)
	t.Setenv("API_ADDR", apiAddr)
	t.Setenv("AUTH_SECRET", "very-secure-test-secret")
	t.Setenv("LOG_LEVEL", "warn")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, "") }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	}()

	waitForServer(t, baseURL+"/login", 50)

	rest := client.NewREST(baseURL, "")
	draft, err := rest.StartRegistration(ctx, auth.RegistrationStep{FirstName: "Dana", LastName: "Ruiz", Area: "Marketing"})
	require.NoError(t, err)
	_, err = rest.Register(ctx, auth.RegistrationRequest{DraftToken: draft, Email: "dana@techpaint.com", Password: "password123"})
	require.NoError(t, err)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	browser := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	get := func(path string) *http.Response {
		resp, err := browser.Get(baseURL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	// 1. Public pages render, guarded ones bounce to /login.
	for _, path := range []string{"/", "/login", "/register", "/register2"} {
		require.Equal(t, http.StatusOK, get(path).StatusCode, path)
	}
	for _, path := range []string{"/dashboard", "/chat", "/chat/menu", "/chat/rooms", "/chat/private", "/projects"} {
		resp := get(path)
		require.Equal(t, http.StatusFound, resp.StatusCode, path)
		require.Equal(t, "/login", resp.Header.Get("Location"))
	}

	// 2. Form login sets the session cookie.
	form := url.Values{}
	form.Add("email", "dana@techpaint.com")
	form.Add("password", "password123")
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", baseURL)
	resp, err := browser.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{"/dashboard", "/chat/rooms", "/projects"} {
		require.Equal(t, http.StatusOK, get(path).StatusCode, path)
	}

	// 3. A cross-origin logoff is refused.
	req, _ = http.NewRequest(http.MethodPost, baseURL+"/api/logoff", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = browser.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, http.StatusOK, get("/dashboard").StatusCode)

	// 4. Logoff ends the session.
	req, _ = http.NewRequest(http.MethodPost, baseURL+"/api/logoff", nil)
	req.Header.Set("Origin", baseURL)
	resp, err = browser.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, http.StatusFound, get("/dashboard").StatusCode)
}
