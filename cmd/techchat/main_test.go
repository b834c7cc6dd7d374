package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techpaint/internal/models"
	"techpaint/internal/session"
)

// Commands that need a session must fail before contacting the server.
func TestCommandsRequireSession(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()

	for _, args := range [][]string{
		{"whoami"},
		{"logout"},
		{"users"},
		{"conversations"},
		{"chat", "general"},
		{"dm", "bob@techpaint.com"},
		{"projects", "list"},
		{"projects", "vote", "1", "like"},
		{"projects", "vote", "not-a-number", "like"},
		{"projects", "comments", "1"},
		{"projects", "comment", "1", "hello"},
	} {
		t.Run(args[0], func(t *testing.T) {
			sessionFile := filepath.Join(t.TempDir(), "session.json")
			rootCmd.SetArgs(append([]string{"--server", ts.URL, "--session-file", sessionFile}, args...))
			err := rootCmd.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, session.ErrNoSession)
		})
	}
	assert.Zero(t, hits.Load())
}

func TestCheckAuthClearsRejectedSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	sessionFile := filepath.Join(t.TempDir(), "session.json")
	store := session.NewFileStore(sessionFile)
	require.NoError(t, store.Save(session.Session{Token: "stale", User: models.User{ID: "u1"}}))

	rootCmd.SetArgs([]string{"--server", ts.URL, "--session-file", sessionFile, "whoami"})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)

	_, err = store.Load()
	assert.ErrorIs(t, err, session.ErrNoSession)
}
