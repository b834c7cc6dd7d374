package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"techpaint/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSubs struct {
	mu      sync.Mutex
	subs    map[string][]models.PushSubscription
	deleted []string
}

func (m *memSubs) ListPushSubscriptions(userID string) ([]models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[userID], nil
}

func (m *memSubs) DeletePushSubscription(userID, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, endpoint)
	return nil
}

// browserKeys returns subscription keys as a browser would generate them.
func browserKeys(t *testing.T) models.PushKeys {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return models.PushKeys{
		P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(secret),
	}
}

func newTestWebPush(t *testing.T, store SubscriptionStore) *WebPush {
	t.Helper()
	priv, pub, err := GenerateKeys()
	require.NoError(t, err)
	return NewWebPush(Config{PublicKey: pub, PrivateKey: priv, Subscriber: "admin@techpaint.com"}, store)
}

func TestWebPush_Delivers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.Contains(t, r.Header.Get("Authorization"), "vapid")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := &memSubs{subs: map[string][]models.PushSubscription{
		"bob": {{Endpoint: srv.URL + "/1", Keys: browserKeys(t)}},
	}}
	wp := newTestWebPush(t, store)

	err := wp.NotifyPrivateMessage(context.Background(), "bob", models.PrivateMessage{From: "alice", Text: "hi"}, "Alice")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, store.deleted)
}

func TestWebPush_RemovesGoneSubscriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	store := &memSubs{subs: map[string][]models.PushSubscription{
		"bob": {{Endpoint: srv.URL + "/gone", Keys: browserKeys(t)}},
	}}
	wp := newTestWebPush(t, store)

	err := wp.NotifyPrivateMessage(context.Background(), "bob", models.PrivateMessage{Text: "hi"}, "Alice")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/gone"}, store.deleted)
}

func TestWebPush_ReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := &memSubs{subs: map[string][]models.PushSubscription{
		"bob": {{Endpoint: srv.URL, Keys: browserKeys(t)}},
	}}
	wp := newTestWebPush(t, store)

	err := wp.NotifyPrivateMessage(context.Background(), "bob", models.PrivateMessage{Text: "hi"}, "Alice")
	assert.Error(t, err)
}

func TestWebPush_NoSubscriptions(t *testing.T) {
	wp := newTestWebPush(t, &memSubs{})
	assert.NoError(t, wp.NotifyPrivateMessage(context.Background(), "nobody", models.PrivateMessage{}, "x"))
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	assert.NoError(t, n.NotifyPrivateMessage(context.Background(), "a", models.PrivateMessage{}, "b"))
}
