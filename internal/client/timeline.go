package client

import (
	"sync"

	"techpaint/internal/models"

	"github.com/c-pro/geche"
)

// How many server message IDs the timeline remembers for deduplication.
const seenWindow = 1024

// Entry is one rendered line of a conversation.
type Entry struct {
	ID        string
	ClientID  string
	From      string
	FromName  string
	Text      string
	Timestamp int64
	// Pending is true for a local message the server has not confirmed yet.
	Pending bool
}

// Timeline reconciles optimistic local messages with what the server
// echoes back, so every message is rendered exactly once.
type Timeline struct {
	mu      sync.Mutex
	entries []Entry
	pending map[string]int // clientID -> index into entries
	seen    *geche.RingBuffer[string, struct{}]
}

func NewTimeline() *Timeline {
	return &Timeline{
		pending: make(map[string]int),
		seen:    geche.NewRingBuffer[string, struct{}](seenWindow),
	}
}

// AddLocal records a message typed locally before the server confirms it.
// It returns the entry and whether it is new.
func (t *Timeline) AddLocal(clientID, from, fromName, text string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.pending[clientID]; ok {
		return t.entries[i], false
	}
	e := Entry{
		ClientID: clientID,
		From:     from,
		FromName: fromName,
		Text:     text,
		Pending:  true,
	}
	t.entries = append(t.entries, e)
	t.pending[clientID] = len(t.entries) - 1
	return e, true
}

// Apply folds a server envelope into the timeline. The boolean is true
// only when the caller should render the returned entry as a new line.
// Duplicates and confirmations of local messages return false.
func (t *Timeline) Apply(env models.Envelope) (Entry, bool) {
	if !env.IsMessage() {
		return Entry{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if env.ID != "" {
		if _, err := t.seen.Get(env.ID); err == nil {
			return Entry{}, false
		}
		t.seen.Set(env.ID, struct{}{})
	}

	if env.ClientID != "" {
		if i, ok := t.pending[env.ClientID]; ok {
			delete(t.pending, env.ClientID)
			e := &t.entries[i]
			e.ID = env.ID
			e.Timestamp = env.Timestamp
			e.Pending = false
			return *e, false
		}
	}

	e := Entry{
		ID:        env.ID,
		ClientID:  env.ClientID,
		From:      env.From,
		FromName:  env.FromName,
		Text:      env.Text,
		Timestamp: env.Timestamp,
	}
	t.entries = append(t.entries, e)
	return e, true
}

// ApplyHistory applies a history backlog and returns the entries to render.
func (t *Timeline) ApplyHistory(env models.Envelope) []Entry {
	var out []Entry
	for _, h := range env.History {
		if e, ok := t.Apply(h); ok {
			out = append(out, e)
		}
	}
	return out
}

func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
