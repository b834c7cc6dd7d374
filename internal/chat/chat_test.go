package chat

import (
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	c := New(Config{MaxRecords: 10})
	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.MaxRecords != 10 {
		t.Errorf("expected MaxRecords 10, got %d", c.MaxRecords)
	}
	if c.Members == nil {
		t.Error("Members map not initialized")
	}
}

func TestChat_AddRecord_NoWrap(t *testing.T) {
	c := New(Config{MaxRecords: 10})

	for i := 0; i < 5; i++ {
		c.AddRecord(ChatRecord{UserID: "user", Content: fmt.Sprintf("msg %d", i)})
	}

	if len(c.Records) != 5 {
		t.Errorf("expected 5 records, got %d", len(c.Records))
	}

	recs, err := c.GetLastRecords(2)
	if err != nil {
		t.Fatalf("GetLastRecords failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[1].Content != "msg 4" {
		t.Errorf("expected last msg 'msg 4', got '%s'", recs[1].Content)
	}
	if recs[0].Seq+1 != recs[1].Seq {
		t.Errorf("sequence not contiguous: %d, %d", recs[0].Seq, recs[1].Seq)
	}
}

func TestChat_AddRecord_AssignsIdentity(t *testing.T) {
	c := New(Config{MaxRecords: 10})

	rec, added := c.AddRecord(ChatRecord{UserID: "user", Content: "hi"})
	if !added {
		t.Fatal("expected record to be added")
	}
	if rec.ID == "" {
		t.Error("expected server ID to be assigned")
	}
	if rec.Timestamp == 0 {
		t.Error("expected timestamp to be assigned")
	}
	if rec.Seq != 0 {
		t.Errorf("expected first seq 0, got %d", rec.Seq)
	}
}

func TestChat_AddRecord_Wrap(t *testing.T) {
	c := New(Config{MaxRecords: 3})

	for i := 0; i < 3; i++ {
		c.AddRecord(ChatRecord{UserID: "user", Content: fmt.Sprintf("msg %d", i)})
	}

	c.AddRecord(ChatRecord{UserID: "user", Content: "msg 3"})

	recs, err := c.GetLastRecords(3)
	if err != nil {
		t.Fatalf("GetLastRecords failed: %v", err)
	}

	// Expect chronological order: msg 1, msg 2, msg 3
	// msg 0 should be dropped
	expected := []string{"msg 1", "msg 2", "msg 3"}
	for i, exp := range expected {
		if recs[i].Content != exp {
			t.Errorf("index %d: expected '%s', got '%s'", i, exp, recs[i].Content)
		}
	}
	if c.FirstSeq != 1 || c.LastSeq != 3 {
		t.Errorf("expected seq range [1,3], got [%d,%d]", c.FirstSeq, c.LastSeq)
	}
}

func TestChat_GetRecords(t *testing.T) {
	c := New(Config{MaxRecords: 4})
	for i := 0; i < 6; i++ {
		c.AddRecord(ChatRecord{Content: fmt.Sprintf("msg %d", i)})
	}

	// Ring holds seq 2..5; the requested range is clamped.
	recs, err := c.GetRecords(0, 4)
	if err != nil {
		t.Fatalf("GetRecords failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Content != "msg 2" || recs[1].Content != "msg 3" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestChat_AddRecord_Idempotent(t *testing.T) {
	c := New(Config{MaxRecords: 10})

	calls := 0
	c.RecordCallback = func(receiverID, chatID string, r ChatRecord) { calls++ }
	c.Join("conn1")

	first, added := c.AddRecord(ChatRecord{UserID: "u", ClientID: "c-1", Content: "hello"})
	if !added {
		t.Fatal("first add should succeed")
	}
	again, added := c.AddRecord(ChatRecord{UserID: "u", ClientID: "c-1", Content: "hello"})
	if added {
		t.Fatal("duplicate client ID should not be added")
	}
	if again.ID != first.ID || again.Seq != first.Seq {
		t.Errorf("duplicate should return the original record, got %+v", again)
	}
	if len(c.Records) != 1 {
		t.Errorf("expected 1 record, got %d", len(c.Records))
	}
	if calls != 1 {
		t.Errorf("expected 1 callback, got %d", calls)
	}
}

func TestChat_AddRecord_ClientIDScopedToUser(t *testing.T) {
	c := New(Config{MaxRecords: 10})

	a, _ := c.AddRecord(ChatRecord{UserID: "alice", ClientID: "1", Content: "from alice"})
	b, added := c.AddRecord(ChatRecord{UserID: "bob", ClientID: "1", Content: "from bob"})
	if !added {
		t.Fatal("another user's message with the same client ID must be stored")
	}
	if b.ID == a.ID || b.Content != "from bob" {
		t.Errorf("got alice's record back: %+v", b)
	}
	if len(c.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(c.Records))
	}
}

func TestChat_ContinueAfter(t *testing.T) {
	c := New(Config{MaxRecords: 10})
	c.ContinueAfter(41)
	c.ContinueAfter(7)

	rec, _ := c.AddRecord(ChatRecord{Content: "next"})
	if rec.Seq != 42 {
		t.Errorf("expected seq 42, got %d", rec.Seq)
	}
}

func TestChat_Restore(t *testing.T) {
	c := New(Config{MaxRecords: 10})
	c.Restore([]ChatRecord{
		{Seq: 4, ID: "a", Content: "old 1"},
		{Seq: 5, ID: "b", Content: "old 2"},
	})

	rec, _ := c.AddRecord(ChatRecord{Content: "new"})
	if rec.Seq != 6 {
		t.Errorf("expected seq to continue at 6, got %d", rec.Seq)
	}

	recs, _ := c.GetLastRecords(10)
	if len(recs) != 3 || recs[0].Content != "old 1" {
		t.Errorf("unexpected history: %+v", recs)
	}
}

func TestChat_JoinLeave(t *testing.T) {
	c := New(Config{MaxRecords: 10})

	c.Join("user1")
	if !c.Members["user1"] {
		t.Error("user1 should be online")
	}
	if c.Empty() {
		t.Error("chat should not be empty")
	}

	c.Leave("user1")
	if _, ok := c.Members["user1"]; ok {
		t.Error("user1 should be gone")
	}
	if !c.Empty() {
		t.Error("chat should be empty")
	}
}

func TestChat_Callback(t *testing.T) {
	c := New(Config{ID: "room", MaxRecords: 10})

	c.Join("online_user")
	c.Members["offline_user"] = false

	received := make(map[string]ChatRecord)
	c.RecordCallback = func(receiverID, chatID string, r ChatRecord) {
		if chatID != "room" {
			t.Errorf("unexpected chat id %s", chatID)
		}
		received[receiverID] = r
	}

	c.AddRecord(ChatRecord{UserID: "sender", Content: "hello"})

	if rec, ok := received["online_user"]; !ok {
		t.Error("online_user did not receive message")
	} else if rec.Content != "hello" {
		t.Errorf("online_user received wrong content: %s", rec.Content)
	}

	if _, ok := received["offline_user"]; ok {
		t.Error("offline_user received message but shouldn't have")
	}

	if got := c.OnlineMembers(); len(got) != 1 || got[0] != "online_user" {
		t.Errorf("unexpected online members: %v", got)
	}
}
