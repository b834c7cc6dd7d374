package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

// How many client message IDs a chat remembers for deduplication.
const idempotencyWindow = 1024

type Seq int64

type ChatRecord struct {
	Seq       Seq
	ID        string
	ClientID  string
	Timestamp int64 // Unix milliseconds
	UserID    string
	UserName  string
	Content   string
}

type Chat struct {
	ID         string
	Records    []ChatRecord
	Members    map[string]bool
	FirstSeq   Seq
	LastSeq    Seq
	LastIndex  int
	MaxRecords int

	RecordCallback func(receiverID string, chatID string, record ChatRecord)

	seen *geche.RingBuffer[string, ChatRecord]
	now  func() time.Time
	mux  sync.RWMutex
}

type Config struct {
	ID             string
	MaxRecords     int
	RecordCallback func(receiverID string, chatID string, record ChatRecord)
}

func New(config Config) *Chat {
	if config.MaxRecords <= 0 {
		config.MaxRecords = 100
	}
	return &Chat{
		ID:             config.ID,
		MaxRecords:     config.MaxRecords,
		LastIndex:      -1,
		FirstSeq:       -1,
		LastSeq:        -1,
		Members:        make(map[string]bool),
		RecordCallback: config.RecordCallback,
		seen:           geche.NewRingBuffer[string, ChatRecord](idempotencyWindow),
		now:            time.Now,
	}
}

// AddRecord adds a new chat record to the chat:
// - Assigning the sequence number, server ID and timestamp
// - Adding it into Records ring buffer
// - Sending updates to all online members
//
// A record whose ClientID the same user already added is not stored
// again; the original record is returned with added=false.
func (c *Chat) AddRecord(record ChatRecord) (stored ChatRecord, added bool) {
	c.mux.Lock()
	defer c.mux.Unlock()

	seenKey := record.UserID + ":" + record.ClientID
	if record.ClientID != "" {
		if prev, err := c.seen.Get(seenKey); err == nil {
			return prev, false
		}
	}

	c.LastSeq++
	record.Seq = c.LastSeq
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp == 0 {
		record.Timestamp = c.now().UnixMilli()
	}

	c.push(record)

	if record.ClientID != "" {
		c.seen.Set(seenKey, record)
	}

	for receiverID, online := range c.Members {
		if online && c.RecordCallback != nil {
			c.RecordCallback(receiverID, c.ID, record)
		}
	}

	return record, true
}

// Restore loads previously persisted records (oldest first) without
// notifying members. Sequence numbering continues after the last one.
func (c *Chat) Restore(records []ChatRecord) {
	c.mux.Lock()
	defer c.mux.Unlock()

	for _, r := range records {
		if r.Seq <= c.LastSeq {
			continue
		}
		c.LastSeq = r.Seq
		c.push(r)
	}
}

// ContinueAfter makes numbering resume after seq when it is ahead of what
// the chat has seen.
func (c *Chat) ContinueAfter(seq Seq) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if seq > c.LastSeq {
		c.LastSeq = seq
	}
}

// push appends to the ring buffer. Callers hold the lock and have set
// LastSeq to record.Seq.
func (c *Chat) push(record ChatRecord) {
	switch {
	case len(c.Records) < c.MaxRecords:
		if c.FirstSeq == -1 {
			c.FirstSeq = record.Seq
		}
		c.Records = append(c.Records, record)
		c.LastIndex++
	default:
		i := (c.LastIndex + 1) % c.MaxRecords
		c.Records[i] = record
		c.LastIndex = i
		c.FirstSeq = c.Records[(i+1)%c.MaxRecords].Seq
	}
}

func (c *Chat) GetRecords(from, to Seq) ([]ChatRecord, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if c.FirstSeq == -1 {
		return []ChatRecord{}, nil
	}

	result := make([]ChatRecord, 0)
	for _, r := range c.ordered() {
		if r.Seq >= from && r.Seq < to {
			result = append(result, r)
		}
	}
	return result, nil
}

func (c *Chat) GetLastRecords(count int) ([]ChatRecord, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if c.LastSeq == -1 || count <= 0 {
		return []ChatRecord{}, nil
	}

	all := c.ordered()
	if count > len(all) {
		count = len(all)
	}
	result := make([]ChatRecord, count)
	copy(result, all[len(all)-count:])
	return result, nil
}

// ordered returns the ring contents oldest first.
func (c *Chat) ordered() []ChatRecord {
	n := len(c.Records)
	if n == 0 {
		return nil
	}
	head := 0
	if n == c.MaxRecords {
		head = (c.LastIndex + 1) % c.MaxRecords
	}
	out := make([]ChatRecord, n)
	copy(out, c.Records[head:])
	copy(out[n-head:], c.Records[:head])
	return out
}

func (c *Chat) Join(memberID string) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.Members[memberID] = true
}

func (c *Chat) Leave(memberID string) {
	c.mux.Lock()
	defer c.mux.Unlock()

	delete(c.Members, memberID)
}

// OnlineMembers returns the IDs of members currently joined, sorted.
func (c *Chat) OnlineMembers() []string {
	c.mux.RLock()
	defer c.mux.RUnlock()

	ids := make([]string, 0, len(c.Members))
	for id, online := range c.Members {
		if online {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (c *Chat) Empty() bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return len(c.Members) == 0
}
