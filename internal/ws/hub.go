package ws

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"techpaint/internal/chat"
	"techpaint/internal/content"
	"techpaint/internal/models"
	"techpaint/internal/notify"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

const (
	defaultQueueSize = 256
	notifyTimeout    = 10 * time.Second
	// How many private client message IDs are remembered for deduplication.
	privateIdempotencyWindow = 4096
)

type Store interface {
	AppendRoomMessage(models.RoomMessage) error
	RecentRoomMessages(room string, n int) ([]models.RoomMessage, error)
	LastRoomSeq(room string) (int64, error)
	AddPrivateMessage(models.PrivateMessage) (models.PrivateMessage, error)
}

type Users interface {
	GetUser(id string) (models.User, error)
}

type HubConfig struct {
	DefaultRoom string
	History     int
	QueueSize   int
}

// client is the hub side of one socket.
type client struct {
	id      string
	user    models.User
	send    chan models.Envelope
	room    string
	typing  bool
	private bool
}

type Hub struct {
	config   HubConfig
	store    Store
	users    Users
	notifier notify.Notifier

	// Map of room name -> Chat object
	rooms map[string]*chat.Chat

	// Map of connection ID -> client
	clients map[string]*client

	// Map of userID -> connection ID -> client registered for private delivery
	private map[string]map[string]*client

	privateSeen *geche.RingBuffer[string, models.PrivateMessage]
	now         func() time.Time

	mu sync.Mutex
}

func NewHub(config HubConfig, store Store, users Users, notifier notify.Notifier) *Hub {
	if config.DefaultRoom == "" {
		config.DefaultRoom = "general"
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	h := &Hub{
		config:      config,
		store:       store,
		users:       users,
		notifier:    notifier,
		rooms:       make(map[string]*chat.Chat),
		clients:     make(map[string]*client),
		private:     make(map[string]map[string]*client),
		privateSeen: geche.NewRingBuffer[string, models.PrivateMessage](privateIdempotencyWindow),
		now:         time.Now,
	}

	h.mu.Lock()
	h.room(config.DefaultRoom)
	h.mu.Unlock()

	return h
}

// room returns the named room, creating it and loading its persisted
// backlog on first use. Callers hold h.mu.
func (h *Hub) room(name string) *chat.Chat {
	if c, ok := h.rooms[name]; ok {
		return c
	}
	c := chat.New(chat.Config{
		ID:             name,
		MaxRecords:     h.config.History,
		RecordCallback: h.handleRecordCallback,
	})

	if h.config.History > 0 {
		backlog, err := h.store.RecentRoomMessages(name, h.config.History)
		if err != nil {
			slog.Error("failed to load room history", "room", name, "error", err)
		}
		records := make([]chat.ChatRecord, 0, len(backlog))
		for _, m := range backlog {
			records = append(records, chat.ChatRecord{
				Seq:       chat.Seq(m.Seq),
				ID:        m.ID,
				Timestamp: m.Timestamp,
				UserID:    m.From,
				UserName:  m.FromName,
				Content:   m.Text,
			})
		}
		c.Restore(records)
	}

	// Continue after every persisted message, not only the loaded backlog.
	last, err := h.store.LastRoomSeq(name)
	if err != nil {
		slog.Error("failed to read last room sequence", "room", name, "error", err)
	}
	c.ContinueAfter(chat.Seq(last))

	h.rooms[name] = c
	return c
}

// Join registers a new connection for the user and returns its ID and the
// channel of envelopes to write to it.
func (h *Hub) Join(user models.User) (string, chan models.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &client{
		id:   uuid.NewString(),
		user: user,
		send: make(chan models.Envelope, h.config.QueueSize),
	}
	h.clients[c.id] = c

	h.deliver(c, systemEnvelope("", "Connected to chat server"))
	slog.Debug("client connected", "conn_id", c.id, "user_id", user.ID)

	return c.id, c.send
}

// Leave drops the connection. Room members are told the user disconnected.
func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}

	if c.room != "" {
		h.leaveRoom(c, c.user.Name+" disconnected")
	}
	h.dropClient(c)
	slog.Debug("client disconnected", "conn_id", c.id, "user_id", c.user.ID)
}

func (h *Hub) dropClient(c *client) {
	if conns, ok := h.private[c.user.ID]; ok {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(h.private, c.user.ID)
		}
	}
	close(c.send)
	delete(h.clients, c.id)
}

// DisconnectUser closes every connection of the user and returns how many
// were closed.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.clients {
		if c.user.ID != userID {
			continue
		}
		if c.room != "" {
			h.leaveRoom(c, c.user.Name+" disconnected")
		}
		h.dropClient(c)
		n++
	}
	return n
}

// Dispatch handles one event received from a connection.
func (h *Hub) Dispatch(connID string, msg models.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}

	switch msg.Type {
	case models.EventJoinChat:
		h.joinRoom(c, msg.Room)
	case models.EventSendMessage:
		h.sendRoomMessage(c, msg)
	case models.EventTyping:
		h.setTyping(c, msg.Typing)
	case models.EventLeaveRoom:
		if c.room == "" {
			h.deliver(c, errorEnvelope("not in any room"))
			return
		}
		room := c.room
		h.leaveRoom(c, c.user.Name+" left the room")
		h.deliver(c, models.Envelope{Type: models.EventLeftRoom, Room: room})
	case models.EventJoinPrivateChat:
		conns, ok := h.private[c.user.ID]
		if !ok {
			conns = make(map[string]*client)
			h.private[c.user.ID] = conns
		}
		conns[c.id] = c
		c.private = true
	case models.EventSendPrivateMessage:
		h.sendPrivateMessage(c, msg)
	case models.EventTypingPrivate:
		h.relayPrivateTyping(c, msg.To, models.EventUserTypingPrivate)
	case models.EventStopTypingPrivate:
		h.relayPrivateTyping(c, msg.To, models.EventUserStopTypingPrivate)
	default:
		h.deliver(c, errorEnvelope("unknown event type "+string(msg.Type)))
	}
}

func (h *Hub) joinRoom(c *client, name string) {
	if name == "" {
		name = h.config.DefaultRoom
	}
	name = content.NormalizeRoom(name)
	if err := content.ValidateRoom(name); err != nil {
		h.deliver(c, errorEnvelope(err.Error()))
		return
	}

	rejoin := c.room == name
	if c.room != "" && !rejoin {
		h.leaveRoom(c, c.user.Name+" left the room")
	}

	r := h.room(name)
	if !rejoin {
		r.Join(c.id)
		c.room = name
		h.broadcast(r, c.id, systemEnvelope(name, c.user.Name+" joined the room"))
	}

	h.deliver(c, systemEnvelope(name, "Connected as "+c.user.Name+" in room "+name))

	records, err := r.GetLastRecords(h.config.History)
	if err != nil {
		slog.Error("failed to read room history", "room", name, "error", err)
	}
	history := make([]models.Envelope, 0, len(records))
	for _, rec := range records {
		history = append(history, recordEnvelope(name, rec))
	}
	h.deliver(c, models.Envelope{Type: models.EventHistory, Room: name, History: history})

	h.broadcast(r, "", models.Envelope{Type: models.EventRoomUsers, Room: name, Users: h.roomUsers(r)})
}

// leaveRoom removes the client from its room and tells the remaining
// members. Rooms other than the default one are dropped once empty.
func (h *Hub) leaveRoom(c *client, notice string) {
	name := c.room
	r, ok := h.rooms[name]
	c.room = ""
	if !ok {
		c.typing = false
		return
	}

	r.Leave(c.id)
	if c.typing {
		c.typing = false
		h.broadcast(r, "", typingEnvelope(name, c.user, false))
	}
	h.broadcast(r, "", systemEnvelope(name, notice))
	h.broadcast(r, "", models.Envelope{Type: models.EventRoomUsers, Room: name, Users: h.roomUsers(r)})

	if r.Empty() && name != h.config.DefaultRoom {
		delete(h.rooms, name)
	}
}

func (h *Hub) sendRoomMessage(c *client, msg models.Envelope) {
	if c.room == "" {
		h.deliver(c, errorEnvelope("not in any room"))
		return
	}
	text := content.Clean(msg.Text, content.MaxMessageLength)
	if err := content.ValidateMessage(text); err != nil {
		h.deliver(c, errorEnvelope(err.Error()))
		return
	}

	r := h.rooms[c.room]
	rec, added := r.AddRecord(chat.ChatRecord{
		ClientID: msg.ClientID,
		UserID:   c.user.ID,
		UserName: c.user.Name,
		Content:  text,
	})
	if !added {
		// A retry of a message the room already has: confirm it to the
		// sender only.
		h.deliver(c, recordEnvelope(c.room, rec))
		return
	}

	if err := h.store.AppendRoomMessage(models.RoomMessage{
		ID:        rec.ID,
		Seq:       int64(rec.Seq),
		Room:      c.room,
		From:      rec.UserID,
		FromName:  rec.UserName,
		Text:      rec.Content,
		Timestamp: rec.Timestamp,
	}); err != nil {
		slog.Error("failed to persist room message", "room", c.room, "error", err)
	}

	if c.typing {
		c.typing = false
		h.broadcast(r, c.id, typingEnvelope(c.room, c.user, false))
	}
}

func (h *Hub) setTyping(c *client, typing bool) {
	if c.room == "" {
		return
	}
	c.typing = typing
	h.broadcast(h.rooms[c.room], c.id, typingEnvelope(c.room, c.user, typing))
}

func (h *Hub) sendPrivateMessage(c *client, msg models.Envelope) {
	if msg.To == "" || msg.To == c.user.ID {
		h.deliver(c, errorEnvelope("invalid recipient"))
		return
	}
	text := content.Clean(msg.Text, content.MaxMessageLength)
	if err := content.ValidateMessage(text); err != nil {
		h.deliver(c, errorEnvelope(err.Error()))
		return
	}

	seenKey := c.user.ID + ":" + msg.ClientID
	if msg.ClientID != "" {
		if prev, err := h.privateSeen.Get(seenKey); err == nil {
			h.deliver(c, models.PrivateEnvelope(models.EventMessageSent, prev, c.user.Name, msg.ClientID))
			return
		}
	}

	if _, err := h.users.GetUser(msg.To); err != nil {
		h.deliver(c, errorEnvelope("unknown recipient"))
		return
	}

	stored, err := h.store.AddPrivateMessage(models.PrivateMessage{
		From:      c.user.ID,
		To:        msg.To,
		Text:      text,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		slog.Error("failed to persist private message", "user_id", c.user.ID, "error", err)
		h.deliver(c, errorEnvelope("failed to send message"))
		return
	}
	if msg.ClientID != "" {
		h.privateSeen.Set(seenKey, stored)
	}

	recipients := h.private[msg.To]
	for _, rc := range recipients {
		h.deliver(rc, models.PrivateEnvelope(models.EventNewPrivateMessage, stored, c.user.Name, ""))
	}

	sent := models.PrivateEnvelope(models.EventMessageSent, stored, c.user.Name, msg.ClientID)
	h.deliver(c, sent)
	for _, sc := range h.private[c.user.ID] {
		if sc.id != c.id {
			h.deliver(sc, sent)
		}
	}

	if len(recipients) == 0 {
		go h.notifyOffline(msg.To, stored, c.user.Name)
	}
}

func (h *Hub) notifyOffline(recipientID string, msg models.PrivateMessage, senderName string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := h.notifier.NotifyPrivateMessage(ctx, recipientID, msg, senderName); err != nil {
		slog.Warn("failed to notify offline user", "user_id", recipientID, "error", err)
	}
}

func (h *Hub) relayPrivateTyping(c *client, to string, t models.EventType) {
	if to == "" || to == c.user.ID {
		return
	}
	for _, rc := range h.private[to] {
		h.deliver(rc, models.Envelope{Type: t, From: c.user.ID, FromName: c.user.Name, To: to})
	}
}

// Rooms returns live rooms with the names of their members.
func (h *Hub) Rooms() []models.RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]models.RoomInfo, 0, len(h.rooms))
	for name, r := range h.rooms {
		infos = append(infos, models.RoomInfo{Name: name, Users: h.roomUsers(r)})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// roomUsers returns the sorted, de-duplicated display names of the room
// members. A user with two tabs open is listed once.
func (h *Hub) roomUsers(r *chat.Chat) []string {
	seen := make(map[string]bool)
	names := []string{}
	for _, id := range r.OnlineMembers() {
		c, ok := h.clients[id]
		if !ok || seen[c.user.Name] {
			continue
		}
		seen[c.user.Name] = true
		names = append(names, c.user.Name)
	}
	sort.Strings(names)
	return names
}

// handleRecordCallback is invoked by the room for each online member.
// It runs with h.mu held.
func (h *Hub) handleRecordCallback(receiverID string, chatID string, record chat.ChatRecord) {
	c, ok := h.clients[receiverID]
	if !ok {
		return
	}
	h.deliver(c, recordEnvelope(chatID, record))
}

func (h *Hub) broadcast(r *chat.Chat, exceptID string, env models.Envelope) {
	for _, id := range r.OnlineMembers() {
		if id == exceptID {
			continue
		}
		if c, ok := h.clients[id]; ok {
			h.deliver(c, env)
		}
	}
}

// deliver queues an envelope for the client. It runs with h.mu held, so
// it never races with dropClient closing the channel.
func (h *Hub) deliver(c *client, env models.Envelope) {
	select {
	case c.send <- env:
	default:
		slog.Warn("dropping message for slow client", "conn_id", c.id, "type", env.Type)
	}
}

func recordEnvelope(room string, r chat.ChatRecord) models.Envelope {
	return models.Envelope{
		Type:      models.EventNewMessage,
		ID:        r.ID,
		ClientID:  r.ClientID,
		Seq:       int64(r.Seq),
		Room:      room,
		From:      r.UserID,
		FromName:  r.UserName,
		Text:      r.Content,
		Timestamp: r.Timestamp,
	}
}

func systemEnvelope(room, text string) models.Envelope {
	return models.Envelope{Type: models.EventSystem, Room: room, Text: text}
}

func errorEnvelope(text string) models.Envelope {
	return models.Envelope{Type: models.EventError, Text: text}
}

func typingEnvelope(room string, u models.User, typing bool) models.Envelope {
	return models.Envelope{
		Type:     models.EventUserTyping,
		Room:     room,
		From:     u.ID,
		FromName: u.Name,
		Typing:   typing,
	}
}
