package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"techpaint/internal/content"
	"techpaint/internal/models"

	"github.com/gorilla/websocket"
	"github.com/jaevor/go-nanoid"
)

const (
	clientIDLength = 21
	eventQueueSize = 64
	writeTimeout   = 10 * time.Second
)

type socket interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type gorillaSocket struct {
	*websocket.Conn
}

func (g gorillaSocket) WriteJSON(v any) error {
	_ = g.SetWriteDeadline(time.Now().Add(writeTimeout))
	return g.Conn.WriteJSON(v)
}

// Conn is a live chat connection. Envelopes from the server are delivered
// on Events until the connection ends.
type Conn struct {
	ws     socket
	events chan models.Envelope
	newID  func() string

	writeMu sync.Mutex

	mu   sync.Mutex
	room string
	err  error

	done      chan struct{}
	closeOnce sync.Once
}

// ChatURL turns the server base URL into the chat socket URL.
func ChatURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/chat"
	return u.String(), nil
}

func Dial(ctx context.Context, serverURL, token string) (*Conn, error) {
	wsURL, err := ChatURL(serverURL)
	if err != nil {
		return nil, err
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{"token": []string{token}})
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "chat connection refused"}
		}
		return nil, fmt.Errorf("failed to connect to chat: %w", err)
	}
	return newConn(gorillaSocket{ws})
}

func newConn(ws socket) (*Conn, error) {
	newID, err := nanoid.Standard(clientIDLength)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		ws:     ws,
		events: make(chan models.Envelope, eventQueueSize),
		newID:  newID,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		var env models.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			c.mu.Lock()
			if c.err == nil {
				c.err = err
			}
			c.mu.Unlock()
			return
		}

		if env.Type == models.EventLeftRoom {
			c.mu.Lock()
			if c.room == env.Room {
				c.room = ""
			}
			c.mu.Unlock()
		}

		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) Events() <-chan models.Envelope {
	return c.events
}

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Room is the room this connection joined last, or empty.
func (c *Conn) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Conn) write(env models.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(env)
}

// JoinRoom validates the room name locally before asking the server.
func (c *Conn) JoinRoom(room string) error {
	name := content.NormalizeRoom(room)
	if err := content.ValidateRoom(name); err != nil {
		return err
	}
	if err := c.write(models.Envelope{Type: models.EventJoinChat, Room: name}); err != nil {
		return err
	}
	c.mu.Lock()
	c.room = name
	c.mu.Unlock()
	return nil
}

func (c *Conn) LeaveRoom() error {
	if c.Room() == "" {
		return ErrNotInRoom
	}
	if err := c.write(models.Envelope{Type: models.EventLeaveRoom}); err != nil {
		return err
	}
	c.mu.Lock()
	c.room = ""
	c.mu.Unlock()
	return nil
}

// Send posts text to the current room and returns the client ID it was
// tagged with. Empty text is rejected without touching the socket.
func (c *Conn) Send(text string) (string, error) {
	text = content.Clean(text, content.MaxMessageLength)
	if content.ValidateMessage(text) != nil {
		return "", ErrEmptyMessage
	}
	room := c.Room()
	if room == "" {
		return "", ErrNotInRoom
	}
	id := c.newID()
	return id, c.write(models.Envelope{
		Type:     models.EventSendMessage,
		Room:     room,
		Text:     text,
		ClientID: id,
	})
}

// JoinPrivate registers the connection for private message delivery.
func (c *Conn) JoinPrivate() error {
	return c.write(models.Envelope{Type: models.EventJoinPrivateChat})
}

func (c *Conn) SendPrivate(to, text string) (string, error) {
	text = content.Clean(text, content.MaxMessageLength)
	if content.ValidateMessage(text) != nil {
		return "", ErrEmptyMessage
	}
	if to == "" {
		return "", ErrNoRecipient
	}
	id := c.newID()
	return id, c.write(models.Envelope{
		Type:     models.EventSendPrivateMessage,
		To:       to,
		Text:     text,
		ClientID: id,
	})
}

func (c *Conn) Typing(typing bool) error {
	if c.Room() == "" {
		return ErrNotInRoom
	}
	return c.write(models.Envelope{Type: models.EventTyping, Typing: typing})
}

func (c *Conn) TypingPrivate(to string, typing bool) error {
	if to == "" {
		return ErrNoRecipient
	}
	t := models.EventStopTypingPrivate
	if typing {
		t = models.EventTypingPrivate
	}
	return c.write(models.Envelope{Type: t, To: to})
}
