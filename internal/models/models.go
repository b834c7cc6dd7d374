package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// User is the identity of a registered employee.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Area   string `json:"area"`
	GitHub string `json:"github,omitempty"`
}

// APIResponse is the common envelope of every JSON answer.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Conversation is one entry of a user's private chat list.
type Conversation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Area        string `json:"area"`
	LastMessage string `json:"lastMessage"`
	Unread      int    `json:"unread"`
	LastAt      int64  `json:"lastAt"` // Unix milliseconds
}

// PrivateMessage is a persisted one-to-one message.
type PrivateMessage struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Read      bool   `json:"read"`
}

// RoomMessage is a persisted room (or global chat) message.
type RoomMessage struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Room      string `json:"room"`
	From      string `json:"from"`
	FromName  string `json:"fromName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// RoomInfo is the admin view of a live room.
type RoomInfo struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}

// PushSubscription is a browser Web Push subscription.
type PushSubscription struct {
	Endpoint  string   `json:"endpoint"`
	Keys      PushKeys `json:"keys"`
	CreatedAt int64    `json:"createdAt,omitempty"`
}

type PushKeys struct {
	Auth   string `json:"auth"`
	P256dh string `json:"p256dh"`
}
