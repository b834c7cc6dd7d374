package models

// EventType names a real-time event.
type EventType string

// Client to server.
const (
	EventJoinChat           EventType = "join_chat"
	EventSendMessage        EventType = "send_message"
	EventLeaveRoom          EventType = "leave_room"
	EventTyping             EventType = "typing"
	EventJoinPrivateChat    EventType = "join_private_chat"
	EventSendPrivateMessage EventType = "send_private_message"
	EventTypingPrivate      EventType = "typing_private"
	EventStopTypingPrivate  EventType = "stop_typing_private"
)

// Server to client.
const (
	EventNewMessage            EventType = "new_message"
	EventRoomUsers             EventType = "room_users"
	EventUserTyping            EventType = "user_typing"
	EventSystem                EventType = "system"
	EventNewPrivateMessage     EventType = "new_private_message"
	EventMessageSent           EventType = "message_sent"
	EventUserTypingPrivate     EventType = "user_typing_private"
	EventUserStopTypingPrivate EventType = "user_stop_typing_private"
	EventLeftRoom              EventType = "left_room"
	EventHistory               EventType = "history"
	EventError                 EventType = "error"
)

// Envelope is the single message shape used on the real-time channel
// in both directions. ID is assigned by the server; ClientID is chosen
// by the sender and echoed back so optimistic renders can be matched.
type Envelope struct {
	Type      EventType  `json:"type"`
	ID        string     `json:"id,omitempty"`
	ClientID  string     `json:"clientId,omitempty"`
	Seq       int64      `json:"seq,omitempty"`
	Room      string     `json:"room,omitempty"`
	From      string     `json:"from,omitempty"`
	FromName  string     `json:"fromName,omitempty"`
	To        string     `json:"to,omitempty"`
	Text      string     `json:"text,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"` // Unix milliseconds
	Typing    bool       `json:"typing,omitempty"`
	Read      bool       `json:"read,omitempty"`
	Users     []string   `json:"users,omitempty"`
	History   []Envelope `json:"history,omitempty"`
}

// IsMessage reports whether the envelope carries a chat message
// (room or private) as opposed to presence or control data.
func (e Envelope) IsMessage() bool {
	switch e.Type {
	case EventNewMessage, EventNewPrivateMessage, EventMessageSent:
		return true
	}
	return false
}

// RoomEnvelope converts a stored room message into its wire form.
func RoomEnvelope(m RoomMessage) Envelope {
	return Envelope{
		Type:      EventNewMessage,
		ID:        m.ID,
		Seq:       m.Seq,
		Room:      m.Room,
		From:      m.From,
		FromName:  m.FromName,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

// PrivateEnvelope converts a stored private message into its wire form.
func PrivateEnvelope(t EventType, m PrivateMessage, fromName, clientID string) Envelope {
	return Envelope{
		Type:      t,
		ID:        m.ID,
		ClientID:  clientID,
		Seq:       m.Seq,
		From:      m.From,
		FromName:  fromName,
		To:        m.To,
		Text:      m.Text,
		Timestamp: m.Timestamp,
		Read:      m.Read,
	}
}
