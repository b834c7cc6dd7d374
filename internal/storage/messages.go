package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"techpaint/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const dmPrefix = "dm_"

// dmKey names the bucket holding messages between two users. The pair is
// sorted so both sides resolve to the same bucket.
func dmKey(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(dmPrefix + a + "_" + b)
}

// dmCounterpart returns the other participant of a dm bucket, or "" when
// userID is not one of them.
func dmCounterpart(key []byte, userID string) string {
	rest, ok := strings.CutPrefix(string(key), dmPrefix)
	if !ok {
		return ""
	}
	a, b, ok := strings.Cut(rest, "_")
	if !ok {
		return ""
	}
	switch userID {
	case a:
		return b
	case b:
		return a
	}
	return ""
}

// AddPrivateMessage persists a one-to-one message, assigning its sequence
// number and ID.
func (s *BboltStorage) AddPrivateMessage(m models.PrivateMessage) (models.PrivateMessage, error) {
	if m.From == "" || m.To == "" {
		return m, errors.New("private message is missing a participant")
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketDirect).CreateBucketIfNotExists(dmKey(m.From, m.To))
		if err != nil {
			return fmt.Errorf("failed to create dm bucket: %w", err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		m.Seq = int64(seq)
		if m.ID == "" {
			m.ID = uuid.NewString()
		}

		dbMessage := &DBPrivateMessage{
			ID:        m.ID,
			Seq:       m.Seq,
			From:      m.From,
			To:        m.To,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Read:      m.Read,
		}
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return b.Put(dbMessage.Key(), data)
	})
	return m, err
}

// ListPrivateMessages returns the history between two users oldest first.
func (s *BboltStorage) ListPrivateMessages(userID, contactID string) ([]models.PrivateMessage, error) {
	messages := []models.PrivateMessage{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDirect).Bucket(dmKey(userID, contactID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var dbMessage DBPrivateMessage
			if err := dbMessage.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMessage.model())
			return nil
		})
	})
	return messages, err
}

func (m *DBPrivateMessage) model() models.PrivateMessage {
	return models.PrivateMessage{
		ID:        m.ID,
		Seq:       m.Seq,
		From:      m.From,
		To:        m.To,
		Text:      m.Text,
		Timestamp: m.Timestamp,
		Read:      m.Read,
	}
}

// Conversations lists the user's private chats, most recent first.
func (s *BboltStorage) Conversations(userID string) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDirect).ForEachBucket(func(k []byte) error {
			contactID := dmCounterpart(k, userID)
			if contactID == "" {
				return nil
			}
			b := tx.Bucket(bucketDirect).Bucket(k)

			conv := models.Conversation{ID: contactID}
			if contact, err := getUser(tx, contactID); err == nil {
				conv.Name = contact.Name
				conv.Area = contact.Area
			}

			err := b.ForEach(func(_, v []byte) error {
				var dbMessage DBPrivateMessage
				if err := dbMessage.UnmarshalBinary(v); err != nil {
					return err
				}
				if dbMessage.To == userID && !dbMessage.Read {
					conv.Unread++
				}
				// Keys are ordered, so the last one wins.
				conv.LastMessage = dbMessage.Text
				conv.LastAt = dbMessage.Timestamp
				return nil
			})
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
			return nil
		})
	})
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastAt > conversations[j].LastAt
	})
	return conversations, err
}

// MarkRead marks messages sent by contactID to userID as read and returns
// how many were changed.
func (s *BboltStorage) MarkRead(userID, contactID string) (int, error) {
	changed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDirect).Bucket(dmKey(userID, contactID))
		if b == nil {
			return nil
		}

		updates := make(map[string][]byte)
		err := b.ForEach(func(k, v []byte) error {
			var dbMessage DBPrivateMessage
			if err := dbMessage.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMessage.To != userID || dbMessage.Read {
				return nil
			}
			dbMessage.Read = true
			data, err := dbMessage.MarshalBinary()
			if err != nil {
				return err
			}
			updates[string(k)] = data
			return nil
		})
		if err != nil {
			return err
		}

		// Modifying a bucket while iterating it is not allowed.
		for k, v := range updates {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		changed = len(updates)
		return nil
	})
	return changed, err
}

// AppendRoomMessage persists a room message under the sequence number the
// room assigned to it.
func (s *BboltStorage) AppendRoomMessage(m models.RoomMessage) error {
	if m.Room == "" {
		return errors.New("message missing room")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketRooms).CreateBucketIfNotExists([]byte(m.Room))
		if err != nil {
			return fmt.Errorf("failed to create room bucket: %w", err)
		}
		dbMessage := &DBRoomMessage{
			ID:        m.ID,
			Seq:       m.Seq,
			Room:      m.Room,
			From:      m.From,
			FromName:  m.FromName,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		}
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return b.Put(dbMessage.Key(), data)
	})
}

// RecentRoomMessages returns up to n latest messages of a room, oldest first.
func (s *BboltStorage) RecentRoomMessages(room string, n int) ([]models.RoomMessage, error) {
	var messages []models.RoomMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms).Bucket([]byte(room))
		if b == nil || n <= 0 {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(messages) < n; k, v = c.Prev() {
			var dbMessage DBRoomMessage
			if err := dbMessage.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.RoomMessage{
				ID:        dbMessage.ID,
				Seq:       dbMessage.Seq,
				Room:      dbMessage.Room,
				From:      dbMessage.From,
				FromName:  dbMessage.FromName,
				Text:      dbMessage.Text,
				Timestamp: dbMessage.Timestamp,
			})
		}
		return nil
	})
	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, err
}

// LastRoomSeq returns the sequence number of the newest persisted message
// of a room, or -1 when the room has none.
func (s *BboltStorage) LastRoomSeq(room string) (int64, error) {
	last := int64(-1)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms).Bucket([]byte(room))
		if b == nil {
			return nil
		}
		if k, _ := b.Cursor().Last(); k != nil {
			last = int64(binary.BigEndian.Uint64(k))
		}
		return nil
	})
	return last, err
}

// ListRooms returns the names of rooms that have persisted history.
func (s *BboltStorage) ListRooms() ([]string, error) {
	var rooms []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEachBucket(func(k []byte) error {
			rooms = append(rooms, string(k))
			return nil
		})
	})
	return rooms, err
}
