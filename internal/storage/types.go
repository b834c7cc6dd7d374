package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

type DBToken struct {
	Hash      string `msgpack:"hash"`
	UserID    string `msgpack:"userId"`
	ExpiresAt int64  `msgpack:"expiresAt"`
}

func (t *DBToken) Key() []byte {
	return []byte(t.Hash)
}

func (t *DBToken) MarshalBinary() (data []byte, err error) {
	type alias DBToken
	return msgpack.Marshal((*alias)(t))
}

func (t *DBToken) UnmarshalBinary(data []byte) error {
	type alias DBToken
	return msgpack.Unmarshal(data, (*alias)(t))
}

type DBUser struct {
	ID           string `msgpack:"id"`
	Name         string `msgpack:"name"`
	Email        string `msgpack:"email"`
	Area         string `msgpack:"area"`
	GitHub       string `msgpack:"github"`
	PasswordHash string `msgpack:"passwordHash"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBProject struct {
	ID           int64  `msgpack:"id"`
	UserID       string `msgpack:"userId"`
	Title        string `msgpack:"title"`
	Description  string `msgpack:"description"`
	GitHubURL    string `msgpack:"githubUrl"`
	Technologies string `msgpack:"technologies"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (p *DBProject) Key() []byte {
	return seqKey(uint64(p.ID))
}

func (p *DBProject) MarshalBinary() (data []byte, err error) {
	type alias DBProject
	return msgpack.Marshal((*alias)(p))
}

func (p *DBProject) UnmarshalBinary(data []byte) error {
	type alias DBProject
	return msgpack.Unmarshal(data, (*alias)(p))
}

type DBComment struct {
	ID        int64  `msgpack:"id"`
	ProjectID int64  `msgpack:"projectId"`
	UserID    string `msgpack:"userId"`
	Text      string `msgpack:"text"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (c *DBComment) Key() []byte {
	return seqKey(uint64(c.ID))
}

func (c *DBComment) MarshalBinary() (data []byte, err error) {
	type alias DBComment
	return msgpack.Marshal((*alias)(c))
}

func (c *DBComment) UnmarshalBinary(data []byte) error {
	type alias DBComment
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBPrivateMessage struct {
	ID        string `msgpack:"id"`
	Seq       int64  `msgpack:"seq"`
	From      string `msgpack:"from"`
	To        string `msgpack:"to"`
	Text      string `msgpack:"text"`
	Timestamp int64  `msgpack:"timestamp"`
	Read      bool   `msgpack:"read"`
}

func (m *DBPrivateMessage) Key() []byte {
	return seqKey(uint64(m.Seq))
}

func (m *DBPrivateMessage) MarshalBinary() (data []byte, err error) {
	type alias DBPrivateMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBPrivateMessage) UnmarshalBinary(data []byte) error {
	type alias DBPrivateMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBRoomMessage struct {
	ID        string `msgpack:"id"`
	Seq       int64  `msgpack:"seq"`
	Room      string `msgpack:"room"`
	From      string `msgpack:"from"`
	FromName  string `msgpack:"fromName"`
	Text      string `msgpack:"text"`
	Timestamp int64  `msgpack:"timestamp"`
}

func (m *DBRoomMessage) Key() []byte {
	return seqKey(uint64(m.Seq))
}

func (m *DBRoomMessage) MarshalBinary() (data []byte, err error) {
	type alias DBRoomMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBRoomMessage) UnmarshalBinary(data []byte) error {
	type alias DBRoomMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
