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

type DBAuthor struct {
	ID       int64  `msgpack:"id"`
	Name     string `msgpack:"name"`
	Username string `msgpack:"username"`
	Avatar   string `msgpack:"avatar"`
}

type DBReply struct {
	ID      int64    `msgpack:"id"`
	Content string   `msgpack:"content"`
	User    DBAuthor `msgpack:"user"`
}

// DBMessage is one message of the stored window. Pos keeps arrival order.
type DBMessage struct {
	Pos         uint64   `msgpack:"pos"`
	ID          int64    `msgpack:"id"`
	Content     string   `msgpack:"content"`
	MessageType string   `msgpack:"messageType"`
	CreatedAt   int64    `msgpack:"createdAt"`
	UpdatedAt   int64    `msgpack:"updatedAt"`
	User        DBAuthor `msgpack:"user"`
	ReplyTo     *DBReply `msgpack:"replyTo"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Pos)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBWindow struct {
	HasMore bool  `msgpack:"hasMore"`
	Total   int   `msgpack:"total"`
	SavedAt int64 `msgpack:"savedAt"`
}

func (w *DBWindow) Key() []byte {
	return keyWindow
}

func (w *DBWindow) MarshalBinary() (data []byte, err error) {
	type alias DBWindow
	return msgpack.Marshal((*alias)(w))
}

func (w *DBWindow) UnmarshalBinary(data []byte) error {
	type alias DBWindow
	return msgpack.Unmarshal(data, (*alias)(w))
}

type DBDraft struct {
	Text      string `msgpack:"text"`
	ReplyToID int64  `msgpack:"replyToId"`
}

func (d *DBDraft) Key() []byte {
	return keyDraft
}

func (d *DBDraft) MarshalBinary() (data []byte, err error) {
	type alias DBDraft
	return msgpack.Marshal((*alias)(d))
}

func (d *DBDraft) UnmarshalBinary(data []byte) error {
	type alias DBDraft
	return msgpack.Unmarshal(data, (*alias)(d))
}
