package storage

import (
	"fmt"
	"time"

	"discuss/internal/models"

	"go.etcd.io/bbolt"
)

// MaxWindow caps how many of the newest messages are kept locally.
const MaxWindow = 200

var (
	bucketMessages = []byte("messages")
	bucketMeta     = []byte("meta")

	keyWindow = []byte("window")
	keyDraft  = []byte("draft")
)

// Window is the locally stored newest part of the feed.
type Window struct {
	Messages []models.Message
	HasMore  bool
	Total    int
	SavedAt  time.Time
}

// Draft is the unsent compose text.
type Draft struct {
	Text      string
	ReplyToID int64
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func put(b *bbolt.Bucket, item Storeable) error {
	data, err := item.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(item.Key(), data)
}

// SaveWindow replaces the stored window with the newest MaxWindow messages.
func (s *BboltStorage) SaveWindow(w Window) error {
	msgs := w.Messages
	if len(msgs) > MaxWindow {
		msgs = msgs[len(msgs)-MaxWindow:]
		// older messages exist once the window is trimmed
		w.HasMore = true
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketMessages) != nil {
			if err := tx.DeleteBucket(bucketMessages); err != nil {
				return fmt.Errorf("failed to reset messages: %w", err)
			}
		}
		b, err := tx.CreateBucket(bucketMessages)
		if err != nil {
			return fmt.Errorf("failed to reset messages: %w", err)
		}

		for i, m := range msgs {
			dbMessage := toDBMessage(uint64(i), m)
			if err := put(b, &dbMessage); err != nil {
				return fmt.Errorf("failed to put message %d: %w", m.ID, err)
			}
		}

		savedAt := w.SavedAt
		if savedAt.IsZero() {
			savedAt = time.Now()
		}
		meta := &DBWindow{HasMore: w.HasMore, Total: w.Total, SavedAt: savedAt.UnixNano()}
		if err := put(tx.Bucket(bucketMeta), meta); err != nil {
			return fmt.Errorf("failed to put window: %w", err)
		}
		return nil
	})
}

// LoadWindow returns the stored window or models.ErrNotFound.
func (s *BboltStorage) LoadWindow() (Window, error) {
	var w Window
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyWindow)
		if data == nil {
			return models.ErrNotFound
		}
		var meta DBWindow
		if err := meta.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal window: %w", err)
		}
		w.HasMore = meta.HasMore
		w.Total = meta.Total
		w.SavedAt = time.Unix(0, meta.SavedAt)

		w.Messages = []models.Message{}
		return tx.Bucket(bucketMessages).ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			w.Messages = append(w.Messages, fromDBMessage(dbMsg))
			return nil
		})
	})
	return w, err
}

// SaveDraft stores the compose text. An empty draft is removed.
func (s *BboltStorage) SaveDraft(d Draft) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if d.Text == "" {
			return b.Delete(keyDraft)
		}
		return put(b, &DBDraft{Text: d.Text, ReplyToID: d.ReplyToID})
	})
}

// LoadDraft returns the stored draft, empty when there is none.
func (s *BboltStorage) LoadDraft() (Draft, error) {
	var d Draft
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyDraft)
		if data == nil {
			return nil
		}
		var dbDraft DBDraft
		if err := dbDraft.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal draft: %w", err)
		}
		d = Draft{Text: dbDraft.Text, ReplyToID: dbDraft.ReplyToID}
		return nil
	})
	return d, err
}

func toDBAuthor(a models.Author) DBAuthor {
	return DBAuthor{ID: a.ID, Name: a.Name, Username: a.Username, Avatar: a.Avatar}
}

func fromDBAuthor(a DBAuthor) models.Author {
	return models.Author{ID: a.ID, Name: a.Name, Username: a.Username, Avatar: a.Avatar}
}

func toDBMessage(pos uint64, m models.Message) DBMessage {
	dbMessage := DBMessage{
		Pos:         pos,
		ID:          m.ID,
		Content:     m.Content,
		MessageType: string(m.MessageType),
		CreatedAt:   unixNano(m.CreatedAt),
		User:        toDBAuthor(m.User),
	}
	if m.UpdatedAt != nil {
		dbMessage.UpdatedAt = unixNano(*m.UpdatedAt)
	}
	if m.ReplyTo != nil {
		dbMessage.ReplyTo = &DBReply{
			ID:      m.ReplyTo.ID,
			Content: m.ReplyTo.Content,
			User:    toDBAuthor(m.ReplyTo.User),
		}
	}
	return dbMessage
}

func fromDBMessage(dbMsg DBMessage) models.Message {
	msg := models.Message{
		ID:          dbMsg.ID,
		Content:     dbMsg.Content,
		MessageType: models.MessageType(dbMsg.MessageType),
		CreatedAt:   fromUnixNano(dbMsg.CreatedAt),
		User:        fromDBAuthor(dbMsg.User),
	}
	if dbMsg.UpdatedAt != 0 {
		updated := time.Unix(0, dbMsg.UpdatedAt)
		msg.UpdatedAt = &updated
	}
	if dbMsg.ReplyTo != nil {
		msg.ReplyTo = &models.ReplyRef{
			ID:      dbMsg.ReplyTo.ID,
			Content: dbMsg.ReplyTo.Content,
			User:    fromDBAuthor(dbMsg.ReplyTo.User),
		}
	}
	return msg
}

// zero times are stored as 0, UnixNano is undefined for them
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
