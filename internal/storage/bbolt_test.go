package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"discuss/internal/models"
)

func newTestStorage(t *testing.T) *BboltStorage {
	t.Helper()
	store, err := NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorage(t *testing.T) {
	store := newTestStorage(t)

	t.Run("EmptyWindow", func(t *testing.T) {
		_, err := store.LoadWindow()
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Window", func(t *testing.T) {
		created := time.Unix(1700000000, 0)
		updated := created.Add(time.Minute)
		msgs := []models.Message{
			{ID: 30, Content: "newest first id", MessageType: models.MessageTypeText, CreatedAt: created, User: models.Author{ID: 1, Name: "Alice"}},
			{ID: 10, Content: "edited", CreatedAt: created, UpdatedAt: &updated, User: models.Author{ID: 2, Username: "bob"},
				ReplyTo: &models.ReplyRef{ID: 30, Content: "newest first id", User: models.Author{ID: 1, Name: "Alice"}}},
		}
		if err := store.SaveWindow(Window{Messages: msgs, HasMore: true, Total: 42}); err != nil {
			t.Fatalf("SaveWindow failed: %v", err)
		}

		w, err := store.LoadWindow()
		if err != nil {
			t.Fatalf("LoadWindow failed: %v", err)
		}
		if len(w.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(w.Messages))
		}
		// arrival order, not id order
		if w.Messages[0].ID != 30 || w.Messages[1].ID != 10 {
			t.Errorf("unexpected order: %d, %d", w.Messages[0].ID, w.Messages[1].ID)
		}
		if !w.HasMore || w.Total != 42 {
			t.Errorf("expected hasMore=true total=42, got %v %d", w.HasMore, w.Total)
		}
		if !w.Messages[1].Edited() {
			t.Error("expected edited flag to survive")
		}
		if w.Messages[1].ReplyTo == nil || w.Messages[1].ReplyTo.User.Name != "Alice" {
			t.Errorf("reply not restored: %+v", w.Messages[1].ReplyTo)
		}
		if !w.Messages[0].CreatedAt.Equal(created) {
			t.Errorf("expected createdAt %v, got %v", created, w.Messages[0].CreatedAt)
		}
		if w.SavedAt.IsZero() {
			t.Error("expected SavedAt to be set")
		}
	})

	t.Run("WindowReplaced", func(t *testing.T) {
		if err := store.SaveWindow(Window{Messages: []models.Message{{ID: 99}}}); err != nil {
			t.Fatalf("SaveWindow failed: %v", err)
		}
		w, err := store.LoadWindow()
		if err != nil {
			t.Fatalf("LoadWindow failed: %v", err)
		}
		if len(w.Messages) != 1 || w.Messages[0].ID != 99 {
			t.Errorf("expected only message 99, got %+v", w.Messages)
		}
	})

	t.Run("WindowCapped", func(t *testing.T) {
		msgs := make([]models.Message, MaxWindow+5)
		for i := range msgs {
			msgs[i] = models.Message{ID: int64(i + 1)}
		}
		if err := store.SaveWindow(Window{Messages: msgs}); err != nil {
			t.Fatalf("SaveWindow failed: %v", err)
		}
		w, err := store.LoadWindow()
		if err != nil {
			t.Fatalf("LoadWindow failed: %v", err)
		}
		if len(w.Messages) != MaxWindow {
			t.Fatalf("expected %d messages, got %d", MaxWindow, len(w.Messages))
		}
		if w.Messages[0].ID != 6 {
			t.Errorf("expected oldest kept id 6, got %d", w.Messages[0].ID)
		}
		if !w.HasMore {
			t.Error("expected hasMore after trimming")
		}
	})

	t.Run("Draft", func(t *testing.T) {
		d, err := store.LoadDraft()
		if err != nil {
			t.Fatalf("LoadDraft failed: %v", err)
		}
		if d.Text != "" {
			t.Errorf("expected empty draft, got %q", d.Text)
		}

		if err := store.SaveDraft(Draft{Text: "half written", ReplyToID: 5}); err != nil {
			t.Fatalf("SaveDraft failed: %v", err)
		}
		d, err = store.LoadDraft()
		if err != nil {
			t.Fatalf("LoadDraft failed: %v", err)
		}
		if d.Text != "half written" || d.ReplyToID != 5 {
			t.Errorf("unexpected draft %+v", d)
		}

		if err := store.SaveDraft(Draft{}); err != nil {
			t.Fatalf("SaveDraft failed: %v", err)
		}
		d, _ = store.LoadDraft()
		if d.Text != "" {
			t.Errorf("expected draft to be cleared, got %q", d.Text)
		}
	})
}
