package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"discuss/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers every send-global-message with a stored message.
func echoServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()

		for {
			var env models.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			if env.Event != models.EventSendGlobalMessage {
				continue
			}
			var out models.OutgoingMessage
			if err := json.Unmarshal(env.Data, &out); err != nil {
				return
			}
			stored, _ := json.Marshal(models.Message{
				ID:          100,
				Content:     out.Content,
				MessageType: out.MessageType,
				CreatedAt:   time.Now(),
				User:        models.Author{ID: 1, Name: "Alice"},
			})
			if err := ws.WriteJSON(models.Envelope{Event: models.EventNewGlobalMessage, Data: stored}); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebsocketDialer_RoundTrip(t *testing.T) {
	srv := echoServer(t, "secret")
	defer srv.Close()

	received := make(chan models.Message, 1)
	c := NewClient(Config{
		Dialer: &WebsocketDialer{URL: wsURL(srv), Token: "secret"},
	}, Handlers{
		OnNewMessage: func(m models.Message) { received <- m },
	})
	require.NoError(t, c.Connect(context.Background()))
	defer func() { _ = c.Close() }()

	require.NoError(t, c.SendMessage(models.OutgoingMessage{Content: "over the wire"}))

	select {
	case m := <-received:
		assert.Equal(t, int64(100), m.ID)
		assert.Equal(t, "over the wire", m.Content)
		assert.Equal(t, "Alice", m.User.DisplayName())
	case <-time.After(2 * time.Second):
		t.Fatal("echo not received")
	}
}

func TestWebsocketDialer_Unauthorized(t *testing.T) {
	srv := echoServer(t, "secret")
	defer srv.Close()

	d := &WebsocketDialer{URL: wsURL(srv), Token: "wrong"}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
