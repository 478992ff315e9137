package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Conn is the part of a websocket connection the client uses.
type Conn interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketDialer opens the chat socket with the user's credentials.
type WebsocketDialer struct {
	URL    string
	Token  string
	Header http.Header
	Dialer *websocket.Dialer
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	for k, v := range d.Header {
		header[k] = v
	}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s (%s): %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return conn, nil
}
