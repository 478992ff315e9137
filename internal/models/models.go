package models

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

type MessageType string

const (
	MessageTypeText MessageType = "text"
)

// Author is the sender of a message as the server reports it.
type Author struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// DisplayName falls back to the username when no name is set.
func (a Author) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Username != "" {
		return a.Username
	}
	return "Unknown"
}

// ReplyRef is a shallow copy of the message being replied to.
type ReplyRef struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	User    Author `json:"user"`
}

// Message represents a chat message. ID is unique within a feed and is
// kept across edits.
type Message struct {
	ID          int64       `json:"id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   *time.Time  `json:"updatedAt,omitempty"`
	User        Author      `json:"user"`
	ReplyTo     *ReplyRef   `json:"replyTo,omitempty"`
}

// Edited reports whether the message was changed after creation.
func (m Message) Edited() bool {
	return m.UpdatedAt != nil && m.UpdatedAt.After(m.CreatedAt)
}

// Page is one fetched window of the feed, oldest first.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
	Total    int       `json:"total"`
}

// Event names of the real-time contract.
type EventName string

const (
	EventSendGlobalMessage EventName = "send-global-message"
	EventTypingStart       EventName = "typing-start"
	EventTypingStop        EventName = "typing-stop"
	EventNewGlobalMessage  EventName = "new-global-message"
	EventUserTyping        EventName = "user-typing"
	EventConnectError      EventName = "connect_error"
)

// Envelope is a single frame on the wire.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutgoingMessage is the payload of send-global-message.
type OutgoingMessage struct {
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType,omitempty"`
	ReplyToID   *int64      `json:"replyToId,omitempty"`
	ClientID    string      `json:"clientId,omitempty"`
}

// TypingEvent is the payload of user-typing.
type TypingEvent struct {
	UserID int64 `json:"userId"`
	Typing bool  `json:"typing"`
}

// ConnectError is the payload of connect_error.
type ConnectError struct {
	Message string `json:"message"`
}
