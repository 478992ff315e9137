// Package query caches feed pages and applies server results to the feed.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"discuss/internal/feed"
	"discuss/internal/models"

	"github.com/c-pro/geche"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	DefaultStale    = 30 * time.Second
)

// PageKey identifies one cached page.
type PageKey struct {
	Limit  int
	Offset int
}

// API is the backend the cache reads through.
type API interface {
	FetchMessages(ctx context.Context, limit, offset int) (models.Page, error)
	EditMessage(ctx context.Context, id int64, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
}

type Config struct {
	PageSize int
	// Stale is how long a fetched page is served from the cache.
	Stale  time.Duration
	Logger *zap.SugaredLogger
}

type Client struct {
	api      API
	feed     *feed.Store
	pageSize int
	logger   *zap.SugaredLogger

	pages geche.Geche[PageKey, models.Page]

	mu   sync.Mutex
	keys map[PageKey]struct{}
}

// New binds the cache to a feed store. ctx bounds the cache cleanup loop.
func New(ctx context.Context, api API, store *feed.Store, cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Stale <= 0 {
		cfg.Stale = DefaultStale
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		api:      api,
		feed:     store,
		pageSize: cfg.PageSize,
		logger:   cfg.Logger,
		pages:    geche.NewMapTTLCache[PageKey, models.Page](ctx, cfg.Stale, cfg.Stale),
		keys:     make(map[PageKey]struct{}),
	}
}

func (c *Client) PageSize() int {
	return c.pageSize
}

func (c *Client) Feed() *feed.Store {
	return c.feed
}

// Messages returns the page at (limit, offset), from the cache while fresh.
func (c *Client) Messages(ctx context.Context, limit, offset int) (models.Page, error) {
	key := PageKey{Limit: limit, Offset: offset}
	page, err := c.pages.Get(key)
	if err == nil {
		return page, nil
	}
	if !errors.Is(err, geche.ErrNotFound) {
		return models.Page{}, err
	}

	page, err = c.api.FetchMessages(ctx, limit, offset)
	if err != nil {
		return models.Page{}, &Error{Key: key, Err: err}
	}
	c.pages.Set(key, page)

	c.mu.Lock()
	c.keys[key] = struct{}{}
	c.mu.Unlock()
	return page, nil
}

// Invalidate drops every cached page.
func (c *Client) Invalidate() {
	c.mu.Lock()
	keys := c.keys
	c.keys = make(map[PageKey]struct{})
	c.mu.Unlock()

	for key := range keys {
		_ = c.pages.Del(key)
	}
}

// EditMessage updates the message on the server and refreshes the newest
// page into the feed.
func (c *Client) EditMessage(ctx context.Context, id int64, content string) error {
	updated, err := c.api.EditMessage(ctx, id, content)
	if err != nil {
		return err
	}
	c.Invalidate()

	page, err := c.Messages(ctx, c.pageSize, 0)
	if err != nil {
		c.logger.Warnw("Failed to refresh feed after edit", "message_id", id, "error", err)
		if updated != nil {
			c.feed.Dispatch(feed.Update(*updated))
		}
		return nil
	}
	c.feed.Dispatch(feed.Upsert(page.Messages))

	// an edited message older than the newest page is not in the refetch
	if updated != nil {
		if _, ok := findMessage(page.Messages, id); !ok {
			c.feed.Dispatch(feed.Update(*updated))
		}
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	if err := c.api.DeleteMessage(ctx, id); err != nil {
		return err
	}
	c.RemoveMessage(id)
	return nil
}

// AddMessage appends a live message; an existing id is updated in place.
func (c *Client) AddMessage(m models.Message) {
	if c.feed.Dispatch(feed.Append(m)) {
		c.Invalidate()
	}
}

func (c *Client) UpdateMessage(m models.Message) {
	if c.feed.Dispatch(feed.Update(m)) {
		c.Invalidate()
	}
}

func (c *Client) RemoveMessage(id int64) {
	if c.feed.Dispatch(feed.Remove(id)) {
		c.Invalidate()
	}
}

func findMessage(ms []models.Message, id int64) (models.Message, bool) {
	for _, m := range ms {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Error wraps a query failure with the page it was for.
type Error struct {
	Key PageKey
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("page limit=%d offset=%d: %v", e.Key.Limit, e.Key.Offset, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
