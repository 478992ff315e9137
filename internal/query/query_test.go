package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"discuss/internal/feed"
	"discuss/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	pages     map[PageKey]models.Page
	fetchErr  error
	fetches   int
	edited    *models.Message
	editErr   error
	deleteErr error
	deleted   []int64
}

func (f *fakeAPI) FetchMessages(ctx context.Context, limit, offset int) (models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return models.Page{}, f.fetchErr
	}
	return f.pages[PageKey{Limit: limit, Offset: offset}], nil
}

func (f *fakeAPI) EditMessage(ctx context.Context, id int64, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edited, f.editErr
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func msg(id int64, content string) models.Message {
	return models.Message{ID: id, Content: content, CreatedAt: time.Unix(id, 0)}
}

func newClient(t *testing.T, api *fakeAPI) (*Client, *feed.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store := feed.NewStore()
	return New(ctx, api, store, Config{PageSize: 2, Stale: time.Minute}), store
}

func TestMessages_Cached(t *testing.T) {
	api := &fakeAPI{pages: map[PageKey]models.Page{
		{Limit: 2, Offset: 0}: {Messages: []models.Message{msg(1, "a"), msg(2, "b")}, HasMore: true, Total: 3},
	}}
	c, _ := newClient(t, api)

	page, err := c.Messages(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, 3, page.Total)

	_, err = c.Messages(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, api.fetchCount())

	c.Invalidate()
	_, err = c.Messages(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, api.fetchCount())
}

func TestMessages_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	c, _ := newClient(t, &fakeAPI{fetchErr: boom})

	_, err := c.Messages(context.Background(), 2, 4)
	require.ErrorIs(t, err, boom)

	var qe *Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, PageKey{Limit: 2, Offset: 4}, qe.Key)
}

func TestMutators(t *testing.T) {
	c, store := newClient(t, &fakeAPI{})
	store.Dispatch(feed.Replace(models.Page{Messages: []models.Message{msg(1, "a")}, Total: 1}))

	c.AddMessage(msg(2, "b"))
	c.AddMessage(msg(2, "b"))
	snap := store.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, 2, snap.Total)

	c.UpdateMessage(msg(1, "a2"))
	m, ok := store.Snapshot().Find(1)
	require.True(t, ok)
	assert.Equal(t, "a2", m.Content)

	c.UpdateMessage(msg(9, "ghost"))
	assert.Equal(t, 2, store.Len())

	c.RemoveMessage(1)
	c.RemoveMessage(1)
	assert.Equal(t, 1, store.Len())
}

func TestAddMessage_InvalidatesPages(t *testing.T) {
	api := &fakeAPI{pages: map[PageKey]models.Page{}}
	c, _ := newClient(t, api)

	_, err := c.Messages(context.Background(), 2, 0)
	require.NoError(t, err)
	c.AddMessage(msg(5, "live"))
	_, err = c.Messages(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, api.fetchCount())
}

func TestEditMessage_RefreshesNewestPage(t *testing.T) {
	api := &fakeAPI{pages: map[PageKey]models.Page{
		{Limit: 2, Offset: 0}: {Messages: []models.Message{msg(2, "b"), msg(3, "edited")}, Total: 3},
	}}
	c, store := newClient(t, api)
	store.Dispatch(feed.Replace(models.Page{Messages: []models.Message{msg(1, "a"), msg(2, "b"), msg(3, "c")}, Total: 3}))

	require.NoError(t, c.EditMessage(context.Background(), 3, "edited"))

	snap := store.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "edited", snap.Messages[2].Content)
	assert.Equal(t, 1, api.fetchCount())
}

func TestEditMessage_OlderMessagePatched(t *testing.T) {
	updated := msg(1, "old but edited")
	api := &fakeAPI{
		edited: &updated,
		pages: map[PageKey]models.Page{
			{Limit: 2, Offset: 0}: {Messages: []models.Message{msg(2, "b"), msg(3, "c")}, Total: 3},
		},
	}
	c, store := newClient(t, api)
	store.Dispatch(feed.Replace(models.Page{Messages: []models.Message{msg(1, "a"), msg(2, "b"), msg(3, "c")}, Total: 3}))

	require.NoError(t, c.EditMessage(context.Background(), 1, "old but edited"))
	m, ok := store.Snapshot().Find(1)
	require.True(t, ok)
	assert.Equal(t, "old but edited", m.Content)
}

func TestEditMessage_Error(t *testing.T) {
	boom := errors.New("forbidden")
	c, store := newClient(t, &fakeAPI{editErr: boom})
	store.Dispatch(feed.Replace(models.Page{Messages: []models.Message{msg(1, "a")}}))

	err := c.EditMessage(context.Background(), 1, "x")
	assert.ErrorIs(t, err, boom)
	m, _ := store.Snapshot().Find(1)
	assert.Equal(t, "a", m.Content)
}

func TestDeleteMessage(t *testing.T) {
	api := &fakeAPI{}
	c, store := newClient(t, api)
	store.Dispatch(feed.Replace(models.Page{Messages: []models.Message{msg(1, "a"), msg(2, "b")}, Total: 2}))

	require.NoError(t, c.DeleteMessage(context.Background(), 1))
	assert.Equal(t, []int64{1}, api.deleted)
	snap := store.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, int64(2), snap.Messages[0].ID)

	api.deleteErr = errors.New("nope")
	require.Error(t, c.DeleteMessage(context.Background(), 2))
	assert.Equal(t, 1, store.Len())
}
