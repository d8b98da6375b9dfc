package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
)

type memoryRepo struct {
	turns     []model.ChatTurn
	listCalls int
}

func (r *memoryRepo) Create(turn *model.ChatTurn) error {
	turn.ID = uint(len(r.turns) + 1)
	r.turns = append(r.turns, *turn)
	return nil
}

func (r *memoryRepo) ListBySessionID(sessionID string, _ int) ([]model.ChatTurn, error) {
	r.listCalls++
	var out []model.ChatTurn
	for _, t := range r.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteBySessionID(sessionID string) error {
	kept := r.turns[:0]
	for _, t := range r.turns {
		if t.SessionID != sessionID {
			kept = append(kept, t)
		}
	}
	r.turns = kept
	return nil
}

type memoryCache struct {
	history map[string][]model.ChatTurn
	dirty   map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{history: map[string][]model.ChatTurn{}, dirty: map[string]bool{}}
}

func (c *memoryCache) GetHistory(_ context.Context, id string) ([]model.ChatTurn, bool, error) {
	h, ok := c.history[id]
	return h, ok, nil
}

func (c *memoryCache) SetHistory(_ context.Context, id string, turns []model.ChatTurn) error {
	c.history[id] = turns
	return nil
}

func (c *memoryCache) DeleteHistory(_ context.Context, id string) error {
	delete(c.history, id)
	return nil
}

func (c *memoryCache) MarkDirty(_ context.Context, id string) error {
	c.dirty[id] = true
	return nil
}

func (c *memoryCache) IsDirty(_ context.Context, id string) (bool, error) {
	return c.dirty[id], nil
}

type recordingPublisher struct {
	published []model.ChatTurn
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, turn model.ChatTurn) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, turn)
	return nil
}

func TestDatabaseTurnStore_SynchronousWithCache(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	cache := newMemoryCache()
	store := NewDatabaseTurnStore(repo, nil, cache, 0)

	require.NoError(t, store.Append(ctx, model.ChatTurn{SessionID: "s", Role: model.RoleUser, Content: "q"}))
	assert.True(t, cache.dirty["s"])

	turns, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 1, repo.listCalls)
	_, cached := cache.history["s"]
	assert.False(t, cached, "dirty sessions are not cached")

	cache.dirty["s"] = false
	_, err = store.Load(ctx, "s")
	require.NoError(t, err)
	_, err = store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls, "second clean read is served from cache")
}

func TestDatabaseTurnStore_Async(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	pub := &recordingPublisher{}
	store := NewDatabaseTurnStore(repo, pub, nil, 0)

	require.NoError(t, store.Append(ctx, model.ChatTurn{SessionID: "s", Role: model.RoleUser, Content: "q"}))
	assert.Len(t, pub.published, 1)
	assert.Empty(t, repo.turns)

	pub.err = errors.New("broker closed")
	err := store.Append(ctx, model.ChatTurn{SessionID: "s", Role: model.RoleUser, Content: "q2"})
	assert.ErrorIs(t, err, ErrTurnEnqueue)
}

func TestDatabaseTurnStore_Clear(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	cache := newMemoryCache()
	store := NewDatabaseTurnStore(repo, nil, cache, 0)
	require.NoError(t, store.Append(ctx, model.ChatTurn{SessionID: "s", Role: model.RoleUser, Content: "q"}))
	cache.history["s"] = repo.turns

	require.NoError(t, store.Clear(ctx, "s"))
	assert.Empty(t, repo.turns)
	_, cached := cache.history["s"]
	assert.False(t, cached)
}
