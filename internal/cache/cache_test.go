package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := NewKey(EntityFavorite, "u1", "t1")
	assert.Equal(t, "favorite/u1/t1", k.String())
	assert.Equal(t, "downloads", NewKey(EntityDownloads).String())

	assert.True(t, k.matches(EntityFavorite, ""))
	assert.True(t, k.matches(EntityFavorite, "u1"))
	assert.True(t, k.matches(EntityFavorite, "u1/t1"))
	assert.False(t, k.matches(EntityFavorite, "u"))
	assert.False(t, k.matches(EntityFavorites, "u1"))
}

func TestIntent_VisibleThenRollback(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorite, "u1", "t1")
	c.Set(key, false)

	in, err := c.Begin(key, true)
	require.NoError(t, err)

	got, ok := GetAs[bool](c, key)
	assert.True(t, ok)
	assert.True(t, got, "tentative value visible immediately")

	in.Rollback()

	got, ok = GetAs[bool](c, key)
	assert.True(t, ok)
	assert.False(t, got, "snapshot restored")
	assert.False(t, c.Pending(key))
}

func TestIntent_RollbackWithoutSnapshotClears(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorite, "u1", "t1")

	in, err := c.Begin(key, true)
	require.NoError(t, err)
	in.Rollback()

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestIntent_RollbackRestoresSnapshotAfterInvalidate(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorite, "u1", "t1")
	c.Set(key, false)

	in, err := c.Begin(key, true)
	require.NoError(t, err)

	c.Invalidate(EntityFavorite, "u1")
	got, _ := GetAs[bool](c, key)
	assert.True(t, got, "pending intent survives invalidation")

	in.Rollback()
	got, ok := GetAs[bool](c, key)
	assert.True(t, ok)
	assert.False(t, got)
}

func TestIntent_CommitAndIdempotence(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorite, "u1", "t1")
	c.Set(key, false)

	in, err := c.Begin(key, true)
	require.NoError(t, err)

	in.Commit(true)
	in.Rollback()

	got, _ := GetAs[bool](c, key)
	assert.True(t, got, "rollback after commit is a no-op")
}

func TestBegin_RejectsSecondIntent(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityCollectionItems, "c1")

	_, err := c.Begin(key, []string{"a"})
	require.NoError(t, err)

	_, err = c.Begin(key, []string{"b"})
	assert.ErrorIs(t, err, ErrIntentPending)
}

func TestFetch_LoadsOnceAndCaches(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorites, "u1")
	var calls atomic.Int32

	load := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"t1"}, nil
	}

	for range 3 {
		got, err := FetchAs(context.Background(), c, key, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1"}, got)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_ConcurrentCallersShareLoad(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFeatured)
	release := make(chan struct{})
	var calls atomic.Int32

	load := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), key, load)
			assert.NoError(t, err)
			assert.Equal(t, "value", v)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCancelInFlight_DiscardsResult(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorite, "u1", "t1")
	started := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Refetch(context.Background(), key, func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()

	<-started
	c.CancelInFlight(key)

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	_, ok := c.Get(key)
	assert.False(t, ok, "cancelled load must not commit")
}

func TestRefetch_SupersededLoadNotCommitted(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorite, "u1", "t1")
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Refetch(context.Background(), key, func(context.Context) (any, error) {
			close(started)
			<-release
			return false, nil
		})
	}()

	<-started
	c.Set(key, true)
	close(release)
	<-done

	got, _ := GetAs[bool](c, key)
	assert.True(t, got, "stale load must not overwrite a newer Set")
}

func TestRefetch_ReturnsPendingValue(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityFavorite, "u1", "t1")

	_, err := c.Begin(key, true)
	require.NoError(t, err)

	v, err := c.Refetch(context.Background(), key, func(context.Context) (any, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestFetch_LoadError(t *testing.T) {
	c := New(nil)
	key := NewKey(EntityCatalog)
	boom := errors.New("boom")

	_, err := c.Fetch(context.Background(), key, func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New(nil)
	c.Set(NewKey(EntityFavorite, "u1", "t1"), true)
	c.Set(NewKey(EntityFavorite, "u1", "t2"), true)
	c.Set(NewKey(EntityFavorite, "u2", "t1"), true)
	c.Set(NewKey(EntityFavorites, "u1"), []string{"t1"})

	assert.Equal(t, 2, c.Invalidate(EntityFavorite, "u1"))

	_, ok := c.Get(NewKey(EntityFavorite, "u2", "t1"))
	assert.True(t, ok)
	_, ok = c.Get(NewKey(EntityFavorites, "u1"))
	assert.True(t, ok)

	assert.Equal(t, 1, c.Invalidate(EntityFavorites))
}
