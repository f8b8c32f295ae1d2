package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTracker_StartAndComplete(t *testing.T) {
	trk := New()
	ctx := context.Background()

	id := trk.Start(ctx, "https://example.test/a")
	assert.Equal(t, 1, trk.ActiveCount())
	assert.False(t, trk.IsCancelled(id))

	assert.True(t, trk.Complete(ctx, id))
	assert.Equal(t, 0, trk.ActiveCount())

	// completing twice reports false, there is nothing tracked anymore
	assert.False(t, trk.Complete(ctx, id))
}

func TestTracker_RegisterClaimedID(t *testing.T) {
	trk := New()
	ctx := context.Background()

	id := uuid.New()
	trk.Register(ctx, id, "https://example.test/a")

	assert.Equal(t, 1, trk.ActiveCount())
	assert.False(t, trk.IsCancelled(id))
	assert.True(t, trk.Complete(ctx, id))
}

func TestTracker_CancelIsMonotonic(t *testing.T) {
	trk := New()
	ctx := context.Background()

	id := trk.Start(ctx, "https://example.test/a")

	trk.Cancel(ctx, id)
	assert.True(t, trk.IsCancelled(id))

	// idempotent
	trk.Cancel(ctx, id)
	assert.True(t, trk.IsCancelled(id))

	// a cancelled download never completes successfully
	assert.False(t, trk.Complete(ctx, id))
}

func TestTracker_UnknownID(t *testing.T) {
	trk := New()
	ctx := context.Background()

	id := uuid.New()

	assert.False(t, trk.IsCancelled(id))
	trk.Cancel(ctx, id) // no-op
	assert.False(t, trk.Complete(ctx, id))
}

func TestTracker_CleanupStale(t *testing.T) {
	trk := New()
	ctx := context.Background()

	stale := trk.Start(ctx, "https://example.test/stale")
	fresh := trk.Start(ctx, "https://example.test/fresh")

	trk.mu.Lock()
	trk.active[stale].StartedAt = time.Now().Add(-StaleAfter - time.Minute)
	trk.mu.Unlock()

	removed := trk.CleanupStale(ctx)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, trk.ActiveCount())
	assert.Equal(t, []uuid.UUID{fresh}, trk.ActiveIDs())
}

func TestTracker_CancelAll(t *testing.T) {
	trk := New()
	ctx := context.Background()

	a := trk.Start(ctx, "https://example.test/a")
	b := trk.Start(ctx, "https://example.test/b")

	trk.CancelAll(ctx)

	assert.True(t, trk.IsCancelled(a))
	assert.True(t, trk.IsCancelled(b))
}

func TestTracker_Clear(t *testing.T) {
	trk := New()
	ctx := context.Background()

	trk.Start(ctx, "https://example.test/a")
	trk.Clear()

	assert.Equal(t, 0, trk.ActiveCount())
}
