package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvenue/seatfloor/internal/errors"
	"github.com/openvenue/seatfloor/pkg/logger"
)

func newTestRegistry() *Registry {
	return New(logger.InitializeTestZapLogger())
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	ss, err := r.Create(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, ss)
	assert.Equal(t, "s1", ss.ID)
	assert.Empty(t, ss.EventID)
	assert.Equal(t, 1, r.Count())

	got, err := r.Get("s1")
	require.NoError(t, err)
	assert.Same(t, ss, got)
}

func TestCreateDuplicate(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, "s1")
	require.NoError(t, err)

	_, err = r.Create(ctx, "s1")
	assert.ErrorIs(t, err, errors.ErrDuplicateSession)
	assert.Equal(t, 1, r.Count())
}

func TestGetUnknown(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestDestroy(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, "s1")
	require.NoError(t, err)

	r.Destroy(ctx, "s1")
	assert.Equal(t, 0, r.Count())

	_, err = r.Get("s1")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)

	// Destroying an absent session is a no-op.
	r.Destroy(ctx, "s1")
}

func TestPendingSeatsIdempotent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	ss, err := r.Create(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, r.AddPendingSeat("s1", 7))
	require.NoError(t, r.AddPendingSeat("s1", 3))
	require.NoError(t, r.AddPendingSeat("s1", 7)) // duplicate pick

	ss.Lock()
	assert.Equal(t, []int64{3, 7}, ss.PendingSeats())
	ss.Unlock()

	require.NoError(t, r.RemovePendingSeat("s1", 7))
	require.NoError(t, r.RemovePendingSeat("s1", 99)) // absent seat

	ss.Lock()
	assert.Equal(t, []int64{3}, ss.PendingSeats())
	ss.Unlock()
}

func TestPendingSeatsUnknownSession(t *testing.T) {
	r := newTestRegistry()

	assert.ErrorIs(t, r.AddPendingSeat("nope", 1), errors.ErrSessionNotFound)
	assert.ErrorIs(t, r.RemovePendingSeat("nope", 1), errors.ErrSessionNotFound)
}
