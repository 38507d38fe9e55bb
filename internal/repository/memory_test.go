package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

func lockCount(s *MemoryStore) int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func TestMemoryStore_LocksPrunedForGoneResources(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	res := seedResource(t, s, intPtr(2))

	_, err := admit(ctx, s, res.ID, "alice@example.org")
	require.NoError(t, err)
	require.Equal(t, 1, lockCount(s))

	require.NoError(t, s.DeleteResource(ctx, res.ID))
	require.Equal(t, 0, lockCount(s))

	_, err = admit(ctx, s, uuid.NewString(), "bob@example.org")
	require.ErrorIs(t, err, model.ErrNotFound)
	require.Equal(t, 0, lockCount(s))

	// A live resource keeps its semaphore.
	other := seedResource(t, s, nil)
	_, err = admit(ctx, s, other.ID, "carol@example.org")
	require.NoError(t, err)
	require.Equal(t, 1, lockCount(s))
}
