package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) ports.Store {
		return NewMemoryStore(nil)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, &domain.Run{
		ID: "run-1", WorkflowID: "wf", Status: domain.RunStatusRunning, ExecutedAt: time.Now(),
	}))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	got.Status = domain.RunStatusCompleted

	again, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, again.Status)
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Close())

	err := store.CreateRun(context.Background(), &domain.Run{
		ID: "run-1", WorkflowID: "wf", Status: domain.RunStatusRunning,
	})
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}
