package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remitstream/remitcore/contracts"
)

func TestRunStoreRejectsLiveDuplicate(t *testing.T) {
	s := newRunStore()

	_, err := s.create("ref-1", func() {})
	require.NoError(t, err)

	_, err = s.create("ref-1", func() {})
	require.ErrorIs(t, err, contracts.ErrBusy)

	// A finished reference may run again.
	s.markDone("ref-1", &contracts.WorkflowResult{OK: true}, nil)
	_, err = s.create("ref-1", func() {})
	require.NoError(t, err)
}

func TestRunStoreAbort(t *testing.T) {
	s := newRunStore()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.create("ref-1", cancel)
	require.NoError(t, err)

	require.NoError(t, s.abort("ref-1"))
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	// Idempotent once finished, error for unknown references.
	s.markDone("ref-1", nil, contracts.ErrCancelled)
	require.NoError(t, s.abort("ref-1"))
	require.ErrorIs(t, s.abort("ref-ghost"), contracts.ErrValidationFailed)
}

func TestRunStoreWaitAll(t *testing.T) {
	s := newRunStore()
	_, err := s.create("ref-1", func() {})
	require.NoError(t, err)

	// An unfinished run survives the deadline.
	require.Equal(t, 1, s.waitAll(10*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.markDone("ref-1", &contracts.WorkflowResult{OK: true}, nil)
	}()
	require.Zero(t, s.waitAll(time.Second))
}

func TestRunStorePruneKeepsLiveRuns(t *testing.T) {
	s := newRunStore()
	_, err := s.create("ref-live", func() {})
	require.NoError(t, err)
	_, err = s.create("ref-done", func() {})
	require.NoError(t, err)
	s.markDone("ref-done", &contracts.WorkflowResult{OK: true}, nil)

	require.Zero(t, s.prune(0), "non-positive retention disables pruning")

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, s.prune(time.Millisecond))

	_, ok := s.snapshot("ref-live")
	require.True(t, ok, "in-flight runs are never pruned")
}
