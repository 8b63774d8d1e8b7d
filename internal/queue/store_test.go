package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	s := NewStore()
	t.Cleanup(s.Stop)
	return s
}

func TestStoreReturnsCopies(t *testing.T) {
	s := newTestStore(t)
	run := NewRun(RunRequest{Fixture: "f"})
	require.NoError(t, s.Save(run))

	got, err := s.Get(run.ID)
	require.NoError(t, err)
	got.SetProgress(Progress{Percent: 50}, "halfway")

	again, err := s.Get(run.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Progress.Percent)

	require.NoError(t, s.Update(got))
	again, err = s.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, again.Progress.Percent)
	assert.Equal(t, "halfway", again.Message)
}

func TestStoreNotFoundAndExpired(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("run_missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.Update(&Run{ID: "run_missing"}), ErrRunNotFound)
	assert.Error(t, s.Save(&Run{}))

	run := NewRun(RunRequest{IdempotencyKey: "old"})
	run.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, s.Save(run))

	_, err = s.Get(run.ID)
	assert.ErrorIs(t, err, ErrRunExpired)
	_, ok := s.ByIdempotencyKey("old")
	assert.False(t, ok)
	assert.Empty(t, s.List())

	assert.Equal(t, 1, s.dropExpired())
	_, err = s.Get(run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStoreIdempotency(t *testing.T) {
	s := newTestStore(t)
	run := NewRun(RunRequest{IdempotencyKey: "nightly-2026-10-18"})
	require.NoError(t, s.Save(run))

	got, ok := s.ByIdempotencyKey("nightly-2026-10-18")
	require.True(t, ok)
	assert.Equal(t, run.ID, got.ID)

	_, ok = s.ByIdempotencyKey("")
	assert.False(t, ok)

	s.Delete(run.ID)
	_, ok = s.ByIdempotencyKey("nightly-2026-10-18")
	assert.False(t, ok)
}

func TestStoreKeepsTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	run := NewRun(RunRequest{})
	require.NoError(t, s.Save(run))

	canceled, _ := s.Get(run.ID)
	canceled.SetStatus(RunCanceled)
	require.NoError(t, s.Update(canceled))

	run.SetStatus(RunRunning)
	assert.ErrorIs(t, s.Update(run), ErrRunFinished)

	got, _ := s.Get(run.ID)
	assert.Equal(t, RunCanceled, got.Status)
}

func TestStoreListOldestFirst(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	a := NewRun(RunRequest{})
	a.CreatedAt = now
	b := NewRun(RunRequest{})
	b.CreatedAt = now.Add(-time.Minute)
	require.NoError(t, s.Save(a))
	require.NoError(t, s.Save(b))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestStoreStopTwice(t *testing.T) {
	s := NewStore()
	s.Stop()
	s.Stop()
}

func TestSaveUniqueConcurrentSubmissions(t *testing.T) {
	s := newTestStore(t)

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		seen    []string
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := NewRun(RunRequest{Fixture: "f", IdempotencyKey: "deploy-42"})
			existing, dup, err := s.SaveUnique(run)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			if dup {
				seen = append(seen, existing.ID)
			} else {
				winners = append(winners, run.ID)
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Len(t, seen, n-1)
	for _, id := range seen {
		assert.Equal(t, winners[0], id)
	}
	assert.Len(t, s.List(), 1)
}

func TestSaveUniqueWithoutKey(t *testing.T) {
	s := newTestStore(t)
	for range 3 {
		_, dup, err := s.SaveUnique(NewRun(RunRequest{Fixture: "f"}))
		require.NoError(t, err)
		assert.False(t, dup)
	}
	assert.Len(t, s.List(), 3)
}
