package queue

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExpired is returned once a run's result TTL has passed.
	ErrRunExpired = errors.New("run expired")
	// ErrRunFinished is returned when an update would move a run out of a
	// terminal status, e.g. a worker reporting on a canceled run.
	ErrRunFinished = errors.New("run already finished")
)

const storeSweepInterval = time.Hour

// Store keeps runs in memory until their result TTL passes. It hands out
// copies only.
type Store struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	byKey  map[string]string // idempotency key -> run id
	stop   chan struct{}
	closed sync.Once
}

// NewStore creates a store and starts its expiry sweeper.
func NewStore() *Store {
	s := &Store{
		runs:  make(map[string]*Run),
		byKey: make(map[string]string),
		stop:  make(chan struct{}),
	}
	go s.sweep(storeSweepInterval)
	return s
}

func (s *Store) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.dropExpired(); n > 0 {
				log.Printf("Dropped %d expired runs", n)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Store) dropExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, run := range s.runs {
		if run.IsExpired() {
			s.remove(id)
			n++
		}
	}
	return n
}

// Stop ends the sweeper. It is safe to call more than once.
func (s *Store) Stop() {
	s.closed.Do(func() { close(s.stop) })
}

// Save stores a new run and indexes its idempotency key.
func (s *Store) Save(run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run.clone()
	if key := run.Request.IdempotencyKey; key != "" {
		s.byKey[key] = run.ID
	}
	return nil
}

// SaveUnique stores run unless a live run already holds its idempotency
// key, in which case that run is returned with duplicate set. The check and
// the insert happen under one lock.
func (s *Store) SaveUnique(run *Run) (existing *Run, duplicate bool, err error) {
	if run == nil || run.ID == "" {
		return nil, false, errors.New("run has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := run.Request.IdempotencyKey
	if key != "" {
		if prev, ok := s.runs[s.byKey[key]]; ok && !prev.IsExpired() {
			return prev.clone(), true, nil
		}
		s.byKey[key] = run.ID
	}
	s.runs[run.ID] = run.clone()
	return nil, false, nil
}

// ByIdempotencyKey returns the live run submitted under key.
func (s *Store) ByIdempotencyKey(key string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[s.byKey[key]]
	if !ok || run.IsExpired() {
		return nil, false
	}
	return run.clone(), true
}

// Get returns a copy of the run with the given id.
func (s *Store) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case run.IsExpired():
		return nil, fmt.Errorf("%w: %s", ErrRunExpired, id)
	}
	return run.clone(), nil
}

// Update replaces a stored run. A run that reached a terminal status keeps
// it.
func (s *Store) Update(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	if cur.Status.IsTerminal() && cur.Status != run.Status {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, run.ID, cur.Status)
	}
	s.runs[run.ID] = run.clone()
	return nil
}

// Delete forgets a run.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
}

func (s *Store) remove(id string) {
	if run, ok := s.runs[id]; ok {
		if key := run.Request.IdempotencyKey; key != "" && s.byKey[key] == id {
			delete(s.byKey, key)
		}
	}
	delete(s.runs, id)
}

// List returns every live run, oldest first.
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		if !run.IsExpired() {
			runs = append(runs, run.clone())
		}
	}
	slices.SortFunc(runs, func(a, b *Run) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return runs
}
