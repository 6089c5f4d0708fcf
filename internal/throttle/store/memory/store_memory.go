// Package memory is an in-process throttle store. Keys are spread over
// striped mutexes so concurrent failures on different keys never contend,
// while read-modify-write on one key is serialized.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"warden/internal/throttle/models"
)

const stripes = 64

type stripe struct {
	mu      sync.Mutex
	records map[string]*models.Record
}

// InMemoryThrottleStore implements the throttle service Store.
type InMemoryThrottleStore struct {
	stripes [stripes]stripe
}

func New() *InMemoryThrottleStore {
	s := &InMemoryThrottleStore{}
	for i := range s.stripes {
		s.stripes[i].records = make(map[string]*models.Record)
	}
	return s
}

func (s *InMemoryThrottleStore) stripeFor(key string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%stripes]
}

// Get returns a copy of the record, or nil when the key has no history.
func (s *InMemoryThrottleStore) Get(_ context.Context, key string) (*models.Record, error) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, ok := st.records[key]
	if !ok {
		return nil, nil
	}
	return clone(rec), nil
}

// RecordAttempt appends at and prunes attempts older than interval, as one
// step under the key's stripe lock.
func (s *InMemoryThrottleStore) RecordAttempt(_ context.Context, key string, at time.Time, interval time.Duration) (*models.Record, error) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.records[key]
	if !ok {
		rec = &models.Record{Key: key}
		st.records[key] = rec
	}
	rec.Attempts = insertSorted(rec.Attempts, at)
	rec.Prune(at.Add(-interval))
	return clone(rec), nil
}

// ExtendLock moves LockedUntil forward; an earlier until is ignored.
func (s *InMemoryThrottleStore) ExtendLock(_ context.Context, key string, until time.Time) error {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.records[key]
	if !ok {
		rec = &models.Record{Key: key}
		st.records[key] = rec
	}
	if rec.LockedUntil == nil || until.After(*rec.LockedUntil) {
		u := until
		rec.LockedUntil = &u
	}
	return nil
}

func (s *InMemoryThrottleStore) Clear(_ context.Context, key string) error {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.records, key)
	return nil
}

// DeleteStale drops records whose newest attempt and lock both lie at or
// before cutoff.
func (s *InMemoryThrottleStore) DeleteStale(_ context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for key, rec := range st.records {
			if isStale(rec, cutoff) {
				delete(st.records, key)
				deleted++
			}
		}
		st.mu.Unlock()
	}
	return deleted, nil
}

func isStale(rec *models.Record, cutoff time.Time) bool {
	if n := len(rec.Attempts); n > 0 && rec.Attempts[n-1].After(cutoff) {
		return false
	}
	return rec.LockedUntil == nil || !rec.LockedUntil.After(cutoff)
}

// insertSorted keeps attempts ascending even when callers record slightly
// out of order.
func insertSorted(attempts []time.Time, at time.Time) []time.Time {
	i := len(attempts)
	for i > 0 && attempts[i-1].After(at) {
		i--
	}
	attempts = append(attempts, time.Time{})
	copy(attempts[i+1:], attempts[i:])
	attempts[i] = at
	return attempts
}

func clone(rec *models.Record) *models.Record {
	out := &models.Record{
		Key:      rec.Key,
		Attempts: append([]time.Time(nil), rec.Attempts...),
	}
	if rec.LockedUntil != nil {
		u := *rec.LockedUntil
		out.LockedUntil = &u
	}
	return out
}
