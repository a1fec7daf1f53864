// Package memstore is an in-memory domain.Store. Values are kept
// JSON-encoded so callers never share memory with the store, exactly as
// with the SQLite adapter.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tutu-network/rivals/internal/domain"
)

type datedKey struct {
	key  string
	date domain.Date
}

type summaryRow struct {
	data     []byte
	consumed bool
}

// Store is a process-local Store. The zero value is not usable; call New.
type Store struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	dated     map[datedKey][]byte
	summaries map[datedKey]*summaryRow

	failErr   error
	failCount int
	writes    int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		snapshots: make(map[string][]byte),
		dated:     make(map[datedKey][]byte),
		summaries: make(map[datedKey]*summaryRow),
	}
}

// FailWrites makes the next n writes return err. n < 0 fails until reset
// with FailWrites(0, nil).
func (s *Store) FailWrites(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCount = n
	s.failErr = err
}

// Writes returns the number of successful writes so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// PutRaw stores raw bytes under key, for simulating corruption.
func (s *Store) PutRaw(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = append([]byte(nil), data...)
}

// writeErr must be called with mu held.
func (s *Store) writeErr() error {
	if s.failCount == 0 {
		return nil
	}
	if s.failCount > 0 {
		s.failCount--
	}
	return s.failErr
}

func (s *Store) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	s.mu.Lock()
	data, ok := s.snapshots[key]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return decodeSnapshot(data)
}

func (s *Store) Save(ctx context.Context, key string, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	s.snapshots[key] = data
	s.writes++
	return nil
}

func (s *Store) LoadByDate(ctx context.Context, key string, date domain.Date) (*domain.Snapshot, error) {
	s.mu.Lock()
	data, ok := s.dated[datedKey{key, date}]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return decodeSnapshot(data)
}

func (s *Store) SaveDated(ctx context.Context, key string, date domain.Date, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	s.dated[datedKey{key, date}] = data
	s.writes++
	return nil
}

func (s *Store) PendingSummary(ctx context.Context, key string) (*domain.DailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest domain.Date
	var row *summaryRow
	for k, r := range s.summaries {
		if k.key != key || r.consumed || (row != nil && !k.date.After(newest)) {
			continue
		}
		newest, row = k.date, r
	}
	if row == nil {
		return nil, domain.ErrSummaryNotFound
	}
	return decodeSummary(row.data)
}

func (s *Store) SavePendingSummary(ctx context.Context, key string, sum domain.DailySummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return err
	}
	k := datedKey{key, sum.Date}
	if r, ok := s.summaries[k]; ok && r.consumed {
		// Already handed off; never resurrect.
		return nil
	}
	s.summaries[k] = &summaryRow{data: data}
	s.writes++
	return nil
}

func (s *Store) ConsumeSummary(ctx context.Context, key string, date domain.Date) (*domain.DailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return nil, err
	}

	row, ok := s.summaries[datedKey{key, date}]
	var found *summaryRow
	if ok && !row.consumed {
		found = row
	}
	// Older unconsumed summaries are superseded.
	for k, r := range s.summaries {
		if k.key == key && !k.date.After(date) {
			r.consumed = true
		}
	}
	if found == nil {
		return nil, domain.ErrSummaryNotFound
	}
	s.writes++
	return decodeSummary(found.data)
}

// SummaryHistory returns up to limit summaries for key, newest first.
func (s *Store) SummaryHistory(ctx context.Context, key string, limit int) ([]domain.DailySummary, error) {
	s.mu.Lock()
	var dates []domain.Date
	for k := range s.summaries {
		if k.key == key {
			dates = append(dates, k.date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] > dates[j] })
	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	rows := make([][]byte, len(dates))
	for i, d := range dates {
		rows[i] = s.summaries[datedKey{key, d}].data
	}
	s.mu.Unlock()

	out := make([]domain.DailySummary, 0, len(rows))
	for _, data := range rows {
		sum, err := decodeSummary(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, nil
}

// PruneDated deletes baselines dated before the given date.
func (s *Store) PruneDated(ctx context.Context, key string, before domain.Date) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.dated {
		if k.key == key && k.date.Before(before) {
			delete(s.dated, k)
			n++
		}
	}
	return n, nil
}

// Reset deletes everything stored for key.
func (s *Store) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	for k := range s.dated {
		if k.key == key {
			delete(s.dated, k)
		}
	}
	for k := range s.summaries {
		if k.key == key {
			delete(s.summaries, k)
		}
	}
	return nil
}

// Ping always succeeds unless writes are set to fail.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCount != 0 {
		return s.failErr
	}
	return nil
}

func (s *Store) Close() error { return nil }

func decodeSnapshot(data []byte) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)
	}
	return &snap, nil
}

func decodeSummary(data []byte) (*domain.DailySummary, error) {
	var sum domain.DailySummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &sum, nil
}

var _ domain.Store = (*Store)(nil)
