// Package scheduler holds failed state writes until they can be retried.
//
// Failed writes are kept in a min-heap ordered by their next retry time with
// exponential backoff. There is one entry per player key: a later failure for
// the same key is merged into the pending entry, so the queue always holds
// the newest state plus any summary or acknowledgement not yet written.
// Entries are never dropped; a write that keeps failing is retried at
// MaxDelay until the store recovers.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/tutu-network/rivals/internal/domain"
)

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	BaseDelay time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay  time.Duration // Cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// RetryEntry tracks a failed write's retry state.
type RetryEntry struct {
	Write     domain.Write
	Attempt   int       // Failures so far
	NextRetry time.Time // Earliest time this can be retried
	FailedAt  time.Time // When the last failure occurred
	Error     string    // Last failure reason
}

// RetryQueue schedules write retries with exponential backoff.
type RetryQueue struct {
	mu     sync.Mutex
	config RetryConfig
	heap   entryHeap
	byKey  map[string]*heapItem
	now    func() time.Time

	// Stats
	totalRetries int64
	totalMerged  int64 // Failures folded into an existing entry
}

// NewRetryQueue creates an empty retry queue.
func NewRetryQueue(cfg RetryConfig) *RetryQueue {
	return &RetryQueue{
		config: cfg,
		byKey:  make(map[string]*heapItem),
		now:    time.Now,
	}
}

// ScheduleRetry records that w failed with err. If a write for the same key
// is already pending, w is merged on top of it and the attempt count carries
// over. It returns the entry as scheduled.
func (rq *RetryQueue) ScheduleRetry(w domain.Write, err error) RetryEntry {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	now := rq.now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if it, ok := rq.byKey[w.Key]; ok {
		it.entry.Write = it.entry.Write.Merge(w)
		it.entry.Attempt++
		it.entry.FailedAt = now
		it.entry.NextRetry = now.Add(rq.config.Backoff(it.entry.Attempt))
		it.entry.Error = msg
		heap.Fix(&rq.heap, it.index)
		rq.totalMerged++
		rq.totalRetries++
		return it.entry
	}

	entry := RetryEntry{
		Write:     w,
		Attempt:   1,
		FailedAt:  now,
		NextRetry: now.Add(rq.config.Backoff(1)),
		Error:     msg,
	}
	it := &heapItem{entry: entry}
	heap.Push(&rq.heap, it)
	rq.byKey[w.Key] = it
	rq.totalRetries++
	return entry
}

// Requeue puts back an entry taken with NextReady or Take whose retry failed
// again. Its attempt count carries over. A write for the same key scheduled
// in the meantime is newer and is merged on top of it.
func (rq *RetryQueue) Requeue(entry RetryEntry, err error) RetryEntry {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	now := rq.now()
	entry.Attempt++
	entry.FailedAt = now
	if err != nil {
		entry.Error = err.Error()
	}

	if it, ok := rq.byKey[entry.Write.Key]; ok {
		entry.Write = entry.Write.Merge(it.entry.Write)
		entry.Attempt = max(entry.Attempt, it.entry.Attempt)
		entry.NextRetry = now.Add(rq.config.Backoff(entry.Attempt))
		it.entry = entry
		heap.Fix(&rq.heap, it.index)
		rq.totalMerged++
		rq.totalRetries++
		return entry
	}

	entry.NextRetry = now.Add(rq.config.Backoff(entry.Attempt))
	it := &heapItem{entry: entry}
	heap.Push(&rq.heap, it)
	rq.byKey[entry.Write.Key] = it
	rq.totalRetries++
	return entry
}

// Take removes and returns the pending entry for key regardless of its retry
// time. Callers about to write newer state for key merge it first.
func (rq *RetryQueue) Take(key string) (RetryEntry, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	it, ok := rq.byKey[key]
	if !ok {
		return RetryEntry{}, false
	}
	heap.Remove(&rq.heap, it.index)
	delete(rq.byKey, key)
	return it.entry, true
}

// NextReady returns the next entry ready to be retried, if any.
// Only returns entries whose NextRetry time has passed.
func (rq *RetryQueue) NextReady() (*RetryEntry, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.heap.Len() == 0 {
		return nil, false
	}
	it := rq.heap[0]
	if rq.now().Before(it.entry.NextRetry) {
		return nil, false // Not yet ready
	}
	heap.Pop(&rq.heap)
	delete(rq.byKey, it.entry.Write.Key)
	entry := it.entry
	return &entry, true
}

// DrainReady drains all ready entries, earliest first.
func (rq *RetryQueue) DrainReady() []RetryEntry {
	var ready []RetryEntry
	for {
		entry, ok := rq.NextReady()
		if !ok {
			break
		}
		ready = append(ready, *entry)
	}
	return ready
}

// NextDue returns the earliest retry time, or false when the queue is empty.
func (rq *RetryQueue) NextDue() (time.Time, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.heap.Len() == 0 {
		return time.Time{}, false
	}
	return rq.heap[0].entry.NextRetry, true
}

// Len returns the number of writes pending retry.
func (rq *RetryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.heap.Len()
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	PendingRetries int       `json:"pending_retries"`
	TotalRetries   int64     `json:"total_retries"`
	TotalMerged    int64     `json:"total_merged"`
	OldestFailure  time.Time `json:"oldest_failure,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
}

// RetryStats returns current retry queue statistics.
func (rq *RetryQueue) RetryStats() RetryStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	st := RetryStats{
		PendingRetries: rq.heap.Len(),
		TotalRetries:   rq.totalRetries,
		TotalMerged:    rq.totalMerged,
	}
	var latest time.Time
	for _, it := range rq.heap {
		if st.OldestFailure.IsZero() || it.entry.FailedAt.Before(st.OldestFailure) {
			st.OldestFailure = it.entry.FailedAt
		}
		if it.entry.FailedAt.After(latest) || latest.IsZero() {
			latest = it.entry.FailedAt
			st.LastError = it.entry.Error
		}
	}
	return st
}

// ─── Heap ───────────────────────────────────────────────────────────────────

type heapItem struct {
	entry RetryEntry
	index int
}

type entryHeap []*heapItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	return h[i].entry.NextRetry.Before(h[j].entry.NextRetry)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	it := x.(*heapItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
