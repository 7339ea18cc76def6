// matchmaking/queue.go
package matchmaking

import (
	"sync"
	"time"
)

// Request is a player asking for an anonymous live opponent.
type Request struct {
	ConnectionID  string
	UserID        string
	DisplayName   string
	Category      string
	QuestionCount int
}

// Entry is a waiting request.
type Entry struct {
	Request
	JoinedAt time.Time
}

// Pair is two entries removed from the queue together. A waited longer than B.
type Pair struct {
	A Entry
	B Entry
}

// LivenessFunc reports whether the connection behind an entry is still open.
type LivenessFunc func(connectionID string) bool

// Queue holds players waiting for a live match. It holds at most one entry per user.
type Queue struct {
	entries []*Entry
	alive   LivenessFunc
	maxAge  time.Duration
	now     func() time.Time
	mutex   sync.Mutex
}

func NewQueue(alive LivenessFunc, maxAge time.Duration) *Queue {
	if alive == nil {
		alive = func(string) bool { return true }
	}
	return &Queue{
		alive:  alive,
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (e *Entry) matches(other *Entry) bool {
	return e.Category == other.Category &&
		e.QuestionCount == other.QuestionCount &&
		e.UserID != other.UserID
}

// usable is false for entries sweep will evict.
func (q *Queue) usable(e *Entry, now time.Time) bool {
	if q.maxAge > 0 && now.Sub(e.JoinedAt) > q.maxAge {
		return false
	}
	return q.alive(e.ConnectionID)
}

// Enqueue replaces any entry the user already has, then pairs the request with
// the oldest compatible live entry. Stale entries met during the scan are
// skipped and left for Sweep.
func (q *Queue) Enqueue(req Request) (Pair, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.removeUser(req.UserID)

	now := q.now()
	incoming := &Entry{Request: req, JoinedAt: now}
	for i, e := range q.entries {
		if !e.matches(incoming) || !q.usable(e, now) {
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return Pair{A: *e, B: *incoming}, true
	}

	q.entries = append(q.entries, incoming)
	return Pair{}, false
}

// Cancel removes the user's entry and reports whether one existed.
func (q *Queue) Cancel(userID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.removeUser(userID)
}

// RemoveConnection drops the entry backed by connectionID, if any.
func (q *Queue) RemoveConnection(connectionID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, e := range q.entries {
		if e.ConnectionID == connectionID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) removeUser(userID string) bool {
	for i, e := range q.entries {
		if e.UserID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Requeue puts entries back after a failed match start with a fresh join time.
// Users that queued again in the meantime keep their newer entry.
func (q *Queue) Requeue(entries ...Entry) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	now := q.now()
	for _, e := range entries {
		if q.contains(e.UserID) {
			continue
		}
		e.JoinedAt = now
		q.entries = append(q.entries, &e)
	}
}

func (q *Queue) contains(userID string) bool {
	for _, e := range q.entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// Sweep evicts dead and expired entries, then pairs whatever compatible
// entries remain. It returns the evicted entries and the new pairs.
func (q *Queue) Sweep() (evicted []Entry, pairs []Pair) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	now := q.now()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if q.usable(e, now) {
			kept = append(kept, e)
		} else {
			evicted = append(evicted, *e)
		}
	}
	q.entries = kept

	remaining := make([]*Entry, 0, len(q.entries))
	taken := make([]bool, len(q.entries))
	for i, e := range q.entries {
		if taken[i] {
			continue
		}
		for j := i + 1; j < len(q.entries); j++ {
			if !taken[j] && e.matches(q.entries[j]) {
				taken[i], taken[j] = true, true
				pairs = append(pairs, Pair{A: *e, B: *q.entries[j]})
				break
			}
		}
		if !taken[i] {
			remaining = append(remaining, e)
		}
	}
	q.entries = remaining
	return evicted, pairs
}

// Waiting reports whether userID has an entry.
func (q *Queue) Waiting(userID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.contains(userID)
}

func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.entries)
}
