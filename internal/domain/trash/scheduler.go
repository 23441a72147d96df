// Package trash implements soft deletion: a trashed session keeps running
// until its TTL elapses, when it is hard-killed, unless it is restored first.
package trash

import (
	"sort"
	"time"

	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

// DefaultTTL is how long a trashed session survives.
const DefaultTTL = 120 * time.Second

// Entry is a pending expiry.
type Entry struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Scheduler tracks trashed ids and fires expire when their TTL elapses. It is
// not safe for concurrent use; the supervisor loop serialises calls and the
// clock must deliver callbacks onto that loop.
type Scheduler struct {
	clock   clock.Clock
	ttl     time.Duration
	expire  func(id string)
	pending map[string]*pending
}

type pending struct {
	entry Entry
	timer clock.Timer
}

// NewScheduler creates a scheduler that calls expire for each expired id.
func NewScheduler(clk clock.Clock, ttl time.Duration, expire func(id string)) *Scheduler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Scheduler{
		clock:   clk,
		ttl:     ttl,
		expire:  expire,
		pending: make(map[string]*pending),
	}
}

// Trash schedules id for expiry. It returns false if id was already
// scheduled, in which case the existing deadline is kept.
func (s *Scheduler) Trash(id string) bool {
	if _, ok := s.pending[id]; ok {
		return false
	}

	p := &pending{entry: Entry{ID: id, ExpiresAt: s.clock.Now().Add(s.ttl)}}
	p.timer = s.clock.AfterFunc(s.ttl, func() {
		if s.pending[id] != p {
			return
		}
		delete(s.pending, id)
		s.expire(id)
	})
	s.pending[id] = p
	return true
}

// Restore cancels a pending expiry and reports whether one existed.
func (s *Scheduler) Restore(id string) bool {
	return s.Cancel(id)
}

// Cancel drops a pending expiry, typically because the process exited on
// its own. It reports whether one existed.
func (s *Scheduler) Cancel(id string) bool {
	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, id)
	return true
}

// IsTrashed reports whether id is pending expiry.
func (s *Scheduler) IsTrashed(id string) bool {
	_, ok := s.pending[id]
	return ok
}

// Lookup returns the pending entry for id.
func (s *Scheduler) Lookup(id string) (Entry, bool) {
	p, ok := s.pending[id]
	if !ok {
		return Entry{}, false
	}
	return p.entry, true
}

// Entries lists pending expiries ordered by deadline.
func (s *Scheduler) Entries() []Entry {
	entries := make([]Entry, 0, len(s.pending))
	for _, p := range s.pending {
		entries = append(entries, p.entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ExpiresAt.Equal(entries[j].ExpiresAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].ExpiresAt.Before(entries[j].ExpiresAt)
	})
	return entries
}

// Close cancels every pending expiry without firing it.
func (s *Scheduler) Close() {
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
}
