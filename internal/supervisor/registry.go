package supervisor

import (
	"sort"
	"time"

	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
)

// registry maps session ids to live sessions and scopes output to the active
// namespace. It is only touched from the supervisor loop.
type registry struct {
	sessions map[string]*session.Session
	active   string
	bus      *events.Bus
}

func newRegistry(bus *events.Bus) *registry {
	return &registry{
		sessions: make(map[string]*session.Session),
		bus:      bus,
	}
}

func (r *registry) add(s *session.Session) {
	r.sessions[s.ID] = s
}

func (r *registry) get(id string) *session.Session {
	return r.sessions[id]
}

// lookup returns the session only if it is still the instance identified by
// token.
func (r *registry) lookup(id string, token int64) *session.Session {
	s := r.sessions[id]
	if s == nil || s.Token != token {
		return nil
	}
	return s
}

func (r *registry) delete(id string) {
	delete(r.sessions, id)
}

func (r *registry) len() int {
	return len(r.sessions)
}

// ids returns every session id in sorted order.
func (r *registry) ids() []string {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *registry) forNamespace(ns string) []string {
	var ids []string
	for id, s := range r.sessions {
		if s.Namespace == ns {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *registry) setActiveNamespace(ns string) {
	r.active = ns
}

// visible reports whether output from s passes the namespace filter. A
// session without a namespace is hidden while any filter is active.
func (r *registry) visible(s *session.Session) bool {
	return r.active == "" || s.Namespace == r.active
}

// emitFiltered forwards a delivered payload to consumers if s is visible and
// reports whether it did.
func (r *registry) emitFiltered(s *session.Session, payload []byte, now time.Time) bool {
	if !r.visible(s) {
		return false
	}
	r.bus.Publish(events.Notification{
		Kind:      events.KindData,
		SessionID: s.ID,
		Timestamp: now,
		Data:      payload,
	})
	return true
}
