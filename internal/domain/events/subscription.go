package events

import "sync"

// subscription is one subscriber's ordered delivery path. Notifications go
// straight into ch while it has room; once it is full they queue behind it
// and a pump goroutine feeds them in order until the queue is empty.
type subscription struct {
	kinds map[Kind]bool
	ch    chan Notification

	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	mu      sync.Mutex
	queue   []Notification
	backlog int
	pumping bool
	// finished means no more offers; ch closes once the queue is empty.
	finished bool
}

func newSubscription(buffer int, kinds []Kind) *subscription {
	s := &subscription{
		ch:   make(chan Notification, buffer),
		done: make(chan struct{}),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
	return s
}

func (s *subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

func cost(n Notification) int {
	return len(n.Data) + backlogOverhead
}

// offer hands n to the subscriber and returns the bytes now queued behind
// its channel.
func (s *subscription) offer(n Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pumping {
		select {
		case s.ch <- n:
			return 0
		default:
		}
		s.pumping = true
		go s.pump()
	}
	s.queue = append(s.queue, n)
	s.backlog += cost(n)
	return s.backlog
}

func (s *subscription) pump() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.pumping = false
			finished := s.finished
			s.mu.Unlock()
			if finished {
				s.closeChan()
			}
			return
		}
		n := s.queue[0]
		s.mu.Unlock()

		select {
		case s.ch <- n:
		case <-s.done:
			s.closeChan()
			return
		}

		s.mu.Lock()
		s.queue[0] = Notification{}
		s.queue = s.queue[1:]
		s.backlog -= cost(n)
		s.mu.Unlock()
	}
}

// drain closes ch after everything queued has been delivered.
func (s *subscription) drain() {
	s.mu.Lock()
	s.finished = true
	pumping := s.pumping
	s.mu.Unlock()
	if !pumping {
		s.closeChan()
	}
}

// stop abandons the queue and closes ch. It is safe to call more than once.
func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.drain()
}

func (s *subscription) closeChan() {
	s.closeOnce.Do(func() { close(s.ch) })
}
