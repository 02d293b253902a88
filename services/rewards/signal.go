package rewards

import "sync"

// Signal fans a "user came back to the app" event out to every current
// subscriber. Fires are coalesced per subscriber and never block.
type Signal struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

func NewSignal() *Signal {
	return &Signal{subs: make(map[int]chan struct{})}
}

// Subscribe returns a channel that receives on the next Fire and a func
// that removes the subscription. The func is safe to call more than once.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Signal) Fire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
