package transport

import (
	"context"
	"sync"
)

// boundedSemaphore is a counting semaphore whose available permits never
// exceed a fixed maximum, no matter how many are added back. Credits are
// consumed by acquire and replenished only by addPermits (driven by the
// HCI credit monitor) — there is no forget/return-on-drop semantics here
// since transport.Write always "forgets" the permit it acquires.
type boundedSemaphore struct {
	mu      sync.Mutex
	cond    *sync.Cond
	count   int
	maxPerm int
}

func newBoundedSemaphore(maxPermits, initialPermits int) *boundedSemaphore {
	s := &boundedSemaphore{count: initialPermits, maxPerm: maxPermits}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until a permit is available, then consumes it. It
// returns early with ctx.Err() if ctx is canceled first.
func (s *boundedSemaphore) acquire(ctx context.Context) error {
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.cond.Broadcast()
			case <-done:
			}
		}()
	}
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.count == 0 {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		s.cond.Wait()
	}
	s.count--
	return nil
}

// addPermits adds up to n permits, capped so the total never exceeds
// maxPerm.
func (s *boundedSemaphore) addPermits(n int) {
	s.mu.Lock()
	newCount := s.count + n
	if newCount > s.maxPerm {
		newCount = s.maxPerm
	}
	s.count = newCount
	s.mu.Unlock()
	s.cond.Broadcast()
}
