package protocol

import "sync"

// notifier is a Notify-style primitive: Notify wakes every goroutine
// currently waiting on Chan(), mirroring tokio::sync::Notify::notify_waiters
// rather than carrying any value. Used for the writer-wake signal driven
// by SetInputReportMode.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

// Notify wakes all current waiters.
func (n *notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// Chan returns the current wake channel; it is closed on the next Notify
// call. Callers must re-fetch it after each wakeup.
func (n *notifier) Chan() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}
