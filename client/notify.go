package client

import "sync"

// notifier is the default notification context: a dedicated goroutine
// running callbacks in submission order. The queue is unbounded so that the
// connection's state loop never blocks on a slow callback, which would
// otherwise deadlock a callback that calls back into the connection.
type notifier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
}

func newNotifier() *notifier {
	n := &notifier{}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) enqueue(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	n.queue = append(n.queue, fn)
	n.cond.Signal()
}

func (n *notifier) run() {
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.stopped {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		fn := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()
		fn()
	}
}

func (n *notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	n.cond.Signal()
}
