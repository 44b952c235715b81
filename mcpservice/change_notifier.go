package mcpservice

import "sync"

// ChangeNotifier is a small in-process fan-out used to signal that the tool
// set changed. The zero value is ready to use.
type ChangeNotifier struct {
	mu     sync.Mutex
	subs   []chan struct{}
	closed bool
}

// ChangeSubscriber hands out change signal channels.
type ChangeSubscriber interface {
	Subscriber() <-chan struct{}
}

// Notify signals every subscriber. Sends never block: a subscriber that has
// not drained its previous signal simply keeps the pending one.
func (cn *ChangeNotifier) Notify() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	for _, ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscriber returns a channel with capacity 1 that receives a value after
// each Notify. After Close the channel is closed.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	ch := make(chan struct{}, 1)
	if cn.closed {
		close(ch)
		return ch
	}
	cn.subs = append(cn.subs, ch)
	return ch
}

// Close closes every subscriber channel. Later calls are no-ops.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	cn.closed = true
	for _, ch := range cn.subs {
		close(ch)
	}
	cn.subs = nil
}
