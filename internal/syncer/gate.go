package syncer

import "sync/atomic"

// Gate is the process-wide single-flight guard for drains. A second
// caller is refused, not queued: its work is dropped and it must
// re-invoke later. This is not a distributed lock; the design assumes
// one agent instance per device.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire claims the gate. It returns false if a drain already holds it.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the gate. Safe to call from a deferred path regardless of
// how the drain ended.
func (g *Gate) Release() {
	g.busy.Store(false)
}
