package reservation

import (
	"sync"
	"time"
)

// timerRegistry keys expiry timers by session id and guarantees at most
// one outstanding timer per session: arming always cancels first.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*time.Timer)}
}

func (tr *timerRegistry) Arm(id string, d time.Duration, fire func(id string)) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if t, ok := tr.timers[id]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		tr.mu.Lock()
		// A re-arm may have replaced this timer while it was firing.
		if tr.timers[id] == t {
			delete(tr.timers, id)
		}
		tr.mu.Unlock()

		fire(id)
	})
	tr.timers[id] = t
}

func (tr *timerRegistry) Cancel(id string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.timers[id]
	if !ok {
		return false
	}
	delete(tr.timers, id)
	return t.Stop()
}
