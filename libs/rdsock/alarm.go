package rdsock

import (
	"sync"
	"time"
)

// alarm is a restartable one-shot timer bound to a fixed callback. Start
// replaces any armed deadline. The callback runs on the timer goroutine and
// is responsible for taking the socket lock and checking liveness.
type alarm struct {
	mu sync.Mutex
	t  *time.Timer
	fn func()
}

func newAlarm(fn func()) *alarm {
	return &alarm{fn: fn}
}

func (a *alarm) Start(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
	}
	a.t = time.AfterFunc(d, a.fn)
}

func (a *alarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
}
