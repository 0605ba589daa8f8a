package mqtt

import (
	"sync"
	"time"
)

// ResetHoldTime is how long the reset button must stay pressed.
const ResetHoldTime = 5 * time.Second

// holdDetector turns press/release pairs into a single long-hold event.
type holdDetector struct {
	hold time.Duration
	fire func()

	mu    sync.Mutex
	timer *time.Timer
	// generation invalidates timers that fired after a release.
	generation uint64
}

func newHoldDetector(hold time.Duration, fire func()) *holdDetector {
	return &holdDetector{hold: hold, fire: fire}
}

// press arms the hold timer unless it is already running.
func (h *holdDetector) press() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timer != nil {
		return
	}

	h.generation++
	generation := h.generation

	h.timer = time.AfterFunc(h.hold, func() {
		h.mu.Lock()
		if h.generation != generation {
			h.mu.Unlock()

			return
		}

		h.timer = nil
		h.mu.Unlock()

		h.fire()
	})
}

// release cancels a pending hold.
func (h *holdDetector) release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.generation++

	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
