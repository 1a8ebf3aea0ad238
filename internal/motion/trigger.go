package motion

import "sync"

// ManualTrigger is a significant-motion sensor fired by hand (dashboard key,
// HTTP API). Like the hardware it models, each request is one-shot.
type ManualTrigger struct {
	mu      sync.Mutex
	pending func()
}

// NewManualTrigger creates an idle trigger.
func NewManualTrigger() *ManualTrigger {
	return &ManualTrigger{}
}

func (t *ManualTrigger) Name() string { return "manual-trigger" }

// RequestTrigger arms the trigger; fn runs on the next Fire.
func (t *ManualTrigger) RequestTrigger(fn func()) error {
	t.mu.Lock()
	t.pending = fn
	t.mu.Unlock()
	return nil
}

// CancelTrigger disarms the trigger.
func (t *ManualTrigger) CancelTrigger() {
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
}

// Armed reports whether a trigger request is outstanding.
func (t *ManualTrigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Fire delivers the trigger if one was requested. The request is consumed.
func (t *ManualTrigger) Fire() bool {
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}
