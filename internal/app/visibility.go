package app

import (
	"sync"
	"time"
)

// SecretKind identifies a value that is masked by default.
type SecretKind string

const (
	SecretBalance SecretKind = "balance"
	SecretCVV     SecretKind = "cvv"
)

// Masks shown while a value is hidden.
const (
	BalanceMask = "••••••"
	CVVMask     = "•••"
)

// Timer is the subset of *time.Timer used for auto-hide.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Visibility tracks a revealed secret and hides it again after a TTL.
// Each Reveal restarts the timer; a stale timer firing after a newer
// Reveal or Hide has no effect.
type Visibility struct {
	ttl       time.Duration
	afterFunc AfterFunc

	mu         sync.Mutex
	value      string
	visible    bool
	generation uint64
	timer      Timer
	hideAt     time.Time
	now        func() time.Time
}

// NewVisibility creates a hidden Visibility with the given auto-hide TTL.
func NewVisibility(ttl time.Duration, afterFunc AfterFunc, now func() time.Time) *Visibility {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	if now == nil {
		now = time.Now
	}
	return &Visibility{ttl: ttl, afterFunc: afterFunc, now: now}
}

// Reveal shows value until the TTL elapses or Hide is called.
func (v *Visibility) Reveal(value string) time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.timer != nil {
		v.timer.Stop()
	}
	v.generation++
	gen := v.generation
	v.value = value
	v.visible = true
	v.hideAt = v.now().Add(v.ttl)
	v.timer = v.afterFunc(v.ttl, func() { v.expire(gen) })
	return v.hideAt
}

// Hide masks the value immediately.
func (v *Visibility) Hide() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hideLocked()
}

// Toggle hides a visible value or reveals a hidden one, returning whether it is now visible.
func (v *Visibility) Toggle(value string) bool {
	v.mu.Lock()
	visible := v.visible
	v.mu.Unlock()
	if visible {
		v.Hide()
		return false
	}
	v.Reveal(value)
	return true
}

// Display returns the value when visible, otherwise mask.
func (v *Visibility) Display(mask string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.visible {
		return mask, false
	}
	return v.value, true
}

// HideAt reports when a visible value will be masked again.
func (v *Visibility) HideAt() (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hideAt, v.visible
}

func (v *Visibility) expire(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return
	}
	v.hideLocked()
}

func (v *Visibility) hideLocked() {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.generation++
	v.value = ""
	v.visible = false
	v.hideAt = time.Time{}
}
