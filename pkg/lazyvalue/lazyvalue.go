// Package lazyvalue implements three deferred-value strategies used by
// the subject cache (spec §5, §9 "Lazy value"): opportunistic (racy
// init, at-most-once publish), pessimistic (mutex-guarded, at-most-once
// computation with exception memoization), and auto-reset (wraps
// another value, resetting it after a duration via a CAS-guarded
// timestamp so concurrent readers produce at-most-one reset per
// interval). Grounded on the teacher's mutex-guarded lazy-init idiom in
// identity.InMemoryKeySet, generalized into a reusable combinator.
package lazyvalue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Supplier computes a value, returning an error on failure. It may be
// called more than once by Opportunistic, exactly once (until Reset) by
// Pessimistic.
type Supplier[T any] func() (T, error)

// Opportunistic allows concurrent callers to race to compute the value;
// the first completed computation wins and is published, and any
// result, including a later race winner, is discarded once a value has
// been published. Suited to cheap, idempotent computations where
// occasional duplicate work is preferable to blocking.
type Opportunistic[T any] struct {
	supplier Supplier[T]
	done     atomic.Bool
	value    atomic.Pointer[T]
	err      atomic.Pointer[error]
}

// NewOpportunistic wraps supplier in an opportunistic lazy value.
func NewOpportunistic[T any](supplier Supplier[T]) *Opportunistic[T] {
	return &Opportunistic[T]{supplier: supplier}
}

// Get returns the published value, computing it if no value has been
// published yet. Concurrent first callers may each invoke supplier; only
// one result is retained.
func (o *Opportunistic[T]) Get() (T, error) {
	if o.done.Load() {
		return o.current()
	}
	v, err := o.supplier()
	if o.done.CompareAndSwap(false, true) {
		o.value.Store(&v)
		if err != nil {
			o.err.Store(&err)
		}
	}
	return o.current()
}

func (o *Opportunistic[T]) current() (T, error) {
	var zero T
	if p := o.err.Load(); p != nil {
		if v := o.value.Load(); v != nil {
			return *v, *p
		}
		return zero, *p
	}
	if v := o.value.Load(); v != nil {
		return *v, nil
	}
	return zero, nil
}

// Pessimistic computes the value at most once, under a mutex; concurrent
// callers block on the first computation rather than racing. The error
// from that single computation is memoized and returned to every caller,
// including ones that arrive after it completed, until Reset is called.
type Pessimistic[T any] struct {
	mu       sync.Mutex
	supplier Supplier[T]
	computed bool
	value    T
	err      error
}

// NewPessimistic wraps supplier in a pessimistic lazy value.
func NewPessimistic[T any](supplier Supplier[T]) *Pessimistic[T] {
	return &Pessimistic[T]{supplier: supplier}
}

// Get returns the memoized value, computing it under the lock if this is
// the first call (or the first call since Reset).
func (p *Pessimistic[T]) Get() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.computed {
		p.value, p.err = p.supplier()
		p.computed = true
	}
	return p.value, p.err
}

// Reset clears the memoized value, so the next Get recomputes.
func (p *Pessimistic[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	p.computed = false
	p.value = zero
	p.err = nil
}

// lazy is the minimal capability AutoReset wraps: Get and Reset.
type lazy[T any] interface {
	Get() (T, error)
	Reset()
}

// AutoReset wraps a lazy value, forcing a Reset once interval has
// elapsed since the last reset. The check-and-reset happens on every
// Get, guarded by a compare-and-swap on the last-reset timestamp (stored
// as UnixNano) so that of any number of readers observing an expired
// interval simultaneously, exactly one performs the Reset call.
type AutoReset[T any] struct {
	inner      lazy[T]
	interval   time.Duration
	lastReset  atomic.Int64
	nowForTest func() time.Time // overridable in tests only
}

// NewAutoReset wraps inner, resetting it every interval.
func NewAutoReset[T any](inner lazy[T], interval time.Duration) *AutoReset[T] {
	a := &AutoReset[T]{inner: inner, interval: interval, nowForTest: time.Now}
	a.lastReset.Store(a.nowForTest().UnixNano())
	return a
}

// Get resets the wrapped value if interval has elapsed since the last
// reset, then delegates to it.
func (a *AutoReset[T]) Get() (T, error) {
	now := a.nowForTest().UnixNano()
	last := a.lastReset.Load()
	if now-last >= a.interval.Nanoseconds() {
		if a.lastReset.CompareAndSwap(last, now) {
			a.inner.Reset()
		}
	}
	return a.inner.Get()
}
