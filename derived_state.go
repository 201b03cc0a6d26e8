package vaultstate

import (
	"sync"
	"time"
)

// DerivedState lazily computes a cached transformation of a parent
// observable. The computation chain attaches on the first subscription and is
// shared by every consumer; after the last unsubscribes it survives for the
// definition's cleanup delay so rapid resubscription replays the cached value
// without recomputing.
type DerivedState[TFrom, TTo any] struct {
	def    DeriveDefinition[TFrom, TTo]
	parent Observable[TFrom]
	deps   DeriveDependencies

	subject *Subject[TTo]

	mu       sync.Mutex
	attached bool
	parentS  *Subscription[TFrom]
	gen      int
	inputSeq int
	cleanup  *time.Timer
}

func newDerivedState[TFrom, TTo any](parent Observable[TFrom], def DeriveDefinition[TFrom, TTo], deps DeriveDependencies) *DerivedState[TFrom, TTo] {
	d := &DerivedState[TFrom, TTo]{
		def:    def,
		parent: parent,
		deps:   deps,
	}
	d.subject = NewSubject(
		OnActivate[TTo](d.activate),
		OnIdle[TTo](d.scheduleCleanup),
	)
	return d
}

// State returns the derived observable.
func (d *DerivedState[TFrom, TTo]) State() Observable[TTo] { return d.subject }

func (d *DerivedState[TFrom, TTo]) activate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cleanup != nil {
		d.cleanup.Stop()
		d.cleanup = nil
	}
	if d.attached {
		return
	}
	d.attached = true
	d.gen++
	gen := d.gen
	d.parentS = d.parent.Subscribe()
	go d.run(gen, d.parentS)
}

func (d *DerivedState[TFrom, TTo]) run(gen int, parent *Subscription[TFrom]) {
	for from := range parent.Values() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.inputSeq++
		seq := d.inputSeq
		d.mu.Unlock()

		// Each input derives on its own goroutine so a slow derivation never
		// delays a newer input. Stale results are dropped on resolve: the
		// latest input always wins.
		go d.compute(gen, seq, from)
	}
}

func (d *DerivedState[TFrom, TTo]) compute(gen, seq int, from TFrom) {
	value, err := d.def.Derive(from, d.deps)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || seq != d.inputSeq {
		return
	}
	// An in-flight derivation finishing during the cleanup grace period still
	// caches its result; only a fired cleanup discards the chain.
	d.subject.Next(value)
}

func (d *DerivedState[TFrom, TTo]) scheduleCleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.attached {
		return
	}
	delay := d.def.cleanupDelay()
	if delay == 0 {
		d.teardownLocked()
		return
	}
	if d.cleanup != nil {
		d.cleanup.Stop()
	}
	d.cleanup = time.AfterFunc(delay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.cleanup == nil || !d.attached {
			return
		}
		if d.subject.Len() > 0 {
			return
		}
		d.cleanup = nil
		d.teardownLocked()
	})
}

func (d *DerivedState[TFrom, TTo]) teardownLocked() {
	d.attached = false
	d.gen++
	if d.parentS != nil {
		d.parentS.Unsubscribe()
		d.parentS = nil
	}
	d.subject.Forget()
}
