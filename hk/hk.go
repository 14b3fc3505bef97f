// Package hk provides the interval-driven housekeeper that backs path
// expiry (spec.md §4.2 "Expiry") and the builtin timer/timeout commands
// (spec.md §6). Every extension's repeating path-expiry scans and every
// live user timer are entries on one process-wide housekeeper goroutine
// rather than one goroutine per timer, the same consolidation the teacher
// uses for its own interval callbacks.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Fire is invoked when an entry's interval elapses. It returns whether the
// entry should be rescheduled for another interval from now; returning
// false removes it (one-shot entries, or a timer that just hit its fire
// count).
type Fire func(now time.Time) (reschedule bool)

type entry struct {
	id       ulid.ULID
	name     string
	interval time.Duration
	nextAt   time.Time
	fire     Fire
}

// HK is a single-goroutine scan-and-fire housekeeper.
type HK struct {
	mu      sync.Mutex
	entries map[ulid.ULID]*entry
	entropy *ulid.MonotonicEntropy

	wake    chan struct{}
	stop    chan struct{}
	started chan struct{}
	once    sync.Once
}

// DefaultHK is a process-wide housekeeper instance (analogous to the
// teacher's hk.DefaultHK). Nothing starts it automatically: App and the
// tester take an explicit *HK, and its owner calls Run itself.
var DefaultHK = NewHK()

func NewHK() *HK {
	return &HK{
		entries: make(map[ulid.ULID]*entry),
		entropy: ulid.Monotonic(rand.Reader, 0),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

// TestInit resets DefaultHK to a fresh instance, for use at the top of a
// test binary before calling Run in a goroutine, mirroring the teacher's
// hk.TestInit()/hk.WaitStarted() pair.
func TestInit() {
	DefaultHK = NewHK()
}

func (h *HK) nextID() ulid.ULID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), h.entropy)
}

// Register schedules fire to run every interval starting interval from
// now, returning an id that can be passed to Unregister.
func (h *HK) Register(name string, interval time.Duration, fire Fire) ulid.ULID {
	id := h.nextID()
	e := &entry{id: id, name: name, interval: interval, nextAt: time.Now().Add(interval), fire: fire}
	h.mu.Lock()
	h.entries[id] = e
	h.mu.Unlock()
	h.poke()
	return id
}

func (h *HK) Unregister(id ulid.ULID) {
	h.mu.Lock()
	delete(h.entries, id)
	h.mu.Unlock()
	h.poke()
}

func (h *HK) poke() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// WaitStarted blocks until Run's loop has begun.
func (h *HK) WaitStarted() { <-h.started }

// Stop terminates the Run loop.
func (h *HK) Stop() { close(h.stop) }

// Run scans entries and fires due ones until Stop is called. It is meant
// to run on its own goroutine, started once per process.
func (h *HK) Run() {
	h.once.Do(func() { close(h.started) })

	for {
		sleep := h.sleepDuration()
		timer := time.NewTimer(sleep)
		select {
		case <-h.stop:
			timer.Stop()
			return
		case <-h.wake:
			timer.Stop()
		case <-timer.C:
		}
		h.tick()
	}
}

func (h *HK) sleepDuration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return time.Hour
	}
	earliest := time.Time{}
	for _, e := range h.entries {
		if earliest.IsZero() || e.nextAt.Before(earliest) {
			earliest = e.nextAt
		}
	}
	d := time.Until(earliest)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (h *HK) tick() {
	now := time.Now()

	h.mu.Lock()
	var due []*entry
	for _, e := range h.entries {
		if !e.nextAt.After(now) {
			due = append(due, e)
		}
	}
	h.mu.Unlock()

	for _, e := range due {
		if e.fire(now) {
			h.mu.Lock()
			if _, live := h.entries[e.id]; live {
				e.nextAt = now.Add(e.interval)
			}
			h.mu.Unlock()
		} else {
			h.mu.Lock()
			delete(h.entries, e.id)
			h.mu.Unlock()
		}
	}
}
