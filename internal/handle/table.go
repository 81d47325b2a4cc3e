// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package handle implements the handle table shared by driver backends:
// id allocation, budget enforcement, use-after-destroy detection and the
// resource counters behind platform.Stats.
package handle

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/gogpu/platform"
)

// Limits bounds a Table. Zero fields mean no limit.
type Limits struct {
	Arena   int
	PerKind [platform.NumResourceKinds]int
	Bytes   uint64
}

// LimitsFrom derives table limits from a driver config.
func LimitsFrom(cfg platform.DriverConfig) Limits {
	cfg = cfg.WithDefaults()
	var l Limits
	l.Arena = int(cfg.HandleArenaSize)
	l.PerKind[platform.KindBuffer] = cfg.MaxBuffers
	l.PerKind[platform.KindTexture] = cfg.MaxTextures
	l.PerKind[platform.KindSampler] = cfg.MaxSamplers
	l.PerKind[platform.KindProgram] = cfg.MaxPrograms
	l.Bytes = cfg.MemoryBudgetBytes()
	return l
}

// Entry is a live resource.
type Entry struct {
	Handle platform.Handle
	Kind   platform.ResourceKind
	Size   uint64
	Value  any
}

// Table allocates handles and tracks their resources.
// Handles are issued in increasing order starting at 1 and never reused,
// so an issued handle that is not live has been destroyed.
//
// Table is safe for concurrent use.
type Table struct {
	mu        sync.Mutex
	limits    Limits
	next      platform.Handle // last issued handle
	live      map[platform.Handle]*Entry
	kinds     [platform.NumResourceKinds]platform.KindStats
	liveBytes uint64
}

// NewTable creates an empty table.
func NewTable(l Limits) *Table {
	return &Table{
		limits: l,
		live:   make(map[platform.Handle]*Entry),
	}
}

// Check reports whether a resource of the given kind and size fits the
// budgets. Backends call it before allocating backend memory.
func (t *Table) Check(kind platform.ResourceKind, size uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkLocked(kind, size)
}

func (t *Table) checkLocked(kind platform.ResourceKind, size uint64) error {
	if t.limits.Arena > 0 && len(t.live) >= t.limits.Arena {
		return fmt.Errorf("%w: handle arena full (%d)", platform.ErrBudgetExceeded, t.limits.Arena)
	}
	if n := t.limits.PerKind[kind]; n > 0 && t.kinds[kind].Live >= n {
		return fmt.Errorf("%w: %d live %ss", platform.ErrBudgetExceeded, n, kind)
	}
	if t.limits.Bytes > 0 && size > t.limits.Bytes-t.liveBytes {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			platform.ErrBudgetExceeded, size, t.liveBytes, t.limits.Bytes)
	}
	return nil
}

// Alloc issues a handle for value.
func (t *Table) Alloc(kind platform.ResourceKind, size uint64, value any) (platform.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(kind, size); err != nil {
		return platform.NullHandle, err
	}
	if t.next == math.MaxUint32 {
		return platform.NullHandle, fmt.Errorf("%w: handle space exhausted", platform.ErrBudgetExceeded)
	}
	t.next++
	h := t.next
	t.live[h] = &Entry{Handle: h, Kind: kind, Size: size, Value: value}
	t.kinds[kind].Created++
	t.kinds[kind].Live++
	t.liveBytes += size
	return h, nil
}

// Get returns the live entry of h, checking its kind.
func (t *Table) Get(h platform.Handle, kind platform.ResourceKind) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(h, kind)
}

func (t *Table) getLocked(h platform.Handle, kind platform.ResourceKind) (*Entry, error) {
	if h.IsNull() {
		return nil, platform.ErrInvalidHandle
	}
	if e, ok := t.live[h]; ok {
		if e.Kind != kind {
			return nil, fmt.Errorf("%w: %s is a %s", platform.ErrWrongHandleKind, kind, e.Kind)
		}
		return e, nil
	}
	if h <= t.next {
		return nil, platform.ErrHandleDestroyed
	}
	return nil, platform.ErrInvalidHandle
}

// Release removes h and returns its entry so the caller can free the
// backend object. Releasing twice reports ErrHandleDestroyed.
func (t *Table) Release(h platform.Handle, kind platform.ResourceKind) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.getLocked(h, kind)
	if err != nil {
		return nil, err
	}
	t.releaseLocked(e)
	return e, nil
}

func (t *Table) releaseLocked(e *Entry) {
	delete(t.live, e.Handle)
	t.kinds[e.Kind].Destroyed++
	t.kinds[e.Kind].Live--
	t.liveBytes -= e.Size
}

// Drain releases every live entry and returns them newest first, the order
// in which backends free them at teardown.
func (t *Table) Drain() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, 0, len(t.live))
	for _, e := range t.live {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int { return cmp.Compare(b.Handle, a.Handle) })
	for _, e := range out {
		t.releaseLocked(e)
	}
	return out
}

// Fill copies the counters into s.
func (t *Table) Fill(s *platform.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copy(s.Kinds[:], t.kinds[:])
	s.LiveBytes = t.liveBytes
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
