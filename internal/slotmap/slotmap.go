// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package slotmap implements the arena+index+epoch primitive that backs the
// persistent iterator fabric of the buffer core: a dense storage of entries
// addressed by a slot ID that survives removal, paired with handles that
// keep a removed entry's payload readable until every handle referencing it
// is released or reassigned.
//
// This replaces the manual, per-entry doubly-linked iterator lists a naive
// port would use with generation-stamped slots, each carrying the list of
// handle pointers currently bound to it; the registry walks that list when an
// operation must update every handle on an entry (splitting a block, shifting
// or clamping byte positions after an in-place edit, releasing a slot). Handles are always used by pointer, the same way the standard
// library's container/list.Element is: a Handle's address is its identity,
// so the registry can retarget it in place.
package slotmap

// ID addresses a single slot in a Registry. The zero ID is never returned by
// Alloc, so it is safe to use as a "no slot" sentinel.
type ID int

type cell[T any] struct {
	val     T
	epoch   uint32
	live    bool // reachable from the owning container
	handles []*Handle[T]
}

// A Registry is a dense arena of T values, each addressed by a stable ID.
// The zero Registry is not ready for use; call NewRegistry.
type Registry[T any] struct {
	cells []cell[T] // cells[0] is unused so ID 0 stays invalid
	free  []ID
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{cells: make([]cell[T], 1)}
}

// Alloc stores val in a fresh slot and returns its ID. The slot is live
// (reachable from its container) and has no handles until NewHandle is
// called.
func (r *Registry[T]) Alloc(val T) ID {
	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		c := &r.cells[id]
		c.val = val
		c.live = true
		return id
	}
	r.cells = append(r.cells, cell[T]{val: val, live: true})
	return ID(len(r.cells) - 1)
}

// Get returns the current payload of id, which must be live.
func (r *Registry[T]) Get(id ID) T { return r.cells[id].val }

// Set overwrites the payload of id in place, leaving its identity (ID,
// epoch, and any handles bound to it) unchanged.
func (r *Registry[T]) Set(id ID, val T) { r.cells[id].val = val }

// Remove detaches id from its container (marks it not live). If no handle
// currently references id, its storage is recycled immediately; otherwise
// the payload remains readable through existing handles until the last one
// is released or reassigned. Remove returns the detached payload.
func (r *Registry[T]) Remove(id ID) T {
	c := &r.cells[id]
	c.live = false
	val := c.val
	if len(c.handles) == 0 {
		r.recycle(id)
	}
	return val
}

func (r *Registry[T]) recycle(id ID) {
	c := &r.cells[id]
	var zero T
	c.val = zero
	c.handles = nil
	c.epoch++
	r.free = append(r.free, id)
}

// Relocate redistributes the handles bound to oldID between oldID (which
// keeps its identity and presumably a new payload already Set by the
// caller) and newID, a slot the caller has already Alloc'd. decide is called
// once per handle currently bound to oldID with that handle's Aux value; it
// returns the handle's updated Aux and whether the handle should move to
// newID. This is the mechanism a block split uses to relocate every
// outstanding iterator on the block being split to the correct half.
func (r *Registry[T]) Relocate(oldID, newID ID, decide func(aux int) (newAux int, moveToNew bool)) {
	oldCell := &r.cells[oldID]
	newCell := &r.cells[newID]
	kept := oldCell.handles[:0]
	for _, h := range oldCell.handles {
		newAux, moveToNew := decide(h.Aux)
		h.Aux = newAux
		if moveToNew {
			h.id = newID
			h.epoch = newCell.epoch
			newCell.handles = append(newCell.handles, h)
		} else {
			kept = append(kept, h)
		}
	}
	oldCell.handles = kept
}

// ShiftAux adds delta to the Aux field of every handle currently bound to id
// whose Aux is >= from. This is how an in-place content edit (for example,
// inserting bytes into a block) keeps outstanding handles on the same slot
// pointing at the same logical byte.
func (r *Registry[T]) ShiftAux(id ID, from, delta int) {
	for _, h := range r.cells[id].handles {
		if h.Aux >= from {
			h.Aux += delta
		}
	}
}

// ClampAux pins the Aux field of every handle bound to id whose Aux falls in
// [lo, hi) to lo, and subtracts shrink from every Aux >= hi. This is how an
// in-place deletion from a block (one that does not remove the whole block)
// relocates outstanding handles that pointed inside or after the deleted
// range.
func (r *Registry[T]) ClampAux(id ID, lo, hi, shrink int) {
	for _, h := range r.cells[id].handles {
		switch {
		case h.Aux >= hi:
			h.Aux -= shrink
		case h.Aux >= lo:
			h.Aux = lo
		}
	}
}

// A Handle is a persistent reference to a Registry slot, plus one integer of
// caller-defined payload (Aux) that the registry relocates alongside the
// slot during a Relocate. Handles must always be used by pointer: a Handle
// copied by value loses the registry's ability to retarget it.
type Handle[T any] struct {
	reg   *Registry[T]
	id    ID
	epoch uint32

	// Aux is caller-defined (the buffer core uses it for a byte position
	// within the addressed block). The registry does not interpret it
	// except when asked to via Relocate, ShiftAux, or ClampAux.
	Aux int
}

// NewHandle returns a fresh Handle referencing id, which must currently be
// live. Multiple handles may co-exist on one slot.
func (r *Registry[T]) NewHandle(id ID) *Handle[T] {
	c := &r.cells[id]
	h := &Handle[T]{reg: r, id: id, epoch: c.epoch}
	c.handles = append(c.handles, h)
	return h
}

// ID reports the slot h addresses.
func (h *Handle[T]) ID() ID { return h.id }

// Valid reports whether h addresses a slot that is still reachable from its
// container. An invalid handle may still be readable; see Value.
func (h *Handle[T]) Valid() bool {
	if h.reg == nil {
		return false
	}
	c := &h.reg.cells[h.id]
	return c.epoch == h.epoch && c.live
}

// Value returns the payload h addresses and true, whether or not h is still
// valid, as long as the slot has not actually been recycled out from under
// it. It returns the zero value and false once the slot has been
// recycled.
func (h *Handle[T]) Value() (T, bool) {
	if h.reg == nil {
		var zero T
		return zero, false
	}
	c := &h.reg.cells[h.id]
	if c.epoch != h.epoch {
		var zero T
		return zero, false
	}
	return c.val, true
}

// Reassign moves h to address id, which must currently be live, releasing
// its previous reference first.
func (h *Handle[T]) Reassign(id ID) {
	reg := h.reg
	h.Release()
	h.reg = reg
	c := &reg.cells[id]
	h.id = id
	h.epoch = c.epoch
	c.handles = append(c.handles, h)
}

// Release drops h's reference to its slot. If h held the last reference to a
// slot that was already removed from its container, the slot's storage is
// reclaimed. Release is a no-op on an already-released or zero Handle.
func (h *Handle[T]) Release() {
	if h.reg == nil {
		return
	}
	reg := h.reg
	id := h.id
	h.detachFromCurrent()
	c := &reg.cells[id]
	if len(c.handles) == 0 && !c.live {
		reg.recycle(id)
	}
}

// detachFromCurrent removes h from its current cell's handle list, if any,
// and clears h.reg. It does not recycle the slot; callers that want that
// must check afterward.
func (h *Handle[T]) detachFromCurrent() {
	if h.reg == nil {
		return
	}
	c := &h.reg.cells[h.id]
	if c.epoch == h.epoch {
		for i, p := range c.handles {
			if p == h {
				c.handles = append(c.handles[:i], c.handles[i+1:]...)
				break
			}
		}
	}
	h.reg = nil
}

// Detach attempts to take sole ownership of the slot h addresses, removing
// it from its container in the same step. It succeeds, returning the
// payload, iff h is currently the only handle referencing the slot;
// otherwise it fails and the slot remains shared and live.
func (h *Handle[T]) Detach() (T, bool) {
	if h.reg == nil {
		var zero T
		return zero, false
	}
	c := &h.reg.cells[h.id]
	if c.epoch != h.epoch || len(c.handles) != 1 {
		var zero T
		return zero, false
	}
	val := c.val
	reg, id := h.reg, h.id
	h.reg = nil
	reg.recycle(id)
	return val, true
}
