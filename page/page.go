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

package page

import (
	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/bytearray"
	"github.com/creachadair/pagebuf/changeset"
	"github.com/creachadair/pagebuf/internal/slotmap"
)

// A BlockHandle is a persistent reference to a byte position inside one
// block of a Page: (block, byte-offset-in-block). It remains usable across
// edits made through other handles on the same page, per the handle rules
// H1-H3: it may go invalid (its block was removed) while staying readable,
// and Pos is kept correct across splits and in-place edits to its block.
//
// A BlockHandle must be used by pointer; it is always returned that way.
type BlockHandle[A attrs.Tag] struct {
	h *slotmap.Handle[Block[A]]
}

// Pos reports the byte offset within the addressed block.
func (bh *BlockHandle[A]) Pos() int { return bh.h.Aux }

// Block returns the payload of the addressed block and true, whether or not
// the handle is still valid, as long as the slot has not been recycled.
func (bh *BlockHandle[A]) Block() (Block[A], bool) { return bh.h.Value() }

// Valid reports whether the handle's block is still reachable from its page.
func (bh *BlockHandle[A]) Valid() bool { return bh.h.Valid() }

// ID reports the slot ID of the addressed block.
func (bh *BlockHandle[A]) ID() slotmap.ID { return bh.h.ID() }

// Release drops the handle's reference to its block.
func (bh *BlockHandle[A]) Release() { bh.h.Release() }

// Clone returns an independent handle at the same position as bh.
func (bh *BlockHandle[A]) Clone(reg *slotmap.Registry[Block[A]]) *BlockHandle[A] {
	h := reg.NewHandle(bh.h.ID())
	h.Aux = bh.h.Aux
	return &BlockHandle[A]{h: h}
}

// A Page is an ordered, non-empty sequence of blocks kept near a target
// byte size. Invariant I1: a page always has at least one block; if every
// block is deleted, a fresh empty block takes its place. Invariant I2: size
// always equals the sum of the sizes of the page's blocks.
type Page[A attrs.Tag] struct {
	reg    *slotmap.Registry[Block[A]]
	blocks []slotmap.ID

	targetSize int
	size       int

	fileOffset int64
	hasOffset  bool
}

// New returns a fresh, empty page (a single empty sentinel block) with its
// own private block registry and the given target size.
func New[A attrs.Tag](targetSize int) *Page[A] {
	return NewInRegistry[A](slotmap.NewRegistry[Block[A]](), targetSize)
}

// NewInRegistry returns a fresh, empty page whose blocks are allocated out of
// reg. Pages that share one block registry can exchange blocks: moving a
// block between them is then just re-splicing the same slot ID into a
// different page's ordered list, and every outstanding handle on that block
// keeps working without modification (it addresses the slot, not a
// particular page). A PageBuffer's split gets the same effect through
// NewBare.
func NewInRegistry[A attrs.Tag](reg *slotmap.Registry[Block[A]], targetSize int) *Page[A] {
	id := reg.Alloc(Block[A]{})
	return &Page[A]{reg: reg, blocks: []slotmap.ID{id}, targetSize: targetSize}
}

// NewBare returns a page backed by reg with no blocks at all, violating
// empty until the caller transfers at least one block into it with
// TransferFront. It exists only for a pagebuffer's split algorithm, which
// always populates the page before it is exposed to any other operation.
func NewBare[A attrs.Tag](reg *slotmap.Registry[Block[A]], targetSize int) *Page[A] {
	return &Page[A]{reg: reg, targetSize: targetSize}
}

// Registry returns the registry backing this page's blocks.
func (p *Page[A]) Registry() *slotmap.Registry[Block[A]] { return p.reg }

// FirstID reports the slot ID of the page's first block.
func (p *Page[A]) FirstID() slotmap.ID { return p.blocks[0] }

// Size reports the cached total size of the page's blocks.
func (p *Page[A]) Size() int { return p.size }

// BlockCount reports the number of blocks in the page.
func (p *Page[A]) BlockCount() int { return len(p.blocks) }

// TargetSize reports the page's target byte size.
func (p *Page[A]) TargetSize() int { return p.targetSize }

// SetTargetSize changes the page's target byte size, as a PageBuffer does
// when it adopts a page (append_page/insert_page force the buffer's target
// size onto the page).
func (p *Page[A]) SetTargetSize(n int) { p.targetSize = n }

// Offset returns the page's originating file offset, if one was recorded.
func (p *Page[A]) Offset() (int64, bool) { return p.fileOffset, p.hasOffset }

// SetOffset records the page's originating file offset.
func (p *Page[A]) SetOffset(off int64) { p.fileOffset, p.hasOffset = off, true }

// IsEmptySentinel reports whether the page holds exactly the fresh, empty
// sentinel block a page requires when everything has been
// deleted from it.
func (p *Page[A]) IsEmptySentinel() bool {
	return len(p.blocks) == 1 && p.reg.Get(p.blocks[0]).IsEmpty()
}

func (p *Page[A]) indexOf(id slotmap.ID) int {
	for i, b := range p.blocks {
		if b == id {
			return i
		}
	}
	return -1
}

func (p *Page[A]) insertAt(idx int, id slotmap.ID) {
	p.blocks = append(p.blocks, 0)
	copy(p.blocks[idx+1:], p.blocks[idx:])
	p.blocks[idx] = id
}

// First returns a handle at byte position 0 of the page's first block.
func (p *Page[A]) First() *BlockHandle[A] {
	h := p.reg.NewHandle(p.blocks[0])
	h.Aux = 0
	return &BlockHandle[A]{h: h}
}

// Last returns a handle one-past-end of the page's last block.
func (p *Page[A]) Last() *BlockHandle[A] {
	id := p.blocks[len(p.blocks)-1]
	h := p.reg.NewHandle(id)
	h.Aux = p.reg.Get(id).Size()
	return &BlockHandle[A]{h: h}
}

// InsertBlock places blk so that at ends up addressing the inserted block at
// its own end:
//   - if the page is the empty sentinel, the sentinel is replaced;
//   - else if at is Last(), blk is appended;
//   - else if at.Pos() == block size, blk is inserted after the current block;
//   - else blk is inserted before the current block.
func (p *Page[A]) InsertBlock(at *BlockHandle[A], blk Block[A]) {
	if p.IsEmptySentinel() {
		oldID := p.blocks[0]
		newID := p.reg.Alloc(blk)
		p.reg.Remove(oldID)
		p.blocks[0] = newID
		p.size = blk.Size()
		at.h.Reassign(newID)
		at.h.Aux = blk.Size()
		return
	}

	idx := p.indexOf(at.h.ID())
	atBlk, _ := at.h.Value()
	isLast := idx == len(p.blocks)-1 && at.h.Aux == atBlk.Size()
	newID := p.reg.Alloc(blk)
	p.size += blk.Size()

	switch {
	case isLast:
		p.blocks = append(p.blocks, newID)
	case at.h.Aux == atBlk.Size():
		p.insertAt(idx+1, newID)
	default:
		p.insertAt(idx, newID)
	}
	at.h.Reassign(newID)
	at.h.Aux = blk.Size()
}

// DeleteBlock removes the block at addresses and returns it. If it was the
// page's sole block, a fresh empty block takes its place and
// at resets to position 0 of that block; otherwise at advances to the block
// that followed, or becomes Last() if none remains.
func (p *Page[A]) DeleteBlock(at *BlockHandle[A]) Block[A] {
	idx := p.indexOf(at.h.ID())
	id := p.blocks[idx]
	removed := p.reg.Remove(id)
	p.size -= removed.Size()

	if len(p.blocks) == 1 {
		newID := p.reg.Alloc(Block[A]{})
		p.blocks[0] = newID
		at.h.Reassign(newID)
		at.h.Aux = 0
		return removed
	}

	p.blocks = append(p.blocks[:idx], p.blocks[idx+1:]...)
	if idx < len(p.blocks) {
		at.h.Reassign(p.blocks[idx])
		at.h.Aux = 0
	} else {
		lastID := p.blocks[len(p.blocks)-1]
		at.h.Reassign(lastID)
		at.h.Aux = p.reg.Get(lastID).Size()
	}
	return removed
}

// SplitBlock splits the block at addresses at byte position at.Pos(). It is
// a no-op when at.Pos() is 0 or the block's own size. The left half becomes
// a new block immediately before the original, which keeps its identity and
// now holds only the right half; at (and every other outstanding handle on
// the block) is relocated to the half containing its byte position, with
// positions on the right half reduced by the split offset.
func (p *Page[A]) SplitBlock(at *BlockHandle[A]) {
	idx := p.indexOf(at.h.ID())
	id := p.blocks[idx]
	blk := p.reg.Get(id)
	pos := at.h.Aux
	if pos <= 0 || pos >= blk.Size() {
		return
	}

	left := NewBlock[A](blk.Data().Substring(0, pos), blk.attr)
	leftID := p.reg.Alloc(left)

	right := NewBlock[A](blk.Data().Substring(pos, bytearray.Rest), blk.attr)
	p.reg.Set(id, right)

	p.reg.Relocate(id, leftID, func(aux int) (int, bool) {
		if aux < pos {
			return aux, true
		}
		return aux - pos, false
	})

	p.insertAt(idx, leftID)
}

// InsertBytes inserts raw at the position addressed by at, tagging it with
// attr. If at's block is the page's empty sentinel, the sentinel is replaced
// in place regardless of attr. Otherwise, if attr differs
// from the target block's attribute, the block is split at at and a new
// block carrying (raw, attr) is inserted there; if attr matches, raw is
// inserted into the target block in place. In every case at ends up
// addressing the position immediately after the inserted bytes.
func (p *Page[A]) InsertBytes(at *BlockHandle[A], raw []byte, attr A) int {
	if len(raw) == 0 {
		return 0
	}
	idx := p.indexOf(at.h.ID())
	id := p.blocks[idx]
	blk := p.reg.Get(id)

	if blk.IsEmpty() {
		p.reg.Set(id, NewBlock[A](bytearray.New(raw), attr))
		p.size += len(raw)
		at.h.Aux = len(raw)
		return len(raw)
	}

	if blk.attr != attr {
		p.SplitBlock(at)
		p.InsertBlock(at, NewBlock[A](bytearray.New(raw), attr))
		return len(raw)
	}

	n := blk.InsertBytes(at.h.Aux, raw)
	p.reg.Set(id, blk)
	p.reg.ShiftAux(id, at.h.Aux, n) // at is bound to id, so this advances it too
	p.size += n
	return n
}

// NextBlock advances at to byte 0 of the following block, returning the
// number of bytes that were left unread in the block at left (from at.Pos()
// to its end), or -1 without moving at if it already addressed the page's
// last block.
func (p *Page[A]) NextBlock(at *BlockHandle[A]) int {
	idx := p.indexOf(at.h.ID())
	if idx == len(p.blocks)-1 {
		return -1
	}
	blk, _ := at.h.Value()
	remaining := blk.Size() - at.h.Aux
	nextID := p.blocks[idx+1]
	at.h.Reassign(nextID)
	at.h.Aux = 0
	return remaining
}

// PrevBlock retreats at to byte size() of the preceding block, returning
// at.Pos() (the bytes skipped in the block at left), or -1 without moving at
// if it already addressed the page's first block.
func (p *Page[A]) PrevBlock(at *BlockHandle[A]) int {
	idx := p.indexOf(at.h.ID())
	if idx == 0 {
		return -1
	}
	skipped := at.h.Aux
	prevID := p.blocks[idx-1]
	at.h.Reassign(prevID)
	at.h.Aux = p.reg.Get(prevID).Size()
	return skipped
}

// Next advances at by up to n bytes without leaving the page, and returns
// the number of bytes actually skipped (0 <= result <= n).
func (p *Page[A]) Next(at *BlockHandle[A], n int) int {
	moved := 0
	for moved < n {
		blk, _ := at.h.Value()
		avail := blk.Size() - at.h.Aux
		remain := n - moved
		if remain <= avail {
			at.h.Aux += remain
			return moved + remain
		}
		if p.NextBlock(at) < 0 {
			at.h.Aux = blk.Size()
			return moved + avail
		}
		moved += avail
	}
	return moved
}

// Prev retreats at by up to n bytes without leaving the page, and returns
// the number of bytes actually skipped (0 <= result <= n).
func (p *Page[A]) Prev(at *BlockHandle[A], n int) int {
	moved := 0
	for moved < n {
		avail := at.h.Aux
		remain := n - moved
		if remain <= avail {
			at.h.Aux -= remain
			return moved + remain
		}
		if p.PrevBlock(at) < 0 {
			at.h.Aux = 0
			return moved + avail
		}
		moved += avail
	}
	return moved
}

// Bytes returns up to n bytes starting at the position at addresses,
// without advancing at, never reading past the end of the page.
func (p *Page[A]) Bytes(at *BlockHandle[A], n int) []byte {
	idx := p.indexOf(at.h.ID())
	pos := at.h.Aux
	out := make([]byte, 0, n)
	for idx < len(p.blocks) && len(out) < n {
		data := p.reg.Get(p.blocks[idx]).Bytes()[pos:]
		if need := n - len(out); need < len(data) {
			data = data[:need]
		}
		out = append(out, data...)
		idx++
		pos = 0
	}
	return out
}

// DeleteBytes removes the bytes between from and to (from <= to, both
// within this page), returning a ChangeSet carrying the removed bytes in
// forward order, each wrapped with the attribute of the block it came from.
// Behavior when to precedes from is undefined, per the contract of the
// layer above. Every outstanding handle on an affected block is relocated
// in place: handles on a block that is fully removed become invalid but
// stay readable; handles inside a surviving partial edit keep
// addressing the same logical byte.
func (p *Page[A]) DeleteBytes(from, to *BlockHandle[A]) *changeset.ChangeSet[A] {
	cs := changeset.New[A]()
	fromIdx := p.indexOf(from.h.ID())
	toIdx := p.indexOf(to.h.ID())
	if fromIdx < 0 || toIdx < 0 {
		return cs
	}

	if fromIdx == toIdx {
		p.deleteWithinBlock(fromIdx, from.h.Aux, to.h.Aux, cs)
		return cs
	}

	type removal struct {
		idx    int
		whole  bool
		lo, hi int
	}
	fromSize := p.reg.Get(p.blocks[fromIdx]).Size()
	plan := []removal{{idx: fromIdx, whole: from.h.Aux == 0, lo: from.h.Aux, hi: fromSize}}
	for i := fromIdx + 1; i < toIdx; i++ {
		plan = append(plan, removal{idx: i, whole: true})
	}
	toSize := p.reg.Get(p.blocks[toIdx]).Size()
	plan = append(plan, removal{idx: toIdx, whole: to.h.Aux == toSize, lo: 0, hi: to.h.Aux})

	type piece struct {
		data []byte
		attr A
	}
	pieces := make([]piece, len(plan))
	for i, r := range plan {
		blk := p.reg.Get(p.blocks[r.idx])
		if r.whole {
			pieces[i] = piece{data: append([]byte(nil), blk.Bytes()...), attr: blk.Attribute()}
		} else {
			pieces[i] = piece{data: blk.Data().Substring(r.lo, r.hi-r.lo).Bytes(), attr: blk.Attribute()}
		}
	}

	// Apply back to front so earlier indices in the plan stay valid.
	for i := len(plan) - 1; i >= 0; i-- {
		r := plan[i]
		id := p.blocks[r.idx]
		if r.whole {
			p.size -= p.reg.Get(id).Size()
			p.reg.Remove(id)
			p.blocks = append(p.blocks[:r.idx], p.blocks[r.idx+1:]...)
			continue
		}
		blk := p.reg.Get(id)
		removedLen := r.hi - r.lo
		blk.DeleteBytes(r.lo, removedLen)
		p.reg.Set(id, blk)
		p.size -= removedLen
		p.reg.ClampAux(id, r.lo, r.hi, removedLen)
	}

	if len(p.blocks) == 0 {
		p.blocks = append(p.blocks, p.reg.Alloc(Block[A]{}))
	}

	for _, pc := range pieces {
		cs.Append(pc.data, pc.attr)
	}
	return cs
}

func (p *Page[A]) deleteWithinBlock(idx, fromPos, toPos int, cs *changeset.ChangeSet[A]) {
	id := p.blocks[idx]
	blk := p.reg.Get(id)
	size := blk.Size()

	if fromPos == 0 && toPos == size {
		cs.Append(append([]byte(nil), blk.Bytes()...), blk.Attribute())
		p.size -= size
		p.reg.Remove(id)
		if len(p.blocks) == 1 {
			p.blocks[0] = p.reg.Alloc(Block[A]{})
		} else {
			p.blocks = append(p.blocks[:idx], p.blocks[idx+1:]...)
		}
		return
	}

	removedLen := toPos - fromPos
	removed := blk.DeleteBytes(fromPos, removedLen)
	p.reg.Set(id, blk)
	p.size -= removedLen
	p.reg.ClampAux(id, fromPos, toPos, removedLen)
	cs.Append(removed.Bytes(), removed.Attribute())
}

// TransferFront detaches this page's first block (by identity, preserving
// every outstanding handle on it) and appends it to dst. Both pages must
// share the same underlying registry. This is the primitive a PageBuffer's
// split_page algorithm uses to grow a new page out of the front of an
// overflowing one without disturbing iterators.
func (p *Page[A]) TransferFront(dst *Page[A]) {
	id := p.blocks[0]
	p.blocks = p.blocks[1:]
	sz := p.reg.Get(id).Size()
	p.size -= sz
	dst.blocks = append(dst.blocks, id)
	dst.size += sz
}
