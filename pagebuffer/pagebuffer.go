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

// Package pagebuffer implements PageBuffer, the whole-document container: an
// ordered, non-empty sequence of pages kept near a target size, with
// composite cursors that traverse blocks and bytes across page boundaries
// and a cross-page delete that returns a single replayable ChangeSet.
package pagebuffer

import (
	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/changeset"
	"github.com/creachadair/pagebuf/internal/slotmap"
	"github.com/creachadair/pagebuf/page"
)

// A Cursor is a composite handle: a page-cursor paired with a block-cursor
// inside that page. It is the PageBuffer-level counterpart of
// page.BlockHandle and obeys the same handle rules H1-H3.
type Cursor[A attrs.Tag] struct {
	ph *slotmap.Handle[*page.Page[A]]
	bh *page.BlockHandle[A]
}

// Block returns the payload of the block the cursor addresses.
func (c *Cursor[A]) Block() (page.Block[A], bool) { return c.bh.Block() }

// Pos reports the byte offset within the addressed block.
func (c *Cursor[A]) Pos() int { return c.bh.Pos() }

// Valid reports whether the cursor's page and block are both still
// reachable from the buffer.
func (c *Cursor[A]) Valid() bool { return c.ph.Valid() && c.bh.Valid() }

// Release drops the cursor's references to its page and block.
func (c *Cursor[A]) Release() {
	c.bh.Release()
	c.ph.Release()
}

// A PageBuffer is an ordered, non-empty sequence of pages
// kept near targetPageSize by splitting. Every page it owns is reachable
// through its own block registry; pages born from splitting a common parent
// share that parent's registry so that moving a block between them during a
// split never disturbs outstanding handles.
type PageBuffer[A attrs.Tag] struct {
	pageReg        *slotmap.Registry[*page.Page[A]]
	pages          []slotmap.ID
	targetPageSize int
	size           int
}

// New returns a PageBuffer with one empty page, using targetPageSize to seed
// every page it creates or adopts.
func New[A attrs.Tag](targetPageSize int) *PageBuffer[A] {
	reg := slotmap.NewRegistry[*page.Page[A]]()
	pg := page.New[A](targetPageSize)
	id := reg.Alloc(pg)
	return &PageBuffer[A]{pageReg: reg, pages: []slotmap.ID{id}, targetPageSize: targetPageSize}
}

// Size reports the total number of bytes in the buffer.
func (b *PageBuffer[A]) Size() int { return b.size }

// PageCount reports the number of pages in the buffer.
func (b *PageBuffer[A]) PageCount() int { return len(b.pages) }

// TargetPageSize reports the buffer's target page size.
func (b *PageBuffer[A]) TargetPageSize() int { return b.targetPageSize }

func (b *PageBuffer[A]) isEmpty() bool {
	return len(b.pages) == 1 && b.pageReg.Get(b.pages[0]).IsEmptySentinel()
}

func (b *PageBuffer[A]) pageIndexOf(id slotmap.ID) int {
	for i, p := range b.pages {
		if p == id {
			return i
		}
	}
	return -1
}

func (b *PageBuffer[A]) insertPageAt(idx int, id slotmap.ID) {
	b.pages = append(b.pages, 0)
	copy(b.pages[idx+1:], b.pages[idx:])
	b.pages[idx] = id
}

// First returns a cursor at byte position 0 of the buffer's first page.
func (b *PageBuffer[A]) First() *Cursor[A] {
	id := b.pages[0]
	ph := b.pageReg.NewHandle(id)
	return &Cursor[A]{ph: ph, bh: b.pageReg.Get(id).First()}
}

// Last returns a cursor one-past-end of the buffer's last page.
func (b *PageBuffer[A]) Last() *Cursor[A] {
	id := b.pages[len(b.pages)-1]
	ph := b.pageReg.NewHandle(id)
	return &Cursor[A]{ph: ph, bh: b.pageReg.Get(id).Last()}
}

// Clone returns an independent cursor at the same position as c.
func (b *PageBuffer[A]) Clone(c *Cursor[A]) *Cursor[A] {
	ph := b.pageReg.NewHandle(c.ph.ID())
	pg := b.pageReg.Get(c.ph.ID())
	return &Cursor[A]{ph: ph, bh: c.bh.Clone(pg.Registry())}
}

// AppendPage adds p to the end of the buffer, forcing its target size to
// the buffer's. If the buffer was empty (its sole page was the empty
// sentinel), p replaces that page instead.
func (b *PageBuffer[A]) AppendPage(p *page.Page[A]) {
	p.SetTargetSize(b.targetPageSize)
	if b.isEmpty() {
		oldID := b.pages[0]
		newID := b.pageReg.Alloc(p)
		b.pageReg.Remove(oldID)
		b.pages[0] = newID
		b.size = p.Size()
		return
	}
	newID := b.pageReg.Alloc(p)
	b.pages = append(b.pages, newID)
	b.size += p.Size()
}

// InsertPage places p immediately before at, forcing its target size to the
// buffer's. If the buffer was empty, p replaces the sole empty page instead
// (the same replacement rule AppendPage uses).
func (b *PageBuffer[A]) InsertPage(at *Cursor[A], p *page.Page[A]) {
	p.SetTargetSize(b.targetPageSize)
	if b.isEmpty() {
		oldID := b.pages[0]
		newID := b.pageReg.Alloc(p)
		b.pageReg.Remove(oldID)
		b.pages[0] = newID
		b.size = p.Size()
		at.ph.Reassign(newID)
		return
	}
	idx := b.pageIndexOf(at.ph.ID())
	newID := b.pageReg.Alloc(p)
	b.insertPageAt(idx, newID)
	b.size += p.Size()
}

// DeletePage removes the page at addresses and returns a ChangeSet carrying
// all of its blocks in order. If it was the sole page, a fresh empty page
// replaces it and at resets to its first position; otherwise
// at advances to the page that followed, or becomes Last() if none remains.
func (b *PageBuffer[A]) DeletePage(at *Cursor[A]) *changeset.ChangeSet[A] {
	idx := b.pageIndexOf(at.ph.ID())
	pg := b.pageReg.Get(b.pages[idx])
	cs := changeset.New[A]()
	var off int
	for _, id := range b.pages[:idx] {
		off += b.pageReg.Get(id).Size()
	}
	cs.SetOffset(int64(off))
	collectAllBlocks(pg, cs)

	b.pageReg.Remove(b.pages[idx])
	b.size -= pg.Size()

	if len(b.pages) == 1 {
		newPg := page.New[A](b.targetPageSize)
		newID := b.pageReg.Alloc(newPg)
		b.pages[0] = newID
		at.bh.Release()
		at.ph.Reassign(newID)
		at.bh = newPg.First()
		return cs
	}

	b.pages = append(b.pages[:idx], b.pages[idx+1:]...)
	at.bh.Release()
	if idx < len(b.pages) {
		nextID := b.pages[idx]
		at.ph.Reassign(nextID)
		at.bh = b.pageReg.Get(nextID).First()
	} else {
		lastID := b.pages[len(b.pages)-1]
		at.ph.Reassign(lastID)
		at.bh = b.pageReg.Get(lastID).Last()
	}
	return cs
}

func collectAllBlocks[A attrs.Tag](pg *page.Page[A], cs *changeset.ChangeSet[A]) {
	bh := pg.First()
	defer bh.Release()
	for {
		blk, _ := bh.Block()
		if !blk.IsEmpty() {
			cs.Append(append([]byte(nil), blk.Bytes()...), blk.Attribute())
		}
		if pg.NextBlock(bh) < 0 {
			break
		}
	}
}

// InsertBytes inserts raw at the position at addresses, tagging it with
// attr, and splits the containing page if it now exceeds its target size.
func (b *PageBuffer[A]) InsertBytes(at *Cursor[A], raw []byte, attr A) int {
	pageID := at.ph.ID()
	pg := b.pageReg.Get(pageID)
	before := pg.Size()
	n := pg.InsertBytes(at.bh, raw, attr)
	b.size += pg.Size() - before
	if pg.Size() > pg.TargetSize() {
		b.splitPage(pageID, at)
	}
	return n
}

// splitPage keeps the page addressed by pageID within its target size by
// peeling fresh pages off its front, following the exact-byte-offset
// tie-break rule from the data model: a block that would push the new page
// over target is split so the new page lands exactly at target. cur, if
// non-nil, is relocated to keep addressing the same logical byte if its
// block is moved or split.
func (b *PageBuffer[A]) splitPage(pageID slotmap.ID, cur *Cursor[A]) {
	for {
		oldPg := b.pageReg.Get(pageID)
		if oldPg.Size() <= oldPg.TargetSize() {
			return
		}

		newPg := page.NewBare[A](oldPg.Registry(), oldPg.TargetSize())
		newPageID := b.pageReg.Alloc(newPg)

		for newPg.Size() < newPg.TargetSize() && oldPg.BlockCount() > 0 {
			cursor := oldPg.First()
			blk, _ := cursor.Block()
			candidateAdded := newPg.Size() + blk.Size()
			if candidateAdded > newPg.TargetSize() {
				offset := blk.Size() - (candidateAdded - newPg.TargetSize())
				oldPg.Next(cursor, offset)
				oldPg.SplitBlock(cursor)
			}
			cursor.Release()

			movedID := oldPg.FirstID()
			oldPg.TransferFront(newPg)

			if cur != nil && cur.ph.ID() == pageID && cur.bh.ID() == movedID {
				cur.ph.Reassign(newPageID)
			}
		}

		if oldPg.BlockCount() == 0 {
			panic("pagebuffer: splitPage emptied the source page")
		}

		idx := b.pageIndexOf(pageID)
		b.insertPageAt(idx, newPageID)
	}
}

// NextBlock advances at to byte 0 of the following block, crossing a page
// boundary if necessary, and returns the bytes left unread in the block at
// left, or -1 without moving at if it already addressed the buffer's last
// block.
func (b *PageBuffer[A]) NextBlock(at *Cursor[A]) int {
	pg := b.pageReg.Get(at.ph.ID())
	if n := pg.NextBlock(at.bh); n >= 0 {
		return n
	}
	pageIdx := b.pageIndexOf(at.ph.ID())
	if pageIdx == len(b.pages)-1 {
		return -1
	}
	blk, _ := at.bh.Block()
	remaining := blk.Size() - at.bh.Pos()

	nextID := b.pages[pageIdx+1]
	nextPg := b.pageReg.Get(nextID)
	at.bh.Release()
	at.ph.Reassign(nextID)
	at.bh = nextPg.First()
	return remaining
}

// PrevBlock retreats at to byte size() of the preceding block, crossing a
// page boundary if necessary, and returns at.Pos() (the bytes skipped in the
// block at left), or -1 without moving at if it already addressed the
// buffer's first block.
func (b *PageBuffer[A]) PrevBlock(at *Cursor[A]) int {
	pg := b.pageReg.Get(at.ph.ID())
	if n := pg.PrevBlock(at.bh); n >= 0 {
		return n
	}
	pageIdx := b.pageIndexOf(at.ph.ID())
	if pageIdx == 0 {
		return -1
	}
	skipped := at.bh.Pos()

	prevID := b.pages[pageIdx-1]
	prevPg := b.pageReg.Get(prevID)
	at.bh.Release()
	at.ph.Reassign(prevID)
	at.bh = prevPg.Last()
	return skipped
}

// Next advances at by up to n bytes across page boundaries, and returns the
// number of bytes actually skipped (0 <= result <= n).
func (b *PageBuffer[A]) Next(at *Cursor[A], n int) int {
	moved := 0
	for moved < n {
		pg := b.pageReg.Get(at.ph.ID())
		remain := n - moved
		got := pg.Next(at.bh, remain)
		moved += got
		if got == remain {
			return moved
		}
		if b.NextBlock(at) < 0 {
			return moved
		}
	}
	return moved
}

// Prev retreats at by up to n bytes across page boundaries, and returns the
// number of bytes actually skipped (0 <= result <= n).
func (b *PageBuffer[A]) Prev(at *Cursor[A], n int) int {
	moved := 0
	for moved < n {
		pg := b.pageReg.Get(at.ph.ID())
		remain := n - moved
		got := pg.Prev(at.bh, remain)
		moved += got
		if got == remain {
			return moved
		}
		if b.PrevBlock(at) < 0 {
			return moved
		}
	}
	return moved
}

// Bytes returns up to n bytes starting at the position at addresses,
// advancing across pages but not at, and never reading past the end of the
// buffer.
func (b *PageBuffer[A]) Bytes(at *Cursor[A], n int) []byte {
	out := make([]byte, 0, n)
	pageIdx := b.pageIndexOf(at.ph.ID())
	pg := b.pageReg.Get(at.ph.ID())
	out = append(out, pg.Bytes(at.bh, n)...)

	for len(out) < n && pageIdx+1 < len(b.pages) {
		pageIdx++
		nextPg := b.pageReg.Get(b.pages[pageIdx])
		h := nextPg.First()
		out = append(out, nextPg.Bytes(h, n-len(out))...)
		h.Release()
	}
	return out
}

// DeleteBytes removes the bytes between from and to (from <= to, both
// within this buffer), returning a ChangeSet carrying the removed bytes in
// forward order. Behavior when to precedes from is undefined, matching the
// Page-level contract. Pages left empty by a cross-page delete are removed,
// except that at least one page always remains.
func (b *PageBuffer[A]) DeleteBytes(from, to *Cursor[A]) *changeset.ChangeSet[A] {
	cs := changeset.New[A]()
	fromPageIdx := b.pageIndexOf(from.ph.ID())
	toPageIdx := b.pageIndexOf(to.ph.ID())
	if fromPageIdx < 0 || toPageIdx < 0 || fromPageIdx > toPageIdx {
		return cs
	}
	start := b.Clone(from)
	cs.SetOffset(int64(b.Prev(start, b.size)))
	start.Release()

	if fromPageIdx == toPageIdx {
		pg := b.pageReg.Get(from.ph.ID())
		before := pg.Size()
		sub := pg.DeleteBytes(from.bh, to.bh)
		b.size -= before - pg.Size()
		cs.Concat(sub)
		return cs
	}

	fromPageID := from.ph.ID()
	toPageID := to.ph.ID()

	fromPg := b.pageReg.Get(fromPageID)
	fromBefore := fromPg.Size()
	fromEnd := fromPg.Last()
	tail := fromPg.DeleteBytes(from.bh, fromEnd)
	fromEnd.Release()
	b.size -= fromBefore - fromPg.Size()
	cs.Concat(tail)

	for idx := fromPageIdx + 1; idx < toPageIdx; {
		midID := b.pages[idx]
		midPg := b.pageReg.Get(midID)
		collectAllBlocks(midPg, cs)
		b.size -= midPg.Size()
		b.pageReg.Remove(midID)
		b.pages = append(b.pages[:idx], b.pages[idx+1:]...)
		toPageIdx--
	}

	toPg := b.pageReg.Get(toPageID)
	toBefore := toPg.Size()
	toStart := toPg.First()
	head := toPg.DeleteBytes(toStart, to.bh)
	toStart.Release()
	b.size -= toBefore - toPg.Size()
	cs.Concat(head)

	b.pruneEmptyPage(fromPageID)
	b.pruneEmptyPage(toPageID)

	return cs
}

func (b *PageBuffer[A]) pruneEmptyPage(pageID slotmap.ID) {
	idx := b.pageIndexOf(pageID)
	if idx < 0 || len(b.pages) == 1 {
		return
	}
	pg := b.pageReg.Get(pageID)
	if !pg.IsEmptySentinel() {
		return
	}
	b.pageReg.Remove(pageID)
	b.pages = append(b.pages[:idx], b.pages[idx+1:]...)
}
