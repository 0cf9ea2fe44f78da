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

// Package page implements Block, the smallest attributed unit of text, and
// Page, an ordered run of blocks kept near a target size. Together these
// form the two middle layers of the buffer core, sitting between a bare
// bytearray.ByteArray and the whole-document pagebuffer.PageBuffer.
package page

import "github.com/creachadair/pagebuf/bytearray"
import "github.com/creachadair/pagebuf/attrs"

// A Block pairs a ByteArray with a single attribute value that applies to
// every byte it holds. Two adjoining blocks with equal attributes are
// candidates for merging; a block never silently contains bytes carrying two
// different attributes.
type Block[A attrs.Tag] struct {
	data bytearray.ByteArray
	attr A
}

// NewBlock returns a Block holding a copy of data tagged with attr.
func NewBlock[A attrs.Tag](data bytearray.ByteArray, attr A) Block[A] {
	return Block[A]{data: data, attr: attr}
}

// Size reports the number of bytes the block holds.
func (b Block[A]) Size() int { return b.data.Size() }

// IsEmpty reports whether the block holds no bytes. A page's sole block is
// allowed to be empty; no other block may be.
func (b Block[A]) IsEmpty() bool { return b.data.Size() == 0 }

// Attribute returns the block's attribute tag.
func (b Block[A]) Attribute() A { return b.attr }

// Bytes returns the block's contents. The caller must not modify the result.
func (b Block[A]) Bytes() []byte { return b.data.Bytes() }

// Data returns a copy of the block's underlying ByteArray, safe for the
// caller to mutate independently of b.
func (b Block[A]) Data() bytearray.ByteArray { return b.data.Substring(0, bytearray.Rest) }

// InsertBytes places raw at byte position pos within the block, clamping pos
// into range, and reports the number of bytes inserted (always len(raw)).
func (b *Block[A]) InsertBytes(pos int, raw []byte) int {
	return b.data.InsertBytes(pos, raw)
}

// DeleteBytes removes up to length bytes starting at pos from the block,
// clamping both to the block's bounds, and returns a new Block holding the
// removed bytes tagged with the receiver's attribute. The receiver shrinks
// in place.
func (b *Block[A]) DeleteBytes(pos, length int) Block[A] {
	removed := b.data.Substring(pos, length)
	b.data.Erase(pos, length)
	return Block[A]{data: removed, attr: b.attr}
}

// SetAttributes changes the block's attribute tag in place.
func (b *Block[A]) SetAttributes(a A) { b.attr = a }

// Clear empties the block's contents in place, keeping its attribute.
func (b *Block[A]) Clear() { b.data.Clear() }
