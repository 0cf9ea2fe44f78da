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

// Package changeset records the result of a deletion as a replayable,
// ordered edit record, independent of the page/pagebuffer types so that
// those packages can depend on it without a cycle.
package changeset

import "github.com/cespare/xxhash/v2"
import "github.com/creachadair/pagebuf/attrs"

// An Entry is one contiguous run of removed bytes, tagged with the
// attribute of the block it was removed from.
type Entry[A attrs.Tag] struct {
	Bytes []byte
	Attr  A
}

// A ChangeSet is the ordered record of one deletion: a starting absolute
// offset, a total size, and the sequence of removed entries in the original
// forward order they appeared in the buffer. Replaying the entries in order
// at Offset reproduces the inverse edit.
type ChangeSet[A attrs.Tag] struct {
	Offset  int64
	Entries []Entry[A]
	size    int
}

// New returns an empty ChangeSet starting at absolute offset 0. Use
// SetOffset to record the true starting position once it is known to the
// caller (page.DeleteBytes has no notion of an absolute offset; pagebuffer
// does).
func New[A attrs.Tag]() *ChangeSet[A] {
	return &ChangeSet[A]{}
}

// SetOffset records the absolute buffer offset the deletion started at.
func (c *ChangeSet[A]) SetOffset(off int64) { c.Offset = off }

// Append adds one removed run to the end of the change set, in forward
// order. The caller must not retain or mutate data afterward.
func (c *ChangeSet[A]) Append(data []byte, attr A) {
	if len(data) == 0 {
		return
	}
	c.Entries = append(c.Entries, Entry[A]{Bytes: data, Attr: attr})
	c.size += len(data)
}

// Concat appends the entries of other to c, in order, as if the deletion
// other records happened immediately after c's. This is how a cross-page
// delete assembles its per-page change sets into one.
func (c *ChangeSet[A]) Concat(other *ChangeSet[A]) {
	c.Entries = append(c.Entries, other.Entries...)
	c.size += other.size
}

// Size reports the total number of removed bytes across all entries.
func (c *ChangeSet[A]) Size() int { return c.size }

// Bytes concatenates every entry's payload into a single slice, in order.
func (c *ChangeSet[A]) Bytes() []byte {
	out := make([]byte, 0, c.size)
	for _, e := range c.Entries {
		out = append(out, e.Bytes...)
	}
	return out
}

// Checksum returns an xxhash-64 fingerprint of the concatenated removed
// bytes. It is a diagnostic aid for callers building undo stacks that want a
// cheap corruption check; the core's own algorithms never consult it.
func (c *ChangeSet[A]) Checksum() uint64 {
	h := xxhash.New()
	for _, e := range c.Entries {
		h.Write(e.Bytes)
	}
	return h.Sum64()
}
