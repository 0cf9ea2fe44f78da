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

// Package bytearray implements a value-semantic, opaque, mutable byte
// sequence: the leaf type the rest of the buffer core is built on. Positions
// are always clamped rather than rejected, so callers never have to guard
// arithmetic against the current size before calling in.
package bytearray

// Rest is the sentinel length meaning "to the end of the sequence", for use
// with Erase and Substring.
const Rest = -1

// A ByteArray is a mutable, ordered sequence of bytes. The zero value is an
// empty, ready-to-use ByteArray.
type ByteArray struct {
	data []byte
}

// New returns a ByteArray holding a copy of data.
func New(data []byte) ByteArray {
	return ByteArray{data: append([]byte(nil), data...)}
}

// Size reports the current length of b in bytes.
func (b ByteArray) Size() int { return len(b.data) }

// Bytes returns the contents of b. The caller must not modify the result.
func (b ByteArray) Bytes() []byte { return b.data }

// Clear empties b.
func (b *ByteArray) Clear() { b.data = b.data[:0] }

// Append adds the contents of other to the end of b.
func (b *ByteArray) Append(other ByteArray) {
	b.data = append(b.data, other.data...)
}

// AppendBytes adds raw to the end of b.
func (b *ByteArray) AppendBytes(raw []byte) {
	b.data = append(b.data, raw...)
}

// Insert places the contents of other at position pos in b. If pos exceeds
// the current size, Insert behaves as Append.
func (b *ByteArray) Insert(pos int, other ByteArray) int {
	return b.InsertBytes(pos, other.data)
}

// InsertBytes places raw at position pos in b, clamping pos into [0, Size()],
// and reports the number of bytes inserted (always len(raw)).
func (b *ByteArray) InsertBytes(pos int, raw []byte) int {
	pos = clampPos(pos, len(b.data))
	grown := make([]byte, len(b.data)+len(raw))
	copy(grown, b.data[:pos])
	copy(grown[pos:], raw)
	copy(grown[pos+len(raw):], b.data[pos:])
	b.data = grown
	return len(raw)
}

// Erase removes up to length bytes starting at pos, clamping both the
// position and the length to the bounds of b. If length == Rest, Erase
// removes through the end of b.
func (b *ByteArray) Erase(pos, length int) {
	pos = clampPos(pos, len(b.data))
	n := clampLen(length, len(b.data)-pos)
	b.data = append(b.data[:pos], b.data[pos+n:]...)
}

// Substring returns a new ByteArray holding a copy of up to length bytes
// starting at pos, clamping both the position and the length to the bounds
// of b. If length == Rest, Substring returns everything from pos to the end.
func (b ByteArray) Substring(pos, length int) ByteArray {
	pos = clampPos(pos, len(b.data))
	n := clampLen(length, len(b.data)-pos)
	return New(b.data[pos : pos+n])
}

// Equal reports whether b and o hold the same bytes.
func (b ByteArray) Equal(o ByteArray) bool {
	if len(b.data) != len(o.data) {
		return false
	}
	for i, c := range b.data {
		if o.data[i] != c {
			return false
		}
	}
	return true
}

func clampPos(pos, size int) int {
	if pos < 0 {
		return 0
	}
	if pos > size {
		return size
	}
	return pos
}

func clampLen(length, avail int) int {
	if length == Rest || length > avail {
		return avail
	}
	if length < 0 {
		return 0
	}
	return length
}
