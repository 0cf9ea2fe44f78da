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

// Package utf8codec implements codec.Codec over the same length-prefixed
// framing as rawcodec, but never commits a block whose last byte lands in
// the middle of a multi-byte rune: WriteNextBlock trims such a block back to
// the preceding rune boundary and reports the shorter length actually
// written, so the caller knows to carry the remaining bytes into the next
// block. The core buffer itself stays encoding-agnostic; only this codec
// cares that its payload happens to be UTF-8 text.
package utf8codec

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/codec"
)

// Codec is a UTF-8-boundary-aware variant of rawcodec's framing.
type Codec struct {
	rw io.ReadWriteSeeker
	r  *bufio.Reader
	w  *bufio.Writer

	haveNext  bool
	nextLen   int
	nextClass int
	nextErr   error
}

// New returns a Codec that reads and writes blocks against rw.
func New(rw io.ReadWriteSeeker) *Codec { return &Codec{rw: rw} }

func (c *Codec) PrepareLoad(context.Context) error {
	c.r = bufio.NewReader(c.rw)
	return nil
}

func (c *Codec) PrepareSave(context.Context) error {
	c.w = bufio.NewWriter(c.rw)
	return nil
}

func (c *Codec) FinalizeLoad(context.Context) error { return nil }

func (c *Codec) FinalizeSave(context.Context) error {
	if c.w == nil {
		return nil
	}
	return codec.Fail("FinalizeSave", c.w.Flush())
}

func (c *Codec) Seek(ctx context.Context, offset int64) error {
	c.haveNext = false
	c.r, c.w = nil, nil
	if _, err := c.rw.Seek(offset, io.SeekStart); err != nil {
		return codec.Fail("Seek", err)
	}
	return nil
}

func (c *Codec) readHeader() {
	if c.haveNext {
		return
	}
	n, err := binary.ReadUvarint(c.r)
	if err != nil {
		c.haveNext, c.nextErr = true, err
		return
	}
	class, err := binary.ReadVarint(c.r)
	if err != nil {
		c.haveNext, c.nextErr = true, err
		return
	}
	c.haveNext = true
	c.nextLen, c.nextClass = int(n), int(class)
	c.nextErr = nil
}

func (c *Codec) PeekNextBlock(context.Context) (int, error) {
	c.readHeader()
	if c.nextErr != nil {
		return 0, codec.Fail("PeekNextBlock", c.nextErr)
	}
	return c.nextLen, nil
}

func (c *Codec) ReadNextBlock(ctx context.Context, dst []byte) (int, attrs.Default, error) {
	c.readHeader()
	if c.nextErr != nil {
		return 0, attrs.Default{}, codec.Fail("ReadNextBlock", c.nextErr)
	}
	n := c.nextLen
	if _, err := io.ReadFull(c.r, dst[:n]); err != nil {
		return 0, attrs.Default{}, codec.Fail("ReadNextBlock", err)
	}
	a := attrs.Default{Class: c.nextClass}
	c.haveNext = false
	return n, a, nil
}

// WriteNextBlock writes src[:n], first trimming n back to the last full
// rune boundary if the requested cut would otherwise split a multi-byte
// rune across two blocks.
func (c *Codec) WriteNextBlock(ctx context.Context, src []byte, n int, a attrs.Default) (int, error) {
	n = trimToRuneBoundary(src[:n])

	var hdr [2 * binary.MaxVarintLen64]byte
	k := binary.PutUvarint(hdr[:], uint64(n))
	k += binary.PutVarint(hdr[k:], int64(a.Class))
	if _, err := c.w.Write(hdr[:k]); err != nil {
		return 0, codec.Fail("WriteNextBlock", err)
	}
	if _, err := c.w.Write(src[:n]); err != nil {
		return 0, codec.Fail("WriteNextBlock", err)
	}
	return n, nil
}

// trimToRuneBoundary returns the longest prefix length of b that ends on a
// complete rune, walking back at most utf8.UTFMax bytes from the end. It
// never trims below zero, and leaves b untouched if it already ends cleanly
// (including when b holds non-UTF-8 bytes too short to diagnose).
func trimToRuneBoundary(b []byte) int {
	n := len(b)
	if n == 0 {
		return 0
	}
	for back := 0; back < utf8.UTFMax && back < n; back++ {
		i := n - 1 - back
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			continue // still inside a multi-byte sequence, or plain invalid
		}
		if i+size == n {
			return n // the tail rune (or trailing ASCII byte) is complete
		}
		return i + size // trim to the end of the last complete rune
	}
	return n
}
