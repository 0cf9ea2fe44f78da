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

// Package rawcodec implements codec.Codec over an uncompressed stream of
// length-and-attribute-prefixed blocks. It is the simplest codec in this
// module; utf8codec uses the same framing.
package rawcodec

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/codec"
)

// Each block is encoded as:
//
//	uvarint  byte length of content
//	varint   attribute class (attrs.Default.Class)
//	[]byte   content, exactly length bytes

// Codec is a codec.Codec that reads and writes blocks without compression.
// A Codec is not safe for concurrent use.
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

func (c *Codec) PrepareLoad(ctx context.Context) error {
	c.r = bufio.NewReader(c.rw)
	return nil
}

func (c *Codec) PrepareSave(ctx context.Context) error {
	c.w = bufio.NewWriter(c.rw)
	return nil
}

func (c *Codec) FinalizeLoad(ctx context.Context) error { return nil }

func (c *Codec) FinalizeSave(ctx context.Context) error {
	if c.w == nil {
		return nil
	}
	return codec.Fail("FinalizeSave", c.w.Flush())
}

func (c *Codec) Seek(ctx context.Context, offset int64) error {
	c.haveNext = false
	c.r = nil
	c.w = nil
	if _, err := c.rw.Seek(offset, io.SeekStart); err != nil {
		return codec.Fail("Seek", err)
	}
	return nil
}

// readHeader reads and caches the length+class prefix of the next block, if
// it has not already been cached by a prior Peek.
func (c *Codec) readHeader() {
	if c.haveNext {
		return
	}
	n, err := binary.ReadUvarint(c.r)
	if err != nil {
		c.haveNext = true
		c.nextErr = err
		return
	}
	class, err := binary.ReadVarint(c.r)
	if err != nil {
		c.haveNext = true
		c.nextErr = err
		return
	}
	c.haveNext = true
	c.nextLen = int(n)
	c.nextClass = int(class)
	c.nextErr = nil
}

func (c *Codec) PeekNextBlock(ctx context.Context) (int, error) {
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

func (c *Codec) WriteNextBlock(ctx context.Context, src []byte, n int, a attrs.Default) (int, error) {
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
