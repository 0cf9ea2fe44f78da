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

// Package gzipcodec implements codec.Codec by gzip-compressing each block
// independently, matching the length-prefixed framing used by rawcodec but
// storing compressed bytes on the wire.
package gzipcodec

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/codec"
)

// Codec gzip-compresses each block independently. Construct one with New,
// which sets the stream and the compression level.
type Codec struct {
	level int
	rw    io.ReadWriteSeeker
	r     *bufio.Reader
	w     *bufio.Writer

	haveNext   bool
	compLen    int
	decodedLen int
	nextClass  int
	nextErr    error
}

// New returns a Codec using the given compress/gzip compression level
// (e.g. gzip.DefaultCompression, gzip.BestSpeed, gzip.BestCompression).
func New(rw io.ReadWriteSeeker, level int) *Codec {
	return &Codec{rw: rw, level: level}
}

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
	comp, err := binary.ReadUvarint(c.r)
	if err != nil {
		c.haveNext, c.nextErr = true, err
		return
	}
	decoded, err := binary.ReadUvarint(c.r)
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
	c.compLen, c.decodedLen, c.nextClass = int(comp), int(decoded), int(class)
	c.nextErr = nil
}

func (c *Codec) PeekNextBlock(context.Context) (int, error) {
	c.readHeader()
	if c.nextErr != nil {
		return 0, codec.Fail("PeekNextBlock", c.nextErr)
	}
	return c.decodedLen, nil
}

func (c *Codec) ReadNextBlock(ctx context.Context, dst []byte) (int, attrs.Default, error) {
	c.readHeader()
	if c.nextErr != nil {
		return 0, attrs.Default{}, codec.Fail("ReadNextBlock", c.nextErr)
	}
	buf := make([]byte, c.compLen)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return 0, attrs.Default{}, codec.Fail("ReadNextBlock", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return 0, attrs.Default{}, codec.Fail("ReadNextBlock", err)
	}
	defer zr.Close()
	n, err := io.ReadFull(zr, dst[:c.decodedLen])
	if err != nil {
		return 0, attrs.Default{}, codec.Fail("ReadNextBlock", err)
	}
	a := attrs.Default{Class: c.nextClass}
	c.haveNext = false
	return n, a, nil
}

func (c *Codec) WriteNextBlock(ctx context.Context, src []byte, n int, a attrs.Default) (int, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return 0, codec.Fail("WriteNextBlock", err)
	}
	if _, err := zw.Write(src[:n]); err != nil {
		return 0, codec.Fail("WriteNextBlock", err)
	}
	if err := zw.Close(); err != nil {
		return 0, codec.Fail("WriteNextBlock", err)
	}

	var hdr [3 * binary.MaxVarintLen64]byte
	k := binary.PutUvarint(hdr[:], uint64(buf.Len()))
	k += binary.PutUvarint(hdr[k:], uint64(n))
	k += binary.PutVarint(hdr[k:], int64(a.Class))
	if _, err := c.w.Write(hdr[:k]); err != nil {
		return 0, codec.Fail("WriteNextBlock", err)
	}
	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return 0, codec.Fail("WriteNextBlock", err)
	}
	return n, nil
}
