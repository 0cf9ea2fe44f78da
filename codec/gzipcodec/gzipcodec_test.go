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

package gzipcodec_test

import (
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/codec/gzipcodec"
)

type memFile struct {
	buf []byte
	pos int64
}

func (f *memFile) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = int64(len(f.buf)) + offset
	}
	return f.pos, nil
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := &memFile{}
	w := gzipcodec.New(f, gzip.BestCompression)
	if err := w.PrepareSave(ctx); err != nil {
		t.Fatalf("PrepareSave: %v", err)
	}
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)
	if _, err := w.WriteNextBlock(ctx, []byte(text), len(text), attrs.Default{Class: 7}); err != nil {
		t.Fatalf("WriteNextBlock: %v", err)
	}
	if err := w.FinalizeSave(ctx); err != nil {
		t.Fatalf("FinalizeSave: %v", err)
	}
	if len(f.buf) >= len(text) {
		t.Errorf("compressed size %d not smaller than plaintext %d", len(f.buf), len(text))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	r := gzipcodec.New(f, gzip.DefaultCompression)
	if err := r.PrepareLoad(ctx); err != nil {
		t.Fatalf("PrepareLoad: %v", err)
	}
	n, err := r.PeekNextBlock(ctx)
	if err != nil {
		t.Fatalf("PeekNextBlock: %v", err)
	}
	if n != len(text) {
		t.Fatalf("PeekNextBlock = %d, want %d", n, len(text))
	}
	dst := make([]byte, n)
	got, attr, err := r.ReadNextBlock(ctx, dst)
	if err != nil {
		t.Fatalf("ReadNextBlock: %v", err)
	}
	if string(dst[:got]) != text {
		t.Error("decompressed content did not round-trip")
	}
	if attr.Class != 7 {
		t.Errorf("attribute class = %d, want 7", attr.Class)
	}
}
