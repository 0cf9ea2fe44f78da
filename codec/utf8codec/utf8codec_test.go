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

package utf8codec_test

import (
	"context"
	"io"
	"testing"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/codec/utf8codec"
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

// TestWriteTrimsMidRuneCut verifies that a block cut in the middle of a
// multi-byte rune (here "café", where é is two bytes in UTF-8) is trimmed
// back to the preceding full rune, with the codec reporting the shorter
// length it actually consumed.
func TestWriteTrimsMidRuneCut(t *testing.T) {
	ctx := context.Background()
	f := &memFile{}
	w := utf8codec.New(f)
	if err := w.PrepareSave(ctx); err != nil {
		t.Fatalf("PrepareSave: %v", err)
	}

	text := []byte("café") // c, a, f, 0xc3, 0xa9
	n, err := w.WriteNextBlock(ctx, text, len(text)-1, attrs.Default{})
	if err != nil {
		t.Fatalf("WriteNextBlock: %v", err)
	}
	if want := len(text) - 2; n != want {
		t.Fatalf("WriteNextBlock consumed %d bytes, want %d (trimmed before the split rune)", n, want)
	}
	if err := w.FinalizeSave(ctx); err != nil {
		t.Fatalf("FinalizeSave: %v", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	r := utf8codec.New(f)
	if err := r.PrepareLoad(ctx); err != nil {
		t.Fatalf("PrepareLoad: %v", err)
	}
	size, err := r.PeekNextBlock(ctx)
	if err != nil {
		t.Fatalf("PeekNextBlock: %v", err)
	}
	dst := make([]byte, size)
	got, _, err := r.ReadNextBlock(ctx, dst)
	if err != nil {
		t.Fatalf("ReadNextBlock: %v", err)
	}
	if string(dst[:got]) != "caf" {
		t.Errorf("stored block = %q, want %q", dst[:got], "caf")
	}
}

func TestWriteKeepsCleanCutIntact(t *testing.T) {
	ctx := context.Background()
	f := &memFile{}
	w := utf8codec.New(f)
	if err := w.PrepareSave(ctx); err != nil {
		t.Fatalf("PrepareSave: %v", err)
	}
	text := []byte("hello")
	n, err := w.WriteNextBlock(ctx, text, len(text), attrs.Default{})
	if err != nil {
		t.Fatalf("WriteNextBlock: %v", err)
	}
	if n != len(text) {
		t.Errorf("WriteNextBlock consumed %d bytes, want %d (clean ASCII cut)", n, len(text))
	}
}
