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

package rawcodec_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/codec/rawcodec"
)

// memFile is a minimal in-memory io.ReadWriteSeeker for codec tests.
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
	w := rawcodec.New(f)
	if err := w.PrepareSave(ctx); err != nil {
		t.Fatalf("PrepareSave: %v", err)
	}
	blocks := []struct {
		data  string
		class int
	}{
		{"hello", 1},
		{"world!", 2},
		{"", 0},
	}
	for _, b := range blocks {
		if _, err := w.WriteNextBlock(ctx, []byte(b.data), len(b.data), attrs.Default{Class: b.class}); err != nil {
			t.Fatalf("WriteNextBlock(%q): %v", b.data, err)
		}
	}
	if err := w.FinalizeSave(ctx); err != nil {
		t.Fatalf("FinalizeSave: %v", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	r := rawcodec.New(f)
	if err := r.PrepareLoad(ctx); err != nil {
		t.Fatalf("PrepareLoad: %v", err)
	}
	for _, want := range blocks {
		n, err := r.PeekNextBlock(ctx)
		if err != nil {
			t.Fatalf("PeekNextBlock: %v", err)
		}
		if n != len(want.data) {
			t.Fatalf("PeekNextBlock = %d, want %d", n, len(want.data))
		}
		dst := make([]byte, n)
		got, attr, err := r.ReadNextBlock(ctx, dst)
		if err != nil {
			t.Fatalf("ReadNextBlock: %v", err)
		}
		if string(dst[:got]) != want.data {
			t.Errorf("block content = %q, want %q", dst[:got], want.data)
		}
		if attr.Class != want.class {
			t.Errorf("attribute class = %d, want %d", attr.Class, want.class)
		}
	}
	if _, err := r.PeekNextBlock(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("PeekNextBlock at end = %v, want io.EOF wrapped", err)
	}
}
