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

package page_test

import (
	"testing"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/bytearray"
	"github.com/creachadair/pagebuf/page"
)

func newPage(t *testing.T) *page.Page[attrs.Default] {
	t.Helper()
	return page.New[attrs.Default](50)
}

// Scenario 1 from the data model: attribute split on insert.
func TestAttributeSplitOnInsert(t *testing.T) {
	p := newPage(t)
	at := p.First()
	defer at.Release()

	p.InsertBytes(at, []byte("AAAAABBBBB"), attrs.Default{Class: 1})
	if got, want := p.BlockCount(), 1; got != want {
		t.Fatalf("after first insert, BlockCount() = %d, want %d", got, want)
	}

	at2 := p.First()
	defer at2.Release()
	p.Next(at2, 5)
	n := p.InsertBytes(at2, []byte("XXXXX"), attrs.Default{Class: 2})
	if n != 5 {
		t.Fatalf("InsertBytes returned %d, want 5", n)
	}

	if got, want := p.BlockCount(), 3; got != want {
		t.Fatalf("BlockCount() = %d, want %d", got, want)
	}
	if got, want := p.Size(), 15; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}

	first := p.First()
	defer first.Release()
	got := string(p.Bytes(first, p.Size()))
	if want := "AAAAAXXXXXBBBBB"; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}

	// at2 should now address byte 10 (end of "XXXXX"): the 5 bytes of
	// "AAAAA" plus the 5 bytes just inserted.
	blk, ok := at2.Block()
	if !ok {
		t.Fatal("at2.Block() not ok")
	}
	if got, want := blk.Attribute(), (attrs.Default{Class: 2}); got != want {
		t.Fatalf("at2 attribute = %v, want %v", got, want)
	}
	if got, want := at2.Pos(), 5; got != want {
		t.Fatalf("at2.Pos() = %d, want %d (end of XXXXX block)", got, want)
	}
}

func TestInsertSameAttributeStaysOneBlock(t *testing.T) {
	p := newPage(t)
	at := p.First()
	defer at.Release()
	p.InsertBytes(at, []byte("hello"), attrs.Default{})
	p.InsertBytes(at, []byte(" world"), attrs.Default{})
	if got, want := p.BlockCount(), 1; got != want {
		t.Fatalf("BlockCount() = %d, want %d", got, want)
	}
	first := p.First()
	defer first.Release()
	if got, want := string(p.Bytes(first, p.Size())), "hello world"; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
}

func TestDeleteToEmptyKeepsSentinel(t *testing.T) {
	p := newPage(t)
	at := p.First()
	defer at.Release()
	p.InsertBytes(at, []byte("HELLO"), attrs.Default{})

	from := p.First()
	defer from.Release()
	to := p.Last()
	defer to.Release()
	cs := p.DeleteBytes(from, to)

	if got, want := string(cs.Bytes()), "HELLO"; got != want {
		t.Fatalf("removed bytes = %q, want %q", got, want)
	}
	if got, want := p.Size(), 0; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	if got, want := p.BlockCount(), 1; got != want {
		t.Fatalf("BlockCount() = %d, want %d", got, want)
	}
	if !p.IsEmptySentinel() {
		t.Fatal("page should be the empty sentinel")
	}
}

func TestCrossBlockDeleteChangeSet(t *testing.T) {
	p := newPage(t)
	at := p.First()
	defer at.Release()
	p.InsertBytes(at, []byte("AAAAABBBBBCCCCC"), attrs.Default{Class: 1})
	p.InsertBytes(at, []byte("DDDDD"), attrs.Default{Class: 2})

	from := p.First()
	defer from.Release()
	p.Next(from, 10)
	to := from.Clone(p.Registry())
	defer to.Release()
	p.Next(to, 10)

	cs := p.DeleteBytes(from, to)
	if got, want := cs.Size(), 10; got != want {
		t.Fatalf("ChangeSet.Size() = %d, want %d", got, want)
	}
	if got, want := string(cs.Bytes()), "CCCCCDDDDD"; got != want {
		t.Fatalf("removed bytes = %q, want %q", got, want)
	}

	first := p.First()
	defer first.Release()
	if got, want := string(p.Bytes(first, p.Size())), "AAAAABBBBB"; got != want {
		t.Fatalf("remaining content = %q, want %q", got, want)
	}
}

func TestPersistentHandleAcrossDeleteBlock(t *testing.T) {
	p := newPage(t)
	init := p.First()
	defer init.Release()
	p.InsertBytes(init, []byte("AAAAA"), attrs.Default{Class: 1})
	p.InsertBytes(init, []byte("BBBBB"), attrs.Default{Class: 2})

	// a addresses somewhere inside the first block.
	a := p.First()
	defer a.Release()
	p.Next(a, 2)

	first := p.First()
	defer first.Release()
	removed := p.DeleteBlock(first)
	if got, want := string(removed.Bytes()), "AAAAA"; got != want {
		t.Fatalf("removed = %q, want %q", got, want)
	}

	// a is now invalid, but its payload is still readable.
	if a.Valid() {
		t.Error("a.Valid() = true, want false")
	}
	blk, ok := a.Block()
	if !ok {
		t.Fatal("a.Block() not ok after removal")
	}
	if got, want := string(blk.Bytes()), "AAAAA"; got != want {
		t.Fatalf("a still reads %q, want %q", got, want)
	}
}

func TestInsertPastEndAppends(t *testing.T) {
	p := page.New[attrs.Default](5)
	at := p.First()
	defer at.Release()
	p.InsertBytes(at, []byte("ab"), attrs.Default{})
	p.Next(at, 100) // clamp to end
	p.InsertBytes(at, []byte("cd"), attrs.Default{})
	first := p.First()
	defer first.Release()
	if got, want := string(p.Bytes(first, p.Size())), "abcd"; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
}

func TestBlockDataCopyIsIndependent(t *testing.T) {
	b := page.NewBlock[attrs.Default](bytearray.New([]byte("xyz")), attrs.Default{})
	d := b.Data()
	d.AppendBytes([]byte("!"))
	if got, want := string(b.Bytes()), "xyz"; got != want {
		t.Fatalf("Data() aliased the block: got %q, want %q", got, want)
	}
}
