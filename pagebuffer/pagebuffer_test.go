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

package pagebuffer_test

import (
	"strings"
	"testing"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/pagebuffer"
)

func readAll(t *testing.T, b *pagebuffer.PageBuffer[attrs.Default]) string {
	t.Helper()
	at := b.First()
	defer at.Release()
	return string(b.Bytes(at, b.Size()))
}

// Scenario 3: page split on overflow.
func TestPageSplitOnOverflow(t *testing.T) {
	b := pagebuffer.New[attrs.Default](10)
	at := b.First()
	defer at.Release()

	b.InsertBytes(at, []byte("0123456789"), attrs.Default{Class: 1})
	n := b.InsertBytes(at, []byte("abcdefghij"), attrs.Default{Class: 2})
	if n != 10 {
		t.Fatalf("InsertBytes returned %d, want 10", n)
	}

	if got, want := b.PageCount(), 2; got != want {
		t.Fatalf("PageCount() = %d, want %d", got, want)
	}
	if got, want := b.Size(), 20; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	if got, want := readAll(t, b), "0123456789abcdefghij"; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}

	start := b.First()
	defer start.Release()
	b.Next(start, 10)
	got := string(b.Bytes(start, 10))
	if want := "abcdefghij"; got != want {
		t.Fatalf("read from byte 10 = %q, want %q", got, want)
	}
}

// Scenario 4: delete-to-empty keeps a sentinel.
func TestDeleteToEmptyKeepsSentinel(t *testing.T) {
	b := pagebuffer.New[attrs.Default](50)
	at := b.First()
	defer at.Release()
	b.InsertBytes(at, []byte("HELLO"), attrs.Default{})

	from := b.First()
	defer from.Release()
	to := b.Last()
	defer to.Release()
	b.DeleteBytes(from, to)

	if got, want := b.Size(), 0; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	if got, want := b.PageCount(), 1; got != want {
		t.Fatalf("PageCount() = %d, want %d", got, want)
	}
}

// Scenario 5: persistent iterator across replace (modeled as delete-block
// via a cross-page delete spanning the whole first page, which exercises
// the same invalid-but-readable handle rule at the page layer).
func TestPersistentCursorAcrossPageRemoval(t *testing.T) {
	b := pagebuffer.New[attrs.Default](10)
	at := b.First()
	defer at.Release()
	b.InsertBytes(at, []byte("0123456789"), attrs.Default{Class: 1})
	b.InsertBytes(at, []byte("abcdefghij"), attrs.Default{Class: 2})

	watcher := b.First()
	defer watcher.Release()

	first := b.First()
	defer first.Release()
	second := b.Clone(first)
	defer second.Release()
	b.NextBlock(second) // second now addresses the start of page 2's block

	cs := b.DeleteBytes(first, second)
	if got, want := string(cs.Bytes()), "0123456789"; got != want {
		t.Fatalf("ChangeSet bytes = %q, want %q", got, want)
	}

	if watcher.Valid() {
		t.Error("watcher.Valid() = true, want false (its page was removed)")
	}
	blk, ok := watcher.Block()
	if !ok {
		t.Fatal("watcher.Block() not ok")
	}
	if got, want := string(blk.Bytes()), "0123456789"; got != want {
		t.Fatalf("watcher still reads %q, want %q", got, want)
	}

	if got, want := readAll(t, b), "abcdefghij"; got != want {
		t.Fatalf("remaining content = %q, want %q", got, want)
	}
}

// Scenario 6: cross-page motion.
func TestCrossPageMotion(t *testing.T) {
	b := pagebuffer.New[attrs.Default](100)
	at := b.First()
	defer at.Release()
	for _, c := range []byte("ABCD") {
		b.InsertBytes(at, []byte(strings.Repeat(string(c), 100)), attrs.Default{})
	}
	if got, want := b.PageCount(), 4; got != want {
		t.Fatalf("PageCount() = %d, want %d", got, want)
	}

	it := b.First()
	defer it.Release()
	moved := b.Next(it, 155)
	if moved != 155 {
		t.Fatalf("Next moved = %d, want 155", moved)
	}
	got := string(b.Bytes(it, 4))
	if want := "BBBB"; got != want {
		t.Fatalf("read after Next(155) = %q, want %q", got, want)
	}

	back := b.Prev(it, 155)
	if back != 155 {
		t.Fatalf("Prev moved = %d, want 155", back)
	}
	got = string(b.Bytes(it, 4))
	if want := "AAAA"; got != want {
		t.Fatalf("read after Prev(155) = %q, want %q", got, want)
	}
}

func TestSizeMatchesSumOfBlocks(t *testing.T) {
	b := pagebuffer.New[attrs.Default](8)
	at := b.First()
	defer at.Release()
	b.InsertBytes(at, []byte("aaaaaaaaaaaaaaaaaaaa"), attrs.Default{Class: 1})
	b.InsertBytes(at, []byte("bbbbbbbbbbbbbbbbbbbb"), attrs.Default{Class: 2})
	if got, want := b.Size(), 40; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	if got, want := readAll(t, b), strings.Repeat("a", 20)+strings.Repeat("b", 20); got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
}

func TestDeleteSolePageKeepsSentinel(t *testing.T) {
	b := pagebuffer.New[attrs.Default](50)
	at := b.First()
	defer at.Release()
	b.InsertBytes(at, []byte("HELLO"), attrs.Default{})

	before := b.Size()
	start := b.First()
	cs := b.DeletePage(start)
	start.Release()
	if got, want := string(cs.Bytes()), "HELLO"; got != want {
		t.Fatalf("DeletePage changeset = %q, want %q", got, want)
	}
	if got, want := b.Size(), 0; got != want {
		t.Fatalf("Size() after DeletePage = %d, want %d", got, want)
	}
	if got, want := b.PageCount(), 1; got != want {
		t.Fatalf("PageCount() after DeletePage = %d, want %d", got, want)
	}
	_ = before
}
