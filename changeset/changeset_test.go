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

package changeset_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/changeset"
)

func TestAppendAndBytes(t *testing.T) {
	cs := changeset.New[attrs.Default]()
	cs.Append([]byte("abc"), attrs.Default{Class: 1})
	cs.Append([]byte("def"), attrs.Default{Class: 2})
	if got, want := cs.Size(), 6; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	if got, want := string(cs.Bytes()), "abcdef"; got != want {
		t.Fatalf("Bytes() = %q, want %q", got, want)
	}
}

func TestConcatPreservesOrder(t *testing.T) {
	a := changeset.New[attrs.Default]()
	a.Append([]byte("one"), attrs.Default{})
	b := changeset.New[attrs.Default]()
	b.Append([]byte("two"), attrs.Default{})
	a.Concat(b)
	if got, want := string(a.Bytes()), "onetwo"; got != want {
		t.Fatalf("Bytes() after Concat = %q, want %q", got, want)
	}
}

func TestChecksumStableForSameBytes(t *testing.T) {
	a := changeset.New[attrs.Default]()
	a.Append([]byte("hello"), attrs.Default{})
	b := changeset.New[attrs.Default]()
	b.Append([]byte("hel"), attrs.Default{})
	b.Append([]byte("lo"), attrs.Default{})
	if a.Checksum() != b.Checksum() {
		t.Error("Checksum differs for the same concatenated bytes split across entries")
	}
}

func TestEmptyAppendIsNoop(t *testing.T) {
	cs := changeset.New[attrs.Default]()
	cs.Append(nil, attrs.Default{})
	if got, want := len(cs.Entries), 0; got != want {
		t.Fatalf("len(Entries) = %d, want %d", got, want)
	}
}

func TestConcatEntryOrder(t *testing.T) {
	a := changeset.New[attrs.Default]()
	a.Append([]byte("AAA"), attrs.Default{Class: 1})
	b := changeset.New[attrs.Default]()
	b.Append([]byte("BBB"), attrs.Default{Class: 2})
	b.Append([]byte("CCC"), attrs.Default{Class: 3})
	a.Concat(b)

	want := []changeset.Entry[attrs.Default]{
		{Bytes: []byte("AAA"), Attr: attrs.Default{Class: 1}},
		{Bytes: []byte("BBB"), Attr: attrs.Default{Class: 2}},
		{Bytes: []byte("CCC"), Attr: attrs.Default{Class: 3}},
	}
	if diff := cmp.Diff(want, a.Entries); diff != "" {
		t.Errorf("Entries after Concat (-want +got):\n%s", diff)
	}
}
