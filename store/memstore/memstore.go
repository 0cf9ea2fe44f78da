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

// Package memstore implements the store.Store interface using in-memory
// dictionaries. It is intended for testing the loader against a store
// without touching a filesystem or network.
package memstore

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/creachadair/mds/stree"

	"github.com/creachadair/pagebuf/store"
)

// A Store implements store.Store using an in-memory dictionary for each
// keyspace. A zero value is ready for use, but must not be copied after its
// first use.
type Store struct {
	μ   sync.Mutex
	kvs map[string]store.KV
}

// New constructs a new, empty Store.
func New() *Store { return &Store{kvs: make(map[string]store.KV)} }

// KV implements part of store.Store. This implementation never errors.
func (s *Store) KV(_ context.Context, name string) (store.KV, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	kv, ok := s.kvs[name]
	if !ok {
		kv = NewKV()
		if s.kvs == nil {
			s.kvs = make(map[string]store.KV)
		}
		s.kvs[name] = kv
	}
	return kv, nil
}

// CAS implements part of store.Store. This implementation never errors.
func (s *Store) CAS(ctx context.Context, name string) (store.CAS, error) {
	return store.CASFromKVError(s.KV(ctx, name))
}

// Sub implements part of store.Store. This implementation never errors.
func (s *Store) Sub(context.Context, string) (store.Store, error) {
	return New(), nil
}

// Close implements store.Closer as a no-op.
func (*Store) Close(context.Context) error { return nil }

// KV implements the store.KV interface using an in-memory sorted tree. The
// contents of a KV are not persisted. All operations are safe for
// concurrent use by multiple goroutines.
type KV struct {
	μ sync.Mutex
	m *stree.Tree[entry]
}

type entry struct{ key, val string }

func compareEntries(a, b entry) int { return strings.Compare(a.key, b.key) }

// NewKV constructs a new, empty key-value namespace.
func NewKV() *KV { return &KV{m: stree.New(300, compareEntries)} }

func (s *KV) Get(_ context.Context, key string) ([]byte, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if e, ok := s.m.Get(entry{key: key}); ok {
		return []byte(e.val), nil
	}
	return nil, store.KeyNotFound(key)
}

func (s *KV) Has(_ context.Context, keys ...string) (store.KeySet, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	var have store.KeySet
	for _, key := range keys {
		if _, ok := s.m.Get(entry{key: key}); ok {
			have.Add(key)
		}
	}
	return have, nil
}

func (s *KV) Put(_ context.Context, opts store.PutOptions) error {
	s.μ.Lock()
	defer s.μ.Unlock()
	ent := entry{opts.Key, string(opts.Data)}
	if opts.Replace {
		s.m.Replace(ent)
	} else if !s.m.Add(ent) {
		return store.KeyExists(opts.Key)
	}
	return nil
}

func (s *KV) Delete(_ context.Context, key string) error {
	s.μ.Lock()
	defer s.μ.Unlock()
	if !s.m.Remove(entry{key: key}) {
		return store.KeyNotFound(key)
	}
	return nil
}

func (s *KV) List(_ context.Context, start string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.μ.Lock()
		defer s.μ.Unlock()
		for e := range s.m.InorderAfter(entry{key: start}) {
			if !yield(e.key, nil) {
				return
			}
		}
	}
}

func (s *KV) Len(context.Context) (int64, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	return int64(s.m.Len()), nil
}
