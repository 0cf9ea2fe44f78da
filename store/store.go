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

// Package store implements an interface and support code for persistent
// storage of opaque page snapshots, content-addressed by a hash of their
// encoded bytes. It is host-side plumbing for the loader: the buffer core
// itself defines no wire format and does not import this package.
//
// A Store represents a collection of disjoint named key-value namespaces.
// Keyspaces are either arbitrary (KV) or content-addressed (CAS); a CAS
// derives its keys from the content itself, which is what a loader wants
// when snapshotting identical pages only once.
package store

import (
	"context"
	"errors"
	"iter"

	"github.com/creachadair/mds/mapset"
	"golang.org/x/crypto/blake2b"
)

// A Store represents a collection of key-value namespaces ("keyspaces")
// identified by string labels. Each keyspace in a store is logically
// distinct; the keys from one space are independent of the keys in another.
//
// Implementations of this interface must be safe for concurrent use by
// multiple goroutines.
type Store interface {
	// KV returns a key space on the store.
	KV(ctx context.Context, name string) (KV, error)

	// CAS returns a content-addressed key space on the store. Implementations
	// that do not require special handling are encouraged to use CASFromKV to
	// derive a CAS from a KV.
	CAS(ctx context.Context, name string) (CAS, error)

	// Sub returns a new Store subordinate to the receiver (a "substore").
	Sub(ctx context.Context, name string) (Store, error)
}

// Closer is an extension interface representing the ability to close and
// release resources claimed by a storage component.
type Closer interface {
	Close(context.Context) error
}

// StoreCloser combines a Store with a Close method.
type StoreCloser interface {
	Store
	Closer
}

// KVCore is the common interface shared by implementations of a key-value
// namespace; it is included by reference in KV and CAS.
type KVCore interface {
	// Get fetches the contents of a blob from the store. If the key is not
	// found, Get reports ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Has reports which of the specified keys are present in the store.
	Has(ctx context.Context, keys ...string) (KeySet, error)

	// Delete atomically removes a blob from the store. If the key is not
	// found, Delete reports ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// List returns an iterator over each key in the store greater than or
	// equal to start, in lexicographic order.
	List(ctx context.Context, start string) iter.Seq2[string, error]

	// Len reports the number of keys currently in the store.
	Len(ctx context.Context) (int64, error)
}

// A KV represents a mutable set of key-value pairs identified by a
// caller-chosen opaque string key.
//
// Implementations of this interface must be safe for concurrent use by
// multiple goroutines.
type KV interface {
	KVCore

	// Put writes a blob to the store. If the key already exists and
	// opts.Replace is true, the existing value is replaced without error;
	// otherwise Put reports ErrKeyExists.
	Put(ctx context.Context, opts PutOptions) error
}

// CAS represents a mutable set of content-addressed key-value pairs.
type CAS interface {
	KVCore

	// CASPut writes data to a content-addressed blob and returns its key.
	// The target key is returned even in case of error.
	CASPut(ctx context.Context, data []byte) (string, error)

	// CASKey returns the content address of data without modifying the
	// store. It is the same value CASPut would assign to data.
	CASKey(ctx context.Context, data []byte) string
}

// PutOptions regulate the behavior of the Put method of a KV implementation.
type PutOptions struct {
	Key     string // the key to associate with the data
	Data    []byte // the data to write
	Replace bool   // whether to replace an existing value for this key
}

// CASFromKV converts a KV into a CAS. If the concrete type of kv already
// implements CAS, it is returned as-is; otherwise it is wrapped in an
// implementation that computes content addresses using a blake2b digest.
func CASFromKV(kv KV) CAS {
	if cas, ok := kv.(CAS); ok {
		return cas
	}
	return hashCAS{kv}
}

// CASFromKVError converts a KV into a CAS, combining an error check with a
// call to CASFromKV for use in storage implementations.
func CASFromKVError(kv KV, err error) (CAS, error) {
	if err != nil {
		return nil, err
	}
	return CASFromKV(kv), nil
}

var (
	// ErrKeyExists is reported by Put when writing a key that already exists.
	ErrKeyExists = errors.New("key already exists")

	// ErrKeyNotFound is reported by Get or Delete for a missing key.
	ErrKeyNotFound = errors.New("key not found")
)

// IsKeyNotFound reports whether err is or wraps ErrKeyNotFound.
func IsKeyNotFound(err error) bool { return err != nil && errors.Is(err, ErrKeyNotFound) }

// IsKeyExists reports whether err is or wraps ErrKeyExists.
func IsKeyExists(err error) bool { return err != nil && errors.Is(err, ErrKeyExists) }

// KeyError is the concrete type of errors involving a store key.
type KeyError struct {
	Err error  // the underlying error
	Key string // the key implicated by the error
}

func (k *KeyError) Error() string { return k.Err.Error() }
func (k *KeyError) Unwrap() error { return k.Err }

// KeyNotFound returns an ErrKeyNotFound error reporting that key was not
// found. The concrete type is *KeyError.
func KeyNotFound(key string) error { return &KeyError{Key: key, Err: ErrKeyNotFound} }

// KeyExists returns an ErrKeyExists error reporting that key exists.
// The concrete type is *KeyError.
func KeyExists(key string) error { return &KeyError{Key: key, Err: ErrKeyExists} }

// KeySet represents a set of keys.
type KeySet = mapset.Set[string]

// hashCAS is a content-addressable wrapper adding the CAS methods to a
// delegated KV.
type hashCAS struct{ KV }

var hash = blake2b.Sum256

func (c hashCAS) key(data []byte) string {
	h := hash(data)
	return string(h[:])
}

// CASPut writes data to a content-addressed blob and returns its key.
func (c hashCAS) CASPut(ctx context.Context, data []byte) (string, error) {
	key := c.key(data)

	if st, err := c.Has(ctx, key); err == nil && st.Has(key) {
		return key, nil
	}
	err := c.Put(ctx, PutOptions{Key: key, Data: data, Replace: false})
	if IsKeyExists(err) {
		err = nil
	}
	return key, err
}

// CASKey constructs the content address for the specified data.
func (c hashCAS) CASKey(_ context.Context, data []byte) string { return c.key(data) }

// SyncKeys reports which of the given keys are not present in ks. If all the
// keys are present, SyncKeys returns an empty KeySet.
func SyncKeys(ctx context.Context, ks KVCore, keys []string) (KeySet, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	have, err := ks.Has(ctx, keys...)
	if err != nil {
		return nil, err
	}
	var missing KeySet
	for _, key := range keys {
		if !have.Has(key) {
			missing.Add(key)
		}
	}
	return missing, nil
}
