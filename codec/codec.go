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

// Package codec defines the collaborator boundary between a PageBuffer and
// whatever serialized form its blocks are stored in. A Codec knows how to
// read and write a stream of discrete, attributed blocks; it has no
// knowledge of pages, handles, or the buffer core.
package codec

import (
	"context"
	"errors"
	"fmt"

	"github.com/creachadair/pagebuf/attrs"
)

// A Codec reads and writes a sequential stream of attributed byte blocks.
// Implementations need not be safe for concurrent use.
type Codec interface {
	// PeekNextBlock reports the length in bytes of the next block in the
	// stream without consuming it, or returns an error wrapping io.EOF if the
	// stream is exhausted.
	PeekNextBlock(ctx context.Context) (int, error)

	// ReadNextBlock reads the next block into dst, which must be at least as
	// long as the value reported by PeekNextBlock, and returns the number of
	// bytes read along with the block's attribute.
	ReadNextBlock(ctx context.Context, dst []byte) (int, attrs.Default, error)

	// WriteNextBlock appends a block of n bytes from src, tagged with a, to
	// the stream.
	WriteNextBlock(ctx context.Context, src []byte, n int, a attrs.Default) (int, error)

	// Seek repositions the stream to the given byte offset of decoded
	// content.
	Seek(ctx context.Context, offset int64) error

	// PrepareLoad is called once before the first ReadNextBlock.
	PrepareLoad(ctx context.Context) error

	// PrepareSave is called once before the first WriteNextBlock.
	PrepareSave(ctx context.Context) error

	// FinalizeLoad is called once after the last ReadNextBlock, whether or
	// not it reached the end of the stream.
	FinalizeLoad(ctx context.Context) error

	// FinalizeSave is called once after the last WriteNextBlock, to flush any
	// buffered output and settle trailing metadata.
	FinalizeSave(ctx context.Context) error
}

// A CodecError reports a failure originating in a Codec implementation,
// wrapping the underlying cause.
type CodecError struct {
	Op  string // the Codec method that failed
	Err error
}

func (e *CodecError) Error() string { return fmt.Sprintf("codec: %s: %v", e.Op, e.Err) }

func (e *CodecError) Unwrap() error { return e.Err }

// Fail constructs a CodecError attributing err to the named operation. It
// returns nil if err is nil.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CodecError{Op: op, Err: err}
}

// ErrClosed indicates an operation was attempted on a codec that has already
// been finalized.
var ErrClosed = errors.New("codec: stream already finalized")
