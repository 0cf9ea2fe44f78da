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

// Package loader drives a codec.Codec in chunks to populate a PageBuffer
// from an encoded stream (Load) or drain a PageBuffer into one (Save),
// reporting progress after each chunk and allowing the caller to cancel
// between chunks, never in the middle of one.
//
// The PageBuffer and Codec passed to Load or Save are touched only by the
// single background goroutine each function starts; callers must not
// mutate either until the run's Wait returns. When a Store is supplied to
// Save, each encoded block is additionally mirrored to the store as a
// content-addressed blob through a small bounded worker pool, since those
// writes (unlike the sequential codec stream) are safe to perform
// concurrently with each other.
package loader

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/creachadair/atomicfile"
	"github.com/creachadair/msync"
	"github.com/creachadair/msync/trigger"
	"github.com/creachadair/taskgroup"
	"golang.org/x/crypto/blake2b"

	"github.com/creachadair/pagebuf/attrs"
	"github.com/creachadair/pagebuf/chunker"
	"github.com/creachadair/pagebuf/codec"
	"github.com/creachadair/pagebuf/pagebuffer"
	"github.com/creachadair/pagebuf/store"
)

// A Progress reports how much of a Load or Save has completed so far.
type Progress struct {
	BytesDone  int64
	BytesTotal int64 // -1 if the total is not known in advance (Load)
}

// Percent reports the completion percentage, or -1 if BytesTotal is unknown
// or zero.
func (p Progress) Percent() float64 {
	if p.BytesTotal <= 0 {
		return -1
	}
	return 100 * float64(p.BytesDone) / float64(p.BytesTotal)
}

// A Run tracks an in-progress Load or Save. Progress reports coalesce: a
// slow reader of Updates sees only the most recent report, never a
// backlog, mirroring how the teacher's write-behind store collapses
// repeated "buffer not empty" wakeups into a single flag.
type Run struct {
	ready *msync.Flag[any] // signaled (value unused) whenever latest changes
	done  *trigger.Cond    // signaled once, when the run finishes

	μ       sync.Mutex
	latest  Progress
	err     error
	stopped bool
}

// report records p as the most recent progress and wakes any Updates reader.
func (r *Run) report(p Progress) {
	r.μ.Lock()
	r.latest = p
	r.μ.Unlock()
	r.ready.Set(nil)
}

func (r *Run) snapshot() (Progress, bool) {
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.latest, r.stopped
}

// Updates returns a channel that receives the latest Progress whenever it
// changes. It is closed once the run finishes; drain it with range.
func (r *Run) Updates(ctx context.Context) <-chan Progress {
	out := make(chan Progress, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ready.Ready():
			case <-r.done.Ready():
			}
			p, stopped := r.snapshot()
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
			if stopped {
				return
			}
		}
	}()
	return out
}

// Wait blocks until the run completes and returns the error that ended it,
// nil on success.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.err
}

func (r *Run) finish(err error) {
	r.μ.Lock()
	r.err = err
	r.stopped = true
	r.μ.Unlock()
	r.done.Signal()
}

func newRun() *Run {
	return &Run{ready: msync.NewFlag[any](), done: trigger.New()}
}

// LoadOptions configures Load. A zero LoadOptions is ready to use.
type LoadOptions struct {
	// ChunkHint sizes the initial read buffer; it grows automatically if a
	// block is larger. Zero selects a reasonable default.
	ChunkHint int
}

func (o LoadOptions) chunkHint() int {
	if o.ChunkHint > 0 {
		return o.ChunkHint
	}
	return 4096
}

// Load drives c in chunks, appending each block it yields to the end of pb.
// It returns immediately with a Run the caller can poll via Updates or
// Wait; cancelling ctx stops the load before its next chunk, never in the
// middle of one.
func Load(ctx context.Context, pb *pagebuffer.PageBuffer[attrs.Default], c codec.Codec, opts LoadOptions) (*Run, error) {
	if err := c.PrepareLoad(ctx); err != nil {
		return nil, err
	}
	r := newRun()

	g := taskgroup.Go(func() error {
		defer c.FinalizeLoad(ctx)

		at := pb.Last()
		defer at.Release()

		buf := make([]byte, opts.chunkHint())
		var done int64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			n, err := c.PeekNextBlock(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			if cap(buf) < n {
				buf = make([]byte, n)
			}
			got, attr, err := c.ReadNextBlock(ctx, buf[:n])
			if err != nil {
				return err
			}
			pb.InsertBytes(at, buf[:got], attr)
			done += int64(got)
			r.report(Progress{BytesDone: done, BytesTotal: -1})
		}
	})

	go r.finish(g.Wait())
	return r, nil
}

// UnattributedOptions configures LoadUnattributed. A zero UnattributedOptions
// is ready to use.
type UnattributedOptions struct {
	// Split controls how the incoming stream is partitioned into the chunks
	// LoadUnattributed reads and inserts. A nil Split uses chunker's default
	// sizes and rolling hash.
	Split *chunker.SplitConfig

	// Attr is the attribute tag applied to every block inserted from the
	// stream. Callers wanting to distinguish this data from the rest of the
	// buffer should give it a dedicated tag.
	Attr attrs.Default
}

// LoadUnattributed appends the content of r to the end of pb, reading it in
// chunks cut by a content-defined chunker.Splitter rather than reading
// attributed blocks from a codec. It is meant for ingesting plain byte
// streams that carry no attribute or framing information of their own, such
// as a file imported from outside the buffer's own format. Every chunk is
// inserted with the same attribute, opts.Attr, so consecutive chunks merge
// into one block and pages are split by the buffer's target page size: the
// chunk boundaries are not kept as block or page boundaries.
//
// It follows the same cancellation, progress, and single-writer conventions
// as Load; BytesTotal in reported Progress is always -1, since the total
// size of r is not known in advance.
func LoadUnattributed(ctx context.Context, pb *pagebuffer.PageBuffer[attrs.Default], r io.Reader, opts UnattributedOptions) (*Run, error) {
	run := newRun()
	split := chunker.NewSplitter(r, opts.Split)

	g := taskgroup.Go(func() error {
		at := pb.Last()
		defer at.Release()

		var done int64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			block, err := split.Next()
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
			pb.InsertBytes(at, block, opts.Attr)
			done += int64(len(block))
			run.report(Progress{BytesDone: done, BytesTotal: -1})
		}
	})

	go run.finish(g.Wait())
	return run, nil
}

// SaveOptions configures Save. A zero SaveOptions is ready to use.
type SaveOptions struct {
	// Snapshot, if non-nil, receives a content-addressed copy of every
	// non-empty block written, mirrored concurrently with the encode
	// through a bounded worker pool. A failed mirror write fails the Save.
	Snapshot store.KV

	// SnapshotWorkers bounds the concurrency of Snapshot writes. Zero
	// selects a reasonable default.
	SnapshotWorkers int
}

func (o SaveOptions) workers() int {
	if o.SnapshotWorkers > 0 {
		return o.SnapshotWorkers
	}
	return 8
}

// Save drives c by writing every block of pb to it in order. It returns
// immediately with a Run, following the same cancellation and progress
// conventions as Load.
func Save(ctx context.Context, pb *pagebuffer.PageBuffer[attrs.Default], c codec.Codec, opts SaveOptions) (*Run, error) {
	if err := c.PrepareSave(ctx); err != nil {
		return nil, err
	}
	r := newRun()
	total := int64(pb.Size())

	g := taskgroup.Go(func() error {
		defer c.FinalizeSave(ctx)

		var mirror func(func() error)
		var mirrorWait func() error
		if opts.Snapshot != nil {
			g2, run := taskgroup.New(nil).Limit(opts.workers())
			mirror = run
			mirrorWait = g2.Wait
		}

		at := pb.First()
		defer at.Release()

		var done int64
		for {
			select {
			case <-ctx.Done():
				if mirrorWait != nil {
					mirrorWait()
				}
				return ctx.Err()
			default:
			}

			blk, ok := at.Block()
			if !ok {
				break
			}
			if !blk.IsEmpty() {
				data := append([]byte(nil), blk.Bytes()...)
				if _, err := c.WriteNextBlock(ctx, data, len(data), blk.Attribute()); err != nil {
					if mirrorWait != nil {
						mirrorWait()
					}
					return err
				}
				if mirror != nil {
					snap := opts.Snapshot
					mirror(func() error {
						err := snap.Put(ctx, store.PutOptions{Key: contentKey(data), Data: data})
						if store.IsKeyExists(err) {
							return nil
						}
						return err
					})
				}
				done += int64(len(data))
				r.report(Progress{BytesDone: done, BytesTotal: total})
			}

			if pb.NextBlock(at) < 0 {
				break
			}
		}

		if mirrorWait != nil {
			if err := mirrorWait(); err != nil {
				return err
			}
		}
		return nil
	})

	go r.finish(g.Wait())
	return r, nil
}

// SaveSnapshotFile encodes pb through c entirely in memory, then replaces
// path with the result in one atomic rename, so a crash or concurrent reader
// never observes a partially written snapshot. Unlike Save, this blocks
// until the whole encode completes; it is meant for occasional whole-buffer
// persistence by a host shell, not for streaming a large buffer to a codec
// backed by its own file.
func SaveSnapshotFile(ctx context.Context, pb *pagebuffer.PageBuffer[attrs.Default], newCodec func(io.ReadWriteSeeker) codec.Codec, path string, perm os.FileMode) error {
	var buf memBuffer
	c := newCodec(&buf)
	run, err := Save(ctx, pb, c, SaveOptions{})
	if err != nil {
		return err
	}
	if err := run.Wait(ctx); err != nil {
		return err
	}
	return atomicfile.WriteData(path, buf.data, perm)
}

// memBuffer is a minimal in-memory io.ReadWriteSeeker sized to hold the
// whole encoded stream before it is committed to disk in one atomic write.
type memBuffer struct {
	data []byte
	pos  int64
}

func (b *memBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *memBuffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *memBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.data)) + offset
	}
	return b.pos, nil
}

// contentKey derives a store key for data using the same blake2b-256
// content-address scheme as store.CASFromKV's default wrapper.
func contentKey(data []byte) string {
	h := blake2b.Sum256(data)
	return string(h[:])
}
