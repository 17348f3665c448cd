package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/likesync/internal/shared"
)

// Mutator is the pair of playlist write endpoints used by [BatchMutator].
type Mutator interface {
	// InsertTracks inserts ids, in the given order, starting at position.
	InsertTracks(ctx context.Context, playlistID string, ids []string, position int) error
	// RemoveTracks removes every occurrence of each id.
	RemoveTracks(ctx context.Context, playlistID string, ids []string) error
}

// BatchFunc observes a completed batch: step of total for the given phase.
type BatchFunc func(phase Phase, step, total int)

// BatchMutator applies playlist edits in groups no larger than the API's per-call maximum.
type BatchMutator struct {
	mutator Mutator
	size    int
	onBatch BatchFunc
}

// NewBatchMutator creates a [BatchMutator] that sends at most size ids per call.
func NewBatchMutator(m Mutator, size int) (*BatchMutator, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mutator is nil", shared.ErrInvalidArgument)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", shared.ErrInvalidArgument, size)
	}
	return &BatchMutator{mutator: m, size: size}, nil
}

// OnBatch registers fn to be called after each successful call.
func (b *BatchMutator) OnBatch(fn BatchFunc) {
	b.onBatch = fn
}

func (b *BatchMutator) batches(n int) int {
	return (n + b.size - 1) / b.size
}

func (b *BatchMutator) notify(phase Phase, step, total int) {
	if b.onBatch != nil {
		b.onBatch(phase, step, total)
	}
}

// InsertAtHead inserts ids at the top of the playlist so that they end up in exactly the given order.
//
// Every call inserts at position 0, ahead of earlier batches. The ids are therefore reversed and chunked, and each
// chunk is flipped back before it is sent: the tail of ids goes in first and the head goes in last. The resulting
// order does not depend on the batch size. Empty input makes no calls. Returns the number of calls made.
func (b *BatchMutator) InsertAtHead(ctx context.Context, playlistID string, ids []string) (int, error) {
	reversed := slices.Clone(ids)
	slices.Reverse(reversed)

	total := b.batches(len(reversed))
	calls := 0
	for chunk := range slices.Chunk(reversed, b.size) {
		slices.Reverse(chunk)
		if err := b.mutator.InsertTracks(ctx, playlistID, chunk, 0); err != nil {
			return calls, fmt.Errorf("failed to insert batch %d of %d: %w", calls+1, total, err)
		}
		calls++
		b.notify(InsertTracks, calls, total)
	}
	return calls, nil
}

// RemoveAll removes every occurrence of each id from the playlist. Removal is by ID only, so a track present
// under a different ID than the one given stays in place. Returns the number of calls made.
func (b *BatchMutator) RemoveAll(ctx context.Context, playlistID string, ids []string) (int, error) {
	total := b.batches(len(ids))
	calls := 0
	for chunk := range slices.Chunk(ids, b.size) {
		if err := b.mutator.RemoveTracks(ctx, playlistID, chunk); err != nil {
			return calls, fmt.Errorf("failed to remove batch %d of %d: %w", calls+1, total, err)
		}
		calls++
		b.notify(RemoveTracks, calls, total)
	}
	return calls, nil
}
