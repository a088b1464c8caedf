// Package board – sync operation plumbing
//
// This file owns the lifecycle of per-case sync operations and implements
// the sync.Tracker surface they drive. At most one operation runs per
// case: a mutation while an upload is in flight only bumps the record's
// revision, and the running operation picks the newer state up on its
// next pass instead of racing it.
package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mfreire/go-rescue-board/internal/domain"
	"github.com/mfreire/go-rescue-board/internal/remote"
	syncop "github.com/mfreire/go-rescue-board/internal/sync"
)

// scheduleSyncLocked ensures a sync operation is running for the case.
// Callers hold b.mu.
func (b *Board) scheduleSyncLocked(c *domain.Case) {
	if b.reconciling {
		// A resync is diffing against the remote list; an operation
		// started now would upload pre-reconcile state over records the
		// diff may judge newer. Parked IDs start when the diff completes.
		b.syncPending[c.ID] = true
		return
	}
	if _, running := b.ops[c.ID]; running {
		// The revision bump is enough; the live operation re-snapshots.
		return
	}
	opCtx, cancel := context.WithCancel(b.ctx)
	h := &opHandle{cancel: cancel, done: make(chan struct{})}
	b.ops[c.ID] = h

	id := c.ID
	go func() {
		defer func() {
			b.mu.Lock()
			if b.ops[id] == h {
				delete(b.ops, id)
			}
			b.mu.Unlock()
			close(h.done)
		}()
		syncop.Run(opCtx, b, b.store, id, b.cfg.SyncRetryInterval, b.log)
	}()
}

// cancelOps cancels every running sync operation and waits for each to
// drain. Used by the board-wide resync so stale uploads cannot race the
// reconciliation's own writes.
func (b *Board) cancelOps() {
	b.mu.Lock()
	handles := make([]*opHandle, 0, len(b.ops))
	for _, h := range b.ops {
		handles = append(handles, h)
	}
	b.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
	}
}

// ---- sync.Tracker ----

// Snapshot returns the case's current wire record and revision. Closed
// cases still in the recently-closed cache remain snapshottable so their
// final state reaches the remote store.
func (b *Board) Snapshot(id uuid.UUID) (remote.CaseRecord, uint64, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.caseAnywhereLocked(id)
	if c == nil {
		return remote.CaseRecord{}, 0, false, false
	}
	return remote.RecordFromCase(c), c.Rev, c.Uploaded, true
}

// Committed marks revision rev as uploaded. It returns true when the
// record mutated after the snapshot, telling the operation to upload the
// newer state.
func (b *Board) Committed(id uuid.UUID, rev uint64, srv *remote.CaseRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.caseAnywhereLocked(id)
	if c == nil {
		return false
	}
	c.Uploaded = true
	if c.Rev != rev {
		return true
	}
	c.SyncState = domain.SyncSynced
	b.updateGaugesLocked()
	b.log.Debug().
		Str("case_id", id.String()).
		Uint64("rev", rev).
		Msg("case synced")
	return false
}

// UploadFailed flips the record into the error sync state. The operator
// warning goes out once per outage, on the first failure since the last
// success.
func (b *Board) UploadFailed(id uuid.UUID, err error, first bool) {
	b.mu.Lock()
	var display int
	if c := b.caseAnywhereLocked(id); c != nil {
		c.SyncState = domain.SyncError
		display = c.DisplayID
	}
	b.updateGaugesLocked()
	b.mu.Unlock()

	b.log.Warn().Err(err).Str("case_id", id.String()).Bool("first", first).Msg("case upload failed")
	if first {
		b.notifier.Notify(b.cfg.Channel,
			fmt.Sprintf("Case #%d: upload to the API is failing, retrying until it recovers (%v)", display, err))
	}
}

// UploadRecovered emits the one-time recovery notice after an outage.
func (b *Board) UploadRecovered(id uuid.UUID, failures int) {
	b.mu.Lock()
	var display int
	if c := b.caseAnywhereLocked(id); c != nil {
		display = c.DisplayID
	}
	b.mu.Unlock()

	b.log.Info().Str("case_id", id.String()).Int("failures", failures).Msg("case upload recovered")
	b.notifier.Notify(b.cfg.Channel,
		fmt.Sprintf("Case #%d: upload recovered after %d failed attempts", display, failures))
}

// UploadDropped records a permanently rejected upload. The record stays
// on the board in the error state; the operation does not retry.
func (b *Board) UploadDropped(id uuid.UUID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.caseAnywhereLocked(id); c != nil {
		c.SyncState = domain.SyncError
	}
	b.updateGaugesLocked()
}
