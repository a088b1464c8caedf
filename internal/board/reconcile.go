// Package board – reconciliation
//
// Full reconciliation converges the board with the remote store's open
// case list. It runs at startup and on operator demand, and is the only
// path that downloads remote records wholesale; in between, push
// notifications (OnRemoteCreated/Updated/Deleted) keep the board current
// record by record.
//
// Conflict policy is last-writer-wins on the record timestamp, whole
// record. A losing side's local edits are dropped, not merged.
package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mfreire/go-rescue-board/internal/domain"
	"github.com/mfreire/go-rescue-board/internal/metrics"
	"github.com/mfreire/go-rescue-board/internal/remote"
)

// SyncSummary aggregates one reconciliation run for the operator.
type SyncSummary struct {
	Downloaded    int // remote records absent locally, inserted
	Uploaded      int // local records absent remotely, re-uploaded
	UpdatedLocal  int // remote copy was newer, local overwritten
	UpdatedRemote int // local copy was newer or equal, pushed upstream
	Conflicts     int // display IDs that had to be reallocated
	Skipped       int // malformed remote records ignored
}

// String renders the one-line human-readable summary sent to the channel.
func (s SyncSummary) String() string {
	return fmt.Sprintf("Board sync: %d downloaded, %d re-uploaded, %d updated locally, %d pushed upstream, %d ID conflicts, %d skipped",
		s.Downloaded, s.Uploaded, s.UpdatedLocal, s.UpdatedRemote, s.Conflicts, s.Skipped)
}

// Sync reconciles the board against the remote store.
//
// In-flight sync operations are canceled and drained first so a stale
// upload cannot race the reconciliation's own writes. When the remote
// list cannot be fetched the board keeps serving local state and the
// error is returned; nothing is torn down.
func (b *Board) Sync(ctx context.Context) (*SyncSummary, error) {
	metrics.ReconcileRuns.Inc()
	ctx, span := otel.Tracer("board").Start(ctx, "board.reconcile")
	defer span.End()

	// Park new sync operations before draining the running ones so a
	// mutation landing mid-resync cannot upload pre-reconcile state over
	// a remote record the diff is about to judge newer.
	b.mu.Lock()
	b.reconciling = true
	b.syncPending = make(map[uuid.UUID]bool)
	b.mu.Unlock()

	b.cancelOps()

	records, err := b.store.ListOpenCases(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("reconciliation fetch failed, keeping local state")
		b.mu.Lock()
		b.releaseParkedLocked()
		b.mu.Unlock()
		return nil, err
	}

	b.mu.Lock()
	summary := &SyncSummary{}
	seen := make(map[uuid.UUID]bool, len(records))
	var push []*domain.Case

	for _, rec := range records {
		if verr := rec.Validate(); verr != nil {
			b.log.Error().Err(verr).Str("case_id", rec.ID.String()).Msg("skipping malformed remote record")
			summary.Skipped++
			continue
		}
		seen[rec.ID] = true

		local, ok := b.cases[rec.ID]
		switch {
		case !ok:
			b.downloadLocked(rec, summary)
		case rec.UpdatedAt.After(local.UpdatedAt):
			// Remote wins: overwrite local fields, keep identity and
			// display ID.
			rec.Apply(local)
			local.SyncState = domain.SyncSynced
			local.Uploaded = true
			summary.UpdatedLocal++
		default:
			// Local newer or equal: push local state upstream.
			local.Uploaded = true
			if local.SyncState == domain.SyncSynced {
				local.SyncState = domain.SyncPendingChanges
			}
			push = append(push, local)
			summary.UpdatedRemote++
		}
	}

	// Local records the remote side has no copy of get re-created.
	for _, c := range b.cases {
		if seen[c.ID] {
			continue
		}
		c.Uploaded = false
		c.SyncState = domain.SyncPendingCreation
		push = append(push, c)
		summary.Uploaded++
	}

	b.releaseParkedLocked()
	for _, c := range push {
		b.scheduleSyncLocked(c)
	}
	b.lastSummary = summary
	b.updateGaugesLocked()
	b.mu.Unlock()

	span.SetAttributes(
		attribute.Int("reconcile.downloaded", summary.Downloaded),
		attribute.Int("reconcile.conflicts", summary.Conflicts),
	)
	b.log.Info().
		Int("downloaded", summary.Downloaded).
		Int("uploaded", summary.Uploaded).
		Int("updated_local", summary.UpdatedLocal).
		Int("updated_remote", summary.UpdatedRemote).
		Int("conflicts", summary.Conflicts).
		Int("skipped", summary.Skipped).
		Msg("reconciliation complete")
	b.notifier.Notify(b.cfg.Channel, summary.String())
	return summary, nil
}

// releaseParkedLocked ends the reconciling window and starts operations
// for every case whose sync was parked while it was open. Callers hold
// b.mu.
func (b *Board) releaseParkedLocked() {
	b.reconciling = false
	parked := b.syncPending
	b.syncPending = nil
	for id := range parked {
		if c := b.caseAnywhereLocked(id); c != nil {
			b.scheduleSyncLocked(c)
		}
	}
}

// downloadLocked inserts a remote record the board has never seen,
// preferring the remote's own display ID when free.
func (b *Board) downloadLocked(rec remote.CaseRecord, summary *SyncSummary) {
	c := rec.ToCase()
	c.SyncState = domain.SyncSynced
	c.Uploaded = true

	pref := rec.DisplayID
	b.insertLocked(c, &pref)
	if c.DisplayID != rec.DisplayID {
		summary.Conflicts++
		metrics.ReconcileConflicts.Inc()
	}
	summary.Downloaded++
}

// LastSummary returns the most recent reconciliation summary, if any.
func (b *Board) LastSummary() *SyncSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastSummary == nil {
		return nil
	}
	out := *b.lastSummary
	return &out
}

// ---- remote push notifications ----

// OnRemoteCreated handles a push notification that a record appeared in
// the remote store.
func (b *Board) OnRemoteCreated(ctx context.Context, id uuid.UUID) error {
	return b.upsertFromRemote(ctx, id)
}

// OnRemoteUpdated handles a push notification that a remote record
// changed.
func (b *Board) OnRemoteUpdated(ctx context.Context, id uuid.UUID) error {
	return b.upsertFromRemote(ctx, id)
}

func (b *Board) upsertFromRemote(ctx context.Context, id uuid.UUID) error {
	rec, err := b.store.GetCase(ctx, id)
	if err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if local, ok := b.cases[id]; ok {
		if !rec.UpdatedAt.After(local.UpdatedAt) {
			// Local copy is newer or equal; the next upload wins.
			return nil
		}
		rec.Apply(local)
		local.SyncState = domain.SyncSynced
		local.Uploaded = true
		b.updateGaugesLocked()
		return nil
	}
	b.downloadLocked(*rec, &SyncSummary{})
	return nil
}

// OnRemoteDeleted handles a push notification that a record vanished from
// the remote store. The local copy is evicted without a final upload.
func (b *Board) OnRemoteDeleted(id uuid.UUID) {
	b.mu.Lock()
	c, ok := b.cases[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	if h, running := b.ops[id]; running {
		h.cancel()
	}
	delete(b.syncPending, id)
	c.Status = domain.StatusClosed
	c.Outcome = domain.OutcomePurge
	c.SyncState = domain.SyncSynced
	b.removeLocked(c)
	b.mu.Unlock()

	b.log.Info().Str("case_id", id.String()).Msg("case deleted remotely, evicted")
}
