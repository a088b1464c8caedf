// Package sync implements the per-case upload operation: a background
// worker that pushes a case's current state to the remote store, retrying
// indefinitely on transient failure with a fixed backoff.
//
// One operation runs per case with outstanding changes. Operations never
// upload a stale snapshot and never race each other on the same case: the
// tracker hands out the current record with a revision number, and a
// commit only sticks when that revision is still current; otherwise the
// loop immediately uploads the newer state.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mfreire/go-rescue-board/internal/metrics"
	"github.com/mfreire/go-rescue-board/internal/remote"
)

// DefaultInterval is the fixed backoff between failed upload attempts.
const DefaultInterval = 30 * time.Second

// Tracker is the board-side surface an operation drives. All methods are
// called from the operation goroutine; the tracker serializes internally.
type Tracker interface {
	// Snapshot returns the case's current wire record, its revision, and
	// whether it has ever been uploaded. ok is false when the case is no
	// longer known, which ends the operation.
	Snapshot(id uuid.UUID) (rec remote.CaseRecord, rev uint64, uploaded, ok bool)

	// Committed records a successful upload of revision rev, applying the
	// server's copy where present. It returns true when the case mutated
	// again after the snapshot was taken, telling the operation to upload
	// once more.
	Committed(id uuid.UUID, rev uint64, srv *remote.CaseRecord) bool

	// UploadFailed records a transient failure. first is true only for the
	// first failure since the last success, so the operator warning fires
	// exactly once per outage.
	UploadFailed(id uuid.UUID, err error, first bool)

	// UploadRecovered records the first success after one or more failures.
	UploadRecovered(id uuid.UUID, failures int)

	// UploadDropped records a permanently rejected upload (malformed local
	// state). The operation ends without retrying.
	UploadDropped(id uuid.UUID, err error)
}

// Run drives uploads for the case with the given ID until the case leaves
// the board, the upload is permanently rejected, or ctx is canceled.
// Transient failures retry forever at the given interval; there is no
// retry limit by design.
func Run(ctx context.Context, t Tracker, store remote.Store, id uuid.UUID, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	tr := otel.Tracer("sync")
	failures := 0

	for {
		rec, rev, uploaded, ok := t.Snapshot(id)
		if !ok {
			return
		}

		srv, err := upload(ctx, tr, store, id, rec, uploaded)

		switch {
		case err == nil:
			metrics.Uploads.WithLabelValues("ok").Inc()
			if failures > 0 {
				t.UploadRecovered(id, failures)
				failures = 0
			}
			if !t.Committed(id, rev, srv) {
				return
			}
			// The case mutated while the upload was in flight; loop to
			// push the newer state immediately.

		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			// Cancellation is propagated, not recorded as failure.
			return

		case remote.IsInvalid(err):
			metrics.Uploads.WithLabelValues("dropped").Inc()
			log.Error().Err(err).Str("case_id", id.String()).Msg("upload rejected, local record malformed")
			t.UploadDropped(id, err)
			return

		default:
			metrics.Uploads.WithLabelValues("error").Inc()
			failures++
			t.UploadFailed(id, err, failures == 1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}
}

// upload performs one attempt. A create answered with "already exists" is
// success: the remote side made the record independently and the next
// update will converge it.
func upload(ctx context.Context, tr trace.Tracer, store remote.Store, id uuid.UUID, rec remote.CaseRecord, uploaded bool) (*remote.CaseRecord, error) {
	op := "create"
	if uploaded {
		op = "update"
	}
	ctx, span := tr.Start(ctx, "sync.upload",
		trace.WithAttributes(
			attribute.String("case.id", id.String()),
			attribute.String("sync.op", op),
		),
	)
	defer span.End()

	if uploaded {
		return store.UpdateCase(ctx, id, rec)
	}
	srv, err := store.CreateCase(ctx, rec)
	if remote.IsAlreadyExists(err) {
		return nil, nil
	}
	return srv, err
}
