// Package board implements the rescue board: the single-writer registry
// that owns every active case, allocates display IDs, applies assignment
// results, schedules per-case sync operations, and reconciles local state
// against the remote store.
//
// Concurrency model: one mutex serializes every read and mutation of the
// case collection, the allocator and the recently-closed cache. The lock
// is never held across a remote call or an outbound notification; sync
// operations and timers run as independent goroutines and re-enter the
// board through locked methods.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mfreire/go-rescue-board/internal/assign"
	"github.com/mfreire/go-rescue-board/internal/config"
	"github.com/mfreire/go-rescue-board/internal/domain"
	"github.com/mfreire/go-rescue-board/internal/ident"
	"github.com/mfreire/go-rescue-board/internal/metrics"
	"github.com/mfreire/go-rescue-board/internal/remote"
)

// Board-level errors.
var (
	// ErrCaseNotFound indicates the display ID or persistent ID does not
	// resolve to a known case.
	ErrCaseNotFound = errors.New("case not found")

	// ErrClientAlreadyHasCase is returned when intake would open a second
	// case for a client that already has one on the board.
	ErrClientAlreadyHasCase = errors.New("client already has an active case")

	// ErrRatNotAssigned indicates a rat-level operation referenced a rat
	// that is not on the case.
	ErrRatNotAssigned = errors.New("rat is not assigned to this case")
)

// Notifier delivers operator-visible notices to the rescue channel.
// Implementations are fire-and-forget and must not block indefinitely.
type Notifier interface {
	Notify(target, text string)
	NotifyUrgent(target, text string)
}

// SystemResolver corrects and confirms star-system names. Check is
// idempotent and side-effect free.
type SystemResolver interface {
	Check(ctx context.Context, name string) (domain.StarSystem, error)
}

// SystemResolverFunc adapts a function to the SystemResolver interface.
type SystemResolverFunc func(ctx context.Context, name string) (domain.StarSystem, error)

// Check calls f.
func (f SystemResolverFunc) Check(ctx context.Context, name string) (domain.StarSystem, error) {
	return f(ctx, name)
}

// Archiver persists cases that leave the active board.
type Archiver interface {
	Archive(ctx context.Context, c *domain.Case) error
}

// Options bundles the board's collaborators and tuning.
type Options struct {
	Store    remote.Store
	Notifier Notifier
	Systems  SystemResolver // optional
	Archive  Archiver       // optional
	Config   config.BoardConfig
}

// Signal is the structured form of an inbound help request, already
// parsed by the chat layer.
type Signal struct {
	Client   string
	Nick     string
	System   string
	Locale   string
	Platform domain.Platform
	CodeRed  bool
}

// opHandle tracks one running sync operation so a board-wide resync can
// cancel it and wait for it to drain.
type opHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Board is the single-writer registry of active cases.
type Board struct {
	mu        stdsync.Mutex
	cases     map[uuid.UUID]*domain.Case
	byDisplay map[int]uuid.UUID

	// recent holds cases evicted from the active set, oldest first,
	// bounded by cfg.RecentClosedSize. It serves reopen/undo and the
	// final closed-state upload.
	recent   []*domain.Case
	reminded map[uuid.UUID]bool
	silenced map[uuid.UUID]bool

	alloc  *ident.Allocator
	engine *assign.Engine

	store    remote.Store
	notifier Notifier
	systems  SystemResolver
	archiver Archiver
	cfg      config.BoardConfig
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ops    map[uuid.UUID]*opHandle
	timers map[uuid.UUID]*time.Timer
	wg     stdsync.WaitGroup

	// reconciling parks new sync operations while a board-wide resync is
	// diffing against the remote list; parked case IDs collect in
	// syncPending and start once the diff completes.
	reconciling bool
	syncPending map[uuid.UUID]bool

	lastSummary *SyncSummary
}

// New builds a board. Call Stop when done to drain sync operations and
// timers.
func New(opts Options) *Board {
	ctx, cancel := context.WithCancel(context.Background())
	return &Board{
		cases:     make(map[uuid.UUID]*domain.Case),
		byDisplay: make(map[int]uuid.UUID),
		reminded:  make(map[uuid.UUID]bool),
		silenced:  make(map[uuid.UUID]bool),
		alloc:     ident.NewAllocator(opts.Config.IDRecencySize),
		engine:    assign.NewEngine(opts.Config.Blacklist),
		store:     opts.Store,
		notifier:  opts.Notifier,
		systems:   opts.Systems,
		archiver:  opts.Archive,
		cfg:       opts.Config,
		log:       log.With().Str("component", "board").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		ops:       make(map[uuid.UUID]*opHandle),
		timers:    make(map[uuid.UUID]*time.Timer),
	}
}

// Stop cancels every in-flight sync operation and timer and waits for
// background work to drain.
func (b *Board) Stop() {
	b.cancel()

	b.mu.Lock()
	handles := make([]*opHandle, 0, len(b.ops))
	for _, h := range b.ops {
		handles = append(handles, h)
	}
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
	}
	b.wg.Wait()
}

// ---- intake ----

// CreateFromSignal opens a case for an inbound distress signal.
func (b *Board) CreateFromSignal(ctx context.Context, sig Signal) (*domain.Case, error) {
	return b.create(ctx, sig, domain.OriginSignal)
}

// CreateFromAnnouncer opens a case announced by an authenticated announcer.
func (b *Board) CreateFromAnnouncer(ctx context.Context, sig Signal) (*domain.Case, error) {
	return b.create(ctx, sig, domain.OriginAnnouncer)
}

// CreateManual opens a case inserted by an operator.
func (b *Board) CreateManual(ctx context.Context, sig Signal) (*domain.Case, error) {
	return b.create(ctx, sig, domain.OriginManual)
}

func (b *Board) create(ctx context.Context, sig Signal, origin domain.Origin) (*domain.Case, error) {
	sys := b.resolveSystem(ctx, sig.System)

	c := domain.NewCase(sig.Client, sig.Nick, origin)
	c.Platform = sig.Platform
	c.CodeRed = sig.CodeRed
	c.System = sys
	c.SetLocale(sig.Locale)

	b.mu.Lock()
	if existing := b.findByClientLocked(c.Client); existing != nil {
		b.mu.Unlock()
		return existing, ErrClientAlreadyHasCase
	}
	b.insertLocked(c, nil)
	b.scheduleSyncLocked(c)
	b.startPrepTimerLocked(c)
	display, codeRed := c.DisplayID, c.CodeRed
	b.mu.Unlock()

	b.log.Info().
		Str("case_id", c.ID.String()).
		Int("display_id", display).
		Str("client", c.Client).
		Str("origin", string(origin)).
		Bool("code_red", codeRed).
		Msg("case created")
	b.announce(codeRed, fmt.Sprintf("Case #%d opened for %s (%s)%s",
		display, c.Client, sys.Name, codeRedSuffix(codeRed)))
	return c, nil
}

// resolveSystem runs the (idempotent) name correction outside the lock.
// Resolution failure downgrades to the raw, unconfirmed name.
func (b *Board) resolveSystem(ctx context.Context, name string) domain.StarSystem {
	sys := domain.StarSystem{Name: domain.NormalizeName(name)}
	if b.systems == nil || sys.Name == "" {
		return sys
	}
	corrected, err := b.systems.Check(ctx, sys.Name)
	if err != nil {
		b.log.Debug().Err(err).Str("system", sys.Name).Msg("system lookup failed")
		return sys
	}
	return corrected
}

// ---- lookups ----

// byDisplayLocked resolves a display ID to its case.
func (b *Board) byDisplayLocked(display int) (*domain.Case, bool) {
	id, ok := b.byDisplay[display]
	if !ok {
		return nil, false
	}
	c, ok := b.cases[id]
	return c, ok
}

// caseAnywhereLocked finds a case on the active board or in the
// recently-closed cache. Sync operations use it so the final closed-state
// upload can still read its record.
func (b *Board) caseAnywhereLocked(id uuid.UUID) *domain.Case {
	if c, ok := b.cases[id]; ok {
		return c
	}
	for _, c := range b.recent {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (b *Board) findByClientLocked(client string) *domain.Case {
	for _, c := range b.cases {
		if strings.EqualFold(c.Client, client) {
			return c
		}
	}
	return nil
}

// ---- registry plumbing ----

// insertLocked allocates a display ID (honoring preferred when free) and
// registers the case.
func (b *Board) insertLocked(c *domain.Case, preferred *int) {
	c.DisplayID = b.alloc.Allocate(b.activeLocked(), preferred, nil)
	b.cases[c.ID] = c
	b.byDisplay[c.DisplayID] = c.ID
	b.updateGaugesLocked()
}

// removeLocked evicts the case from the active set: maps, allocator
// recency, timers, and the bounded recently-closed cache. The silenced
// flag survives into the cache so the paperwork sweep honors it; both
// flags are dropped only once the case falls out of the cache.
func (b *Board) removeLocked(c *domain.Case) {
	delete(b.cases, c.ID)
	delete(b.byDisplay, c.DisplayID)
	b.alloc.Release(c.DisplayID)
	b.cancelTimersLocked(c.ID)

	b.recent = append(b.recent, c)
	if max := b.cfg.RecentClosedSize; max > 0 && len(b.recent) > max {
		evicted := b.recent[0]
		b.recent = b.recent[1:]
		delete(b.reminded, evicted.ID)
		delete(b.silenced, evicted.ID)
	}
	b.updateGaugesLocked()
}

func (b *Board) activeLocked() []ident.ActiveCase {
	out := make([]ident.ActiveCase, 0, len(b.cases))
	for _, c := range b.cases {
		out = append(out, ident.ActiveCase{ID: c.DisplayID, CodeRed: c.CodeRed})
	}
	return out
}

func (b *Board) updateGaugesLocked() {
	metrics.ActiveCases.Set(float64(len(b.cases)))
	unsynced := 0
	for _, c := range b.cases {
		if c.SyncState != domain.SyncSynced || !c.Uploaded {
			unsynced++
		}
	}
	metrics.UnsyncedCases.Set(float64(unsynced))
}

// ---- mutations ----

// AddQuote appends a log entry to the case.
func (b *Board) AddQuote(display int, author, text string) error {
	return b.mutate(display, func(c *domain.Case) error {
		c.AddQuote(author, text)
		return nil
	})
}

// SetCodeRed flips the emergency flag.
func (b *Board) SetCodeRed(display int, cr bool) error {
	return b.mutate(display, func(c *domain.Case) error {
		c.SetCodeRed(cr)
		return nil
	})
}

// SetPlatform records the client's platform.
func (b *Board) SetPlatform(display int, p domain.Platform) error {
	return b.mutate(display, func(c *domain.Case) error {
		c.SetPlatform(p)
		return nil
	})
}

// SetTitle sets the case title.
func (b *Board) SetTitle(display int, title string) error {
	return b.mutate(display, func(c *domain.Case) error {
		c.SetTitle(title)
		return nil
	})
}

// SetNotes replaces the case notes.
func (b *Board) SetNotes(display int, notes string) error {
	return b.mutate(display, func(c *domain.Case) error {
		c.SetNotes(notes)
		return nil
	})
}

// SetLocale records the client language.
func (b *Board) SetLocale(display int, tag string) error {
	return b.mutate(display, func(c *domain.Case) error {
		c.SetLocale(tag)
		return nil
	})
}

// SetSystem corrects the star system through the resolver and stores the
// result.
func (b *Board) SetSystem(ctx context.Context, display int, name string) error {
	sys := b.resolveSystem(ctx, name)
	return b.mutate(display, func(c *domain.Case) error {
		c.SetSystem(sys)
		return nil
	})
}

// MarkInactive parks an open case in the Inactive holding state.
func (b *Board) MarkInactive(display int) error {
	return b.mutate(display, func(c *domain.Case) error {
		return c.SetStatus(domain.StatusInactive)
	})
}

// Queue parks an open case in the Queued holding state.
func (b *Board) Queue(display int) error {
	return b.mutate(display, func(c *domain.Case) error {
		return c.SetStatus(domain.StatusQueued)
	})
}

// Reactivate returns a held case to Open.
func (b *Board) Reactivate(display int) error {
	return b.mutate(display, func(c *domain.Case) error {
		return c.SetStatus(domain.StatusOpen)
	})
}

// AddJumpCall records count outstanding jump calls for an assigned rat.
func (b *Board) AddJumpCall(display int, ratName string, count int) error {
	return b.mutate(display, func(c *domain.Case) error {
		rat := c.RatByName(ratName)
		if rat == nil {
			return ErrRatNotAssigned
		}
		rat.AddJumpCall(c.ID, count)
		c.Touch()
		return nil
	})
}

// mutate runs fn on the case under the lock and schedules an upload when
// fn succeeds and left the record with local changes.
func (b *Board) mutate(display int, fn func(*domain.Case) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.byDisplayLocked(display)
	if !ok {
		return ErrCaseNotFound
	}
	if err := fn(c); err != nil {
		return err
	}
	b.scheduleSyncLocked(c)
	b.updateGaugesLocked()
	return nil
}

// ---- assignment ----

// Assign validates and applies a rat-to-case assignment attempt.
func (b *Board) Assign(display int, name string, roster assign.Roster, force bool) (assign.Result, error) {
	b.mu.Lock()
	c, ok := b.byDisplayLocked(display)
	if !ok {
		b.mu.Unlock()
		return assign.Result{}, ErrCaseNotFound
	}
	res, err := b.engine.Assign(c, name, roster, force)
	if err != nil {
		b.mu.Unlock()
		metrics.Assignments.WithLabelValues("rejected").Inc()
		return res, err
	}
	metrics.Assignments.WithLabelValues(outcomeLabel(res.Outcome)).Inc()
	if res.Outcome == assign.Assigned || res.Outcome == assign.UnidentifiedAdded {
		b.scheduleSyncLocked(c)
	}
	b.mu.Unlock()
	return res, nil
}

// Unassign removes a rat or provisional name from the case.
func (b *Board) Unassign(display int, name string, roster assign.Roster) (assign.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.byDisplayLocked(display)
	if !ok {
		return assign.Result{}, ErrCaseNotFound
	}
	res, err := b.engine.Unassign(c, name, roster)
	if err != nil {
		return res, err
	}
	b.scheduleSyncLocked(c)
	return res, nil
}

func outcomeLabel(o assign.Outcome) string {
	switch o {
	case assign.Assigned:
		return "assigned"
	case assign.UnidentifiedAdded:
		return "unidentified"
	case assign.Duplicate, assign.UnidentifiedDuplicate:
		return "duplicate"
	default:
		return "other"
	}
}

// ---- closure ----

// Close ends a case with the given outcome, evicts it to the
// recently-closed cache, schedules its final upload and archives it.
func (b *Board) Close(display int, outcome domain.Outcome) (*domain.Case, error) {
	b.mu.Lock()
	c, ok := b.byDisplayLocked(display)
	if !ok {
		b.mu.Unlock()
		return nil, ErrCaseNotFound
	}
	if err := c.Close(outcome); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	for _, r := range c.Rats {
		r.ClearJumpCalls(c.ID)
	}
	b.removeLocked(c)
	b.scheduleSyncLocked(c)
	// Snapshot before releasing the lock: a reopen can mutate the record
	// while the archive write is still in flight.
	archived := c.Clone()
	b.mu.Unlock()

	b.archiveAsync(archived)
	b.log.Info().
		Str("case_id", c.ID.String()).
		Int("display_id", display).
		Str("outcome", string(outcome)).
		Msg("case closed")
	b.notifier.Notify(b.cfg.Channel, fmt.Sprintf("Case #%d closed (%s)", display, outcome))
	return c, nil
}

// Trash purges a case: it is closed with the purge outcome and deleted
// from the remote store instead of receiving a final upload.
func (b *Board) Trash(display int) (*domain.Case, error) {
	b.mu.Lock()
	c, ok := b.byDisplayLocked(display)
	if !ok {
		b.mu.Unlock()
		return nil, ErrCaseNotFound
	}
	if err := c.Close(domain.OutcomePurge); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	for _, r := range c.Rats {
		r.ClearJumpCalls(c.ID)
	}
	b.removeLocked(c)
	uploaded := c.Uploaded
	archived := c.Clone()
	b.mu.Unlock()

	b.archiveAsync(archived)
	if uploaded {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			ctx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
			defer cancel()
			if err := b.store.DeleteCase(ctx, c.ID); err != nil {
				b.log.Error().Err(err).Str("case_id", c.ID.String()).Msg("remote delete failed")
			}
		}()
	}
	b.log.Info().Str("case_id", c.ID.String()).Int("display_id", display).Msg("case trashed")
	return c, nil
}

// Reopen resurrects a closed case. The persistent ID survives; the
// display ID is reused only when still free.
func (b *Board) Reopen(ctx context.Context, id uuid.UUID) (*domain.Case, error) {
	b.mu.Lock()
	if c, ok := b.cases[id]; ok {
		b.mu.Unlock()
		return c, nil
	}
	for i, c := range b.recent {
		if c.ID == id {
			b.recent = append(b.recent[:i], b.recent[i+1:]...)
			delete(b.reminded, id)
			delete(b.silenced, id)
			b.reinsertLocked(c)
			b.mu.Unlock()
			return c, nil
		}
	}
	b.mu.Unlock()

	// Fell out of the cache: the remote store is the source of record.
	rec, err := b.store.GetCase(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	c := rec.ToCase()
	c.Uploaded = true

	b.mu.Lock()
	b.reinsertLocked(c)
	b.mu.Unlock()
	return c, nil
}

// Undo reopens the most recently closed case.
func (b *Board) Undo(ctx context.Context) (*domain.Case, error) {
	b.mu.Lock()
	if len(b.recent) == 0 {
		b.mu.Unlock()
		return nil, ErrCaseNotFound
	}
	last := b.recent[len(b.recent)-1]
	b.mu.Unlock()
	return b.Reopen(ctx, last.ID)
}

// reinsertLocked puts a previously closed case back on the active board
// as a fresh open record, preferring its old display ID when free.
func (b *Board) reinsertLocked(c *domain.Case) {
	pref := c.DisplayID
	c.Status = domain.StatusOpen
	c.Outcome = domain.OutcomeNone
	c.ClosedAt = time.Time{}
	c.Touch()
	if c.SyncState == domain.SyncError {
		c.SyncState = domain.SyncPendingChanges
	}
	b.insertLocked(c, &pref)
	b.scheduleSyncLocked(c)
	b.log.Info().
		Str("case_id", c.ID.String()).
		Int("display_id", c.DisplayID).
		Msg("case reopened")
}

// archiveAsync persists a closure snapshot in the background. Callers
// hand over a Clone, never the live record.
func (b *Board) archiveAsync(c *domain.Case) {
	if b.archiver == nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.archiver.Archive(ctx, c); err != nil {
			b.log.Error().Err(err).Str("case_id", c.ID.String()).Msg("archive write failed")
		}
	}()
}

// ---- aggregate state ----

// AllSynced reports whether every active record is synced and uploaded.
func (b *Board) AllSynced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.cases {
		if c.SyncState != domain.SyncSynced || !c.Uploaded {
			return false
		}
	}
	return true
}

func (b *Board) announce(codeRed bool, text string) {
	if codeRed {
		b.notifier.NotifyUrgent(b.cfg.Channel, text)
		return
	}
	b.notifier.Notify(b.cfg.Channel, text)
}

func codeRedSuffix(cr bool) string {
	if cr {
		return " (CODE RED)"
	}
	return ""
}
