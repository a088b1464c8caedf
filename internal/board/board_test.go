package board

import (
	"context"
	"errors"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mfreire/go-rescue-board/internal/assign"
	"github.com/mfreire/go-rescue-board/internal/config"
	"github.com/mfreire/go-rescue-board/internal/domain"
	"github.com/mfreire/go-rescue-board/internal/remote"
)

// fakeNotifier captures channel notices. Safe for concurrent use; sync
// operations notify from their own goroutines.
type fakeNotifier struct {
	mu     stdsync.Mutex
	texts  []string
	urgent []string
}

func (f *fakeNotifier) Notify(_, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeNotifier) NotifyUrgent(_, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urgent = append(f.urgent, text)
}

func (f *fakeNotifier) containing(sub string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range append(append([]string(nil), f.texts...), f.urgent...) {
		if strings.Contains(t, sub) {
			n++
		}
	}
	return n
}

func testConfig() config.BoardConfig {
	return config.BoardConfig{
		Channel:           "#rescue",
		SyncRetryInterval: 5 * time.Millisecond,
		PrepTimeout:       0, // timers armed per test
		PaperworkInterval: 0, // sweep invoked directly
		RecentClosedSize:  10,
		IDRecencySize:     16,
	}
}

func testBoard(t *testing.T, cfg config.BoardConfig) (*Board, *remote.MemoryStore, *fakeNotifier) {
	t.Helper()
	store := remote.NewMemoryStore()
	n := &fakeNotifier{}
	b := New(Options{Store: store, Notifier: n, Config: cfg})
	t.Cleanup(b.Stop)
	return b, store, n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestCreateAssignsDisplayAndUploads(t *testing.T) {
	b, store, n := testBoard(t, testConfig())

	c, err := b.CreateFromSignal(context.Background(), Signal{
		Client: "Client", System: "LHS 3447", Platform: domain.PlatformPC,
	})
	if err != nil {
		t.Fatalf("CreateFromSignal() error = %v", err)
	}
	if c.DisplayID != 0 {
		t.Fatalf("DisplayID = %d, want 0 on an empty board", c.DisplayID)
	}
	if n.containing("Case #0 opened") != 1 {
		t.Fatalf("missing open announcement; notices = %v", n.texts)
	}

	waitFor(t, b.AllSynced, "initial upload")
	rec, err := store.GetCase(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCase() after upload error = %v", err)
	}
	if rec.Client != "Client" || rec.Status != "open" {
		t.Fatalf("uploaded record = %+v", rec)
	}
}

func TestCreateDuplicateClient(t *testing.T) {
	b, _, _ := testBoard(t, testConfig())
	ctx := context.Background()

	first, err := b.CreateFromSignal(ctx, Signal{Client: "Client"})
	if err != nil {
		t.Fatalf("first create error = %v", err)
	}
	second, err := b.CreateFromSignal(ctx, Signal{Client: "client"})
	if !errors.Is(err, ErrClientAlreadyHasCase) {
		t.Fatalf("second create error = %v, want ErrClientAlreadyHasCase", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("duplicate create did not return the existing case")
	}
}

func TestCreateCodeRedAnnouncesUrgently(t *testing.T) {
	b, _, n := testBoard(t, testConfig())

	if _, err := b.CreateFromAnnouncer(context.Background(), Signal{Client: "Client", CodeRed: true}); err != nil {
		t.Fatalf("create error = %v", err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.urgent) != 1 || !strings.Contains(n.urgent[0], "(CODE RED)") {
		t.Fatalf("urgent notices = %v, want one code-red announcement", n.urgent)
	}
}

func TestDisplayIDsUnique(t *testing.T) {
	b, _, _ := testBoard(t, testConfig())
	ctx := context.Background()

	seen := make(map[int]bool)
	for _, client := range []string{"A", "B", "C", "D", "E", "F"} {
		c, err := b.CreateManual(ctx, Signal{Client: client})
		if err != nil {
			t.Fatalf("create %s error = %v", client, err)
		}
		if seen[c.DisplayID] {
			t.Fatalf("display ID %d issued twice", c.DisplayID)
		}
		seen[c.DisplayID] = true
	}
}

func TestMutationsScheduleUpload(t *testing.T) {
	b, store, _ := testBoard(t, testConfig())
	ctx := context.Background()

	c, err := b.CreateManual(ctx, Signal{Client: "Client"})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	waitFor(t, b.AllSynced, "initial upload")

	if err := b.SetNotes(c.DisplayID, "stuck outside the bubble"); err != nil {
		t.Fatalf("SetNotes() error = %v", err)
	}
	waitFor(t, b.AllSynced, "notes upload")
	rec, err := store.GetCase(ctx, c.ID)
	if err != nil || rec.Notes != "stuck outside the bubble" {
		t.Fatalf("remote record = %+v, %v", rec, err)
	}

	if err := b.SetNotes(99, "x"); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("SetNotes(unknown) error = %v, want ErrCaseNotFound", err)
	}
}

func TestAssignThroughBoard(t *testing.T) {
	b, store, _ := testBoard(t, testConfig())
	ctx := context.Background()

	c, err := b.CreateManual(ctx, Signal{Client: "Client", Platform: domain.PlatformPC})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	rat := &domain.Rat{ID: uuid.New(), Name: "Rattus", Platform: domain.PlatformPC}
	roster := rosterOf(&domain.ChannelMember{Nick: "Rattus", Rats: []*domain.Rat{rat}})

	res, err := b.Assign(c.DisplayID, "Rattus", roster, false)
	if err != nil || res.Outcome != assign.Assigned {
		t.Fatalf("Assign() = %+v, %v", res, err)
	}
	waitFor(t, b.AllSynced, "assignment upload")
	rec, err := store.GetCase(ctx, c.ID)
	if err != nil || len(rec.Rats) != 1 || rec.Rats[0].Name != "Rattus" {
		t.Fatalf("remote record rats = %+v, %v", rec, err)
	}

	res, err = b.Unassign(c.DisplayID, "Rattus", roster)
	if err != nil || res.Outcome != assign.Unassigned {
		t.Fatalf("Unassign() = %+v, %v", res, err)
	}
}

type fakeRoster struct{ members map[string]*domain.ChannelMember }

func (f *fakeRoster) Member(nick string) (*domain.ChannelMember, bool) {
	m, ok := f.members[nick]
	return m, ok
}

func rosterOf(members ...*domain.ChannelMember) *fakeRoster {
	f := &fakeRoster{members: make(map[string]*domain.ChannelMember)}
	for _, m := range members {
		f.members[m.Nick] = m
	}
	return f
}

func TestCloseEvictsAndUploadsFinalState(t *testing.T) {
	b, store, n := testBoard(t, testConfig())
	ctx := context.Background()

	c, err := b.CreateManual(ctx, Signal{Client: "Client"})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	waitFor(t, b.AllSynced, "initial upload")

	if _, err := b.Close(c.DisplayID, domain.OutcomeSuccess); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := b.View(c.DisplayID); ok {
		t.Fatalf("closed case still visible on the active board")
	}
	if got := b.RecentlyClosed(); len(got) != 1 || got[0].Outcome != "success" {
		t.Fatalf("RecentlyClosed() = %+v", got)
	}
	if n.containing("Case #0 closed (success)") != 1 {
		t.Fatalf("missing close notice; notices = %v", n.texts)
	}

	// The closed state still reaches the remote store.
	waitFor(t, func() bool {
		rec, err := store.GetCase(ctx, c.ID)
		return err == nil && rec.Status == "closed" && rec.Outcome == "success"
	}, "final closed-state upload")
}

func TestCloseUnknownDisplay(t *testing.T) {
	b, _, _ := testBoard(t, testConfig())
	if _, err := b.Close(7, domain.OutcomeSuccess); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("Close(unknown) error = %v, want ErrCaseNotFound", err)
	}
}

func TestTrashDeletesRemoteCopy(t *testing.T) {
	b, store, _ := testBoard(t, testConfig())
	ctx := context.Background()

	c, err := b.CreateManual(ctx, Signal{Client: "Client"})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	waitFor(t, b.AllSynced, "initial upload")

	if _, err := b.Trash(c.DisplayID); err != nil {
		t.Fatalf("Trash() error = %v", err)
	}
	waitFor(t, func() bool {
		_, err := store.GetCase(ctx, c.ID)
		return errors.Is(err, remote.ErrNotFound)
	}, "remote delete")
}

// gatedArchiver parks Archive calls until the gate opens, so a test can
// interleave board mutations with an in-flight archive write.
type gatedArchiver struct {
	gate chan struct{}
	mu   stdsync.Mutex
	rows []*domain.Case
}

func (a *gatedArchiver) Archive(_ context.Context, c *domain.Case) error {
	<-a.gate
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, c)
	return nil
}

func TestArchiveGetsClosureSnapshot(t *testing.T) {
	arch := &gatedArchiver{gate: make(chan struct{})}
	store := remote.NewMemoryStore()
	b := New(Options{Store: store, Notifier: &fakeNotifier{}, Archive: arch, Config: testConfig()})
	t.Cleanup(b.Stop)
	ctx := context.Background()

	c, err := b.CreateManual(ctx, Signal{Client: "Client"})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	if _, err := b.Close(c.DisplayID, domain.OutcomeSuccess); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen resets status and outcome while the archive write is still
	// parked; the write must carry the closed-time state regardless.
	if _, err := b.Reopen(ctx, c.ID); err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}
	close(arch.gate)

	waitFor(t, func() bool {
		arch.mu.Lock()
		defer arch.mu.Unlock()
		return len(arch.rows) == 1
	}, "archive write")
	arch.mu.Lock()
	got := arch.rows[0]
	arch.mu.Unlock()
	if got == c {
		t.Fatalf("archiver handed the live record instead of a snapshot")
	}
	if got.Status != domain.StatusClosed || got.Outcome != domain.OutcomeSuccess || got.ClosedAt.IsZero() {
		t.Fatalf("archived record = status %v outcome %q, want the closed-time state", got.Status, got.Outcome)
	}
}

func TestReopenFromRecentCache(t *testing.T) {
	b, _, _ := testBoard(t, testConfig())
	ctx := context.Background()

	c, err := b.CreateManual(ctx, Signal{Client: "Client"})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	display := c.DisplayID
	if _, err := b.Close(display, domain.OutcomeSuccess); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := b.Reopen(ctx, c.ID)
	if err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("Reopen() changed persistent ID")
	}
	if got.Status != domain.StatusOpen || got.Outcome != domain.OutcomeNone {
		t.Fatalf("Reopen() left status=%v outcome=%v", got.Status, got.Outcome)
	}
	if got.DisplayID != display {
		t.Fatalf("Reopen() display = %d, want old ID %d reused while free", got.DisplayID, display)
	}
	if len(b.RecentlyClosed()) != 0 {
		t.Fatalf("reopened case left in recently-closed cache")
	}
}

func TestReopenFromRemoteStore(t *testing.T) {
	b, store, _ := testBoard(t, testConfig())
	ctx := context.Background()

	id := uuid.New()
	store.Seed(remote.CaseRecord{
		ID: id, DisplayID: 4, Client: "Faraway", Status: "closed",
		UpdatedAt: time.Now().UTC(),
	})

	got, err := b.Reopen(ctx, id)
	if err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}
	if got.Client != "Faraway" || got.Status != domain.StatusOpen {
		t.Fatalf("Reopen() = %+v", got)
	}
	if got.DisplayID != 4 {
		t.Fatalf("Reopen() display = %d, want remote's 4", got.DisplayID)
	}
}

func TestReopenUnknown(t *testing.T) {
	b, _, _ := testBoard(t, testConfig())
	if _, err := b.Reopen(context.Background(), uuid.New()); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("Reopen(unknown) error = %v, want ErrCaseNotFound", err)
	}
}

func TestUndoReopensLastClosed(t *testing.T) {
	b, _, _ := testBoard(t, testConfig())
	ctx := context.Background()

	a, _ := b.CreateManual(ctx, Signal{Client: "A"})
	c2, _ := b.CreateManual(ctx, Signal{Client: "B"})
	if _, err := b.Close(a.DisplayID, domain.OutcomeSuccess); err != nil {
		t.Fatalf("Close(a) error = %v", err)
	}
	if _, err := b.Close(c2.DisplayID, domain.OutcomeFailure); err != nil {
		t.Fatalf("Close(b) error = %v", err)
	}

	got, err := b.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got.ID != c2.ID {
		t.Fatalf("Undo() reopened %s, want most recently closed %s", got.Client, c2.Client)
	}

	if _, err := (&Board{}).Undo(ctx); err == nil {
		t.Fatalf("Undo() on empty board succeeded")
	}
}

func TestRecentCacheBounded(t *testing.T) {
	cfg := testConfig()
	cfg.RecentClosedSize = 2
	b, _, _ := testBoard(t, cfg)
	ctx := context.Background()

	for _, client := range []string{"A", "B", "C"} {
		c, err := b.CreateManual(ctx, Signal{Client: client})
		if err != nil {
			t.Fatalf("create %s error = %v", client, err)
		}
		if _, err := b.Close(c.DisplayID, domain.OutcomeSuccess); err != nil {
			t.Fatalf("close %s error = %v", client, err)
		}
	}
	got := b.RecentlyClosed()
	if len(got) != 2 {
		t.Fatalf("RecentlyClosed() = %d entries, want bounded at 2", len(got))
	}
	// Oldest first out: A must be gone.
	for _, v := range got {
		if v.Client == "A" {
			t.Fatalf("oldest entry not evicted: %+v", got)
		}
	}
}

func TestAllSyncedReflectsPendingWork(t *testing.T) {
	b, _, _ := testBoard(t, testConfig())
	c, err := b.CreateManual(context.Background(), Signal{Client: "Client"})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	waitFor(t, b.AllSynced, "initial upload")

	b.mu.Lock()
	b.cases[c.ID].Touch()
	b.mu.Unlock()
	if b.AllSynced() {
		t.Fatalf("AllSynced() = true with pending local changes")
	}
}
