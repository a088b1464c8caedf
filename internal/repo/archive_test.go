package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mfreire/go-rescue-board/internal/domain"
)

func testArchive(t *testing.T) *Archive {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return NewArchive(db)
}

func closedCase(client string) *domain.Case {
	c := domain.NewCase(client, "", domain.OriginSignal)
	c.Platform = domain.PlatformPC
	c.System = domain.StarSystem{Name: "LHS 3447", Confirmed: true}
	c.AddQuote("mecha", "signal received")
	c.AddRat(&domain.Rat{ID: uuid.New(), Name: "Rattus", Platform: domain.PlatformPC})
	_ = c.Close(domain.OutcomeSuccess)
	return c
}

func TestArchiveRoundTrip(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()
	c := closedCase("Client")

	if err := a.Archive(ctx, c); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	row, err := a.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.Client != "Client" || row.Outcome != "success" || row.System != "LHS 3447" {
		t.Fatalf("Get() = %+v", row)
	}
	if row.Payload == "" {
		t.Fatalf("Archive() stored no payload")
	}
}

func TestArchiveUpsert(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()
	c := closedCase("Client")

	if err := a.Archive(ctx, c); err != nil {
		t.Fatalf("first Archive() error = %v", err)
	}
	// Reopened, mutated, closed again: the row is replaced, not duplicated.
	c.Status = domain.StatusOpen
	c.Outcome = domain.OutcomeNone
	c.SetNotes("second pass")
	_ = c.Close(domain.OutcomeFailure)
	if err := a.Archive(ctx, c); err != nil {
		t.Fatalf("second Archive() error = %v", err)
	}

	row, err := a.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.Outcome != "failure" || row.Notes != "second pass" {
		t.Fatalf("Get() after re-archive = %+v", row)
	}
	rows, err := a.Recent(ctx, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("Recent() = %d rows, %v; want single upserted row", len(rows), err)
	}
}

func TestArchiveGetUnknown(t *testing.T) {
	a := testArchive(t)
	if _, err := a.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestArchiveRecentOrderAndLimit(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, client := range []string{"Old", "Mid", "New"} {
		c := closedCase(client)
		c.ClosedAt = base.Add(time.Duration(i) * time.Minute)
		if err := a.Archive(ctx, c); err != nil {
			t.Fatalf("Archive(%s) error = %v", client, err)
		}
	}

	rows, err := a.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Recent(2) = %d rows", len(rows))
	}
	if rows[0].Client != "New" || rows[1].Client != "Mid" {
		t.Fatalf("Recent() order = [%s %s], want newest first", rows[0].Client, rows[1].Client)
	}

	rows, err = a.Recent(ctx, 0)
	if err != nil || len(rows) != 3 {
		t.Fatalf("Recent(0) = %d rows, %v; want default limit applied", len(rows), err)
	}
}
