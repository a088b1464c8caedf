package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/mfreire/go-rescue-board/internal/domain"
)

func TestRecordRoundTrip(t *testing.T) {
	c := domain.NewCase("Client", "Client[PC]", domain.OriginSignal)
	c.DisplayID = 3
	c.SetPlatform(domain.PlatformPC)
	c.SetCodeRed(true)
	c.SetLocale("fr")
	c.SetSystem(domain.StarSystem{Name: "LHS 3447", Confirmed: true})
	c.AddQuote("mecha", "signal received")
	c.AddRat(&domain.Rat{ID: uuid.New(), Name: "Rattus", Platform: domain.PlatformPC})
	c.AddUnidentified("Maybe")

	rec := RecordFromCase(c)
	if rec.ID != c.ID || rec.DisplayID != 3 {
		t.Fatalf("RecordFromCase identity = %s/%d", rec.ID, rec.DisplayID)
	}
	if rec.Status != "open" || !rec.CodeRed || rec.Locale != "fr" {
		t.Fatalf("RecordFromCase = %+v", rec)
	}

	back := rec.ToCase()
	if back.ID != c.ID {
		t.Fatalf("ToCase() ID = %s, want %s", back.ID, c.ID)
	}
	if back.System.Name != "LHS 3447" || !back.System.Confirmed {
		t.Fatalf("ToCase() system = %+v", back.System)
	}
	if len(back.Rats) != 1 || back.Rats[0].Name != "Rattus" {
		t.Fatalf("ToCase() rats = %+v", back.Rats)
	}
	if len(back.Quotes) != 1 || !back.HasUnidentified("Maybe") {
		t.Fatalf("ToCase() dropped quotes or unidentified names")
	}
	if back.Origin != domain.OriginRemote {
		t.Fatalf("ToCase() origin = %v, want remote", back.Origin)
	}
}

func TestApplyPreservesIdentityAndDisplay(t *testing.T) {
	c := domain.NewCase("Old", "", domain.OriginManual)
	c.DisplayID = 5
	id, rev := c.ID, c.Rev

	rec := CaseRecord{
		ID:        uuid.New(), // ignored
		DisplayID: 9,          // ignored
		Client:    "New",
		Status:    "inactive",
		Locale:    "not a tag",
	}
	rec.Apply(c)

	if c.ID != id || c.DisplayID != 5 {
		t.Fatalf("Apply() touched identity: id=%s display=%d", c.ID, c.DisplayID)
	}
	if c.Client != "New" || c.Status != domain.StatusInactive {
		t.Fatalf("Apply() left client=%q status=%v", c.Client, c.Status)
	}
	if c.Locale.String() != "und" {
		t.Fatalf("Apply() locale = %v, want und for unparseable input", c.Locale)
	}
	// Remote overwrite is not a local mutation; no upload should follow.
	if c.Rev != rev {
		t.Fatalf("Apply() bumped Rev from %d to %d", rev, c.Rev)
	}
}

func TestValidate(t *testing.T) {
	good := CaseRecord{ID: uuid.New(), Client: "Client"}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate(good) = %v", err)
	}
	for name, rec := range map[string]CaseRecord{
		"missing id":     {Client: "Client"},
		"missing client": {ID: uuid.New()},
	} {
		if err := rec.Validate(); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("Validate(%s) = %v, want ErrMalformedRecord", name, err)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	conflict := &StatusError{Code: http.StatusConflict, Status: "conflict"}
	if !IsAlreadyExists(conflict) {
		t.Fatalf("IsAlreadyExists(409) = false")
	}
	if IsAlreadyExists(&StatusError{Code: http.StatusInternalServerError}) {
		t.Fatalf("IsAlreadyExists(500) = true")
	}

	for _, err := range []error{
		&StatusError{Code: http.StatusBadRequest},
		&StatusError{Code: http.StatusUnprocessableEntity},
		fmt.Errorf("create: %w", ErrMalformedRecord),
	} {
		if !IsInvalid(err) {
			t.Errorf("IsInvalid(%v) = false", err)
		}
	}
	if IsInvalid(&StatusError{Code: http.StatusBadGateway}) {
		t.Fatalf("IsInvalid(502) = true; gateway errors must retry")
	}
	if IsInvalid(errors.New("dial tcp: refused")) {
		t.Fatalf("IsInvalid(transport error) = true")
	}
}

func TestMemoryStoreCreateConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := CaseRecord{ID: uuid.New(), Client: "Client", Status: "open"}

	if _, err := s.CreateCase(ctx, rec); err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	_, err := s.CreateCase(ctx, rec)
	if !IsAlreadyExists(err) {
		t.Fatalf("duplicate CreateCase() error = %v, want 409", err)
	}
}

func TestMemoryStoreListOpenCases(t *testing.T) {
	s := NewMemoryStore()
	s.Seed(
		CaseRecord{ID: uuid.New(), Client: "A", Status: "open"},
		CaseRecord{ID: uuid.New(), Client: "B", Status: "inactive"},
		CaseRecord{ID: uuid.New(), Client: "C", Status: "closed"},
	)
	recs, err := s.ListOpenCases(context.Background())
	if err != nil {
		t.Fatalf("ListOpenCases() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("ListOpenCases() = %d records, want 2 (closed excluded)", len(recs))
	}
}

func TestMemoryStoreUpdateAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	if _, err := s.UpdateCase(ctx, id, CaseRecord{ID: id, Client: "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateCase(unknown) error = %v, want ErrNotFound", err)
	}
	s.Seed(CaseRecord{ID: id, Client: "X", Status: "open"})
	if _, err := s.UpdateCase(ctx, id, CaseRecord{ID: id, Client: "Y", Status: "open"}); err != nil {
		t.Fatalf("UpdateCase() error = %v", err)
	}
	got, err := s.GetCase(ctx, id)
	if err != nil || got.Client != "Y" {
		t.Fatalf("GetCase() = %+v, %v", got, err)
	}
	if err := s.DeleteCase(ctx, id); err != nil {
		t.Fatalf("DeleteCase() error = %v", err)
	}
	if err := s.DeleteCase(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteCase() error = %v, want ErrNotFound", err)
	}
}
