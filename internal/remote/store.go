// Package remote abstracts the authoritative case store. The board and
// its sync operations speak only to the Store interface; the concrete
// REST client lives in the embedding application. This package also
// defines the wire-shaped record payload and the error taxonomy the
// retry logic branches on, plus an in-memory Store for tests and
// standalone operation.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/mfreire/go-rescue-board/internal/domain"
)

// Store is the remote case store abstraction. Implementations must
// tolerate concurrent writers; the board reconciles, it does not lock.
type Store interface {
	// CreateCase uploads a record the remote side has never seen.
	CreateCase(ctx context.Context, rec CaseRecord) (*CaseRecord, error)

	// UpdateCase replaces the remote copy of an existing record.
	UpdateCase(ctx context.Context, id uuid.UUID, rec CaseRecord) (*CaseRecord, error)

	// ListOpenCases returns every case the remote store considers open.
	ListOpenCases(ctx context.Context) ([]CaseRecord, error)

	// GetCase fetches a single record by persistent ID.
	GetCase(ctx context.Context, id uuid.UUID) (*CaseRecord, error)

	// DeleteCase removes a record from the remote store.
	DeleteCase(ctx context.Context, id uuid.UUID) error
}

// CaseRecord is the flat, wire-shaped representation of a case exchanged
// with the remote store.
type CaseRecord struct {
	ID           uuid.UUID      `json:"id"`
	DisplayID    int            `json:"commandIdentifier"`
	Client       string         `json:"client"`
	Nick         string         `json:"nick,omitempty"`
	Locale       string         `json:"clientLanguage,omitempty"`
	CodeRed      bool           `json:"codeRed"`
	Platform     string         `json:"platform,omitempty"`
	System       string         `json:"system,omitempty"`
	SystemOK     bool           `json:"systemConfirmed,omitempty"`
	Title        string         `json:"title,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Status       string         `json:"status"`
	Outcome      string         `json:"outcome,omitempty"`
	Quotes       []domain.Quote `json:"quotes,omitempty"`
	Rats         []RatRecord    `json:"rats,omitempty"`
	Unidentified []string       `json:"unidentifiedRats,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// RatRecord is the wire form of one assigned rat.
type RatRecord struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Platform string    `json:"platform,omitempty"`
}

// Validate reports whether the record carries the fields the board
// requires to build a local case.
func (r CaseRecord) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if r.Client == "" {
		return fmt.Errorf("%w: missing client", ErrMalformedRecord)
	}
	return nil
}

// RecordFromCase flattens a case into its wire representation.
func RecordFromCase(c *domain.Case) CaseRecord {
	rec := CaseRecord{
		ID:           c.ID,
		DisplayID:    c.DisplayID,
		Client:       c.Client,
		Nick:         c.Nick,
		Locale:       c.Locale.String(),
		CodeRed:      c.CodeRed,
		Platform:     string(c.Platform),
		System:       c.System.Name,
		SystemOK:     c.System.Confirmed,
		Title:        c.Title,
		Notes:        c.Notes,
		Status:       c.Status.String(),
		Outcome:      string(c.Outcome),
		Quotes:       append([]domain.Quote(nil), c.Quotes...),
		Unidentified: append([]string(nil), c.Unidentified...),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, rat := range c.Rats {
		rec.Rats = append(rec.Rats, RatRecord{ID: rat.ID, Name: rat.Name, Platform: string(rat.Platform)})
	}
	return rec
}

// Apply overwrites c's fields from the record. Identity and display ID
// are left alone; the board owns both.
func (r CaseRecord) Apply(c *domain.Case) {
	c.Client = r.Client
	c.Nick = r.Nick
	if t, err := language.Parse(r.Locale); err == nil {
		c.Locale = t
	} else {
		c.Locale = language.Und
	}
	c.CodeRed = r.CodeRed
	c.Platform = domain.Platform(r.Platform)
	c.System = domain.StarSystem{Name: r.System, Confirmed: r.SystemOK}
	c.Title = r.Title
	c.Notes = r.Notes
	c.Status = domain.ParseStatus(r.Status)
	c.Outcome = domain.Outcome(r.Outcome)
	c.Quotes = append([]domain.Quote(nil), r.Quotes...)
	c.Unidentified = append([]string(nil), r.Unidentified...)
	c.Rats = c.Rats[:0]
	for _, rat := range r.Rats {
		c.Rats = append(c.Rats, &domain.Rat{ID: rat.ID, Name: rat.Name, Platform: domain.Platform(rat.Platform)})
	}
	c.CreatedAt = r.CreatedAt
	c.UpdatedAt = r.UpdatedAt
}

// ToCase builds a fresh local case from the record. The display ID is
// assigned by the board afterwards.
func (r CaseRecord) ToCase() *domain.Case {
	c := domain.NewCase(r.Client, r.Nick, domain.OriginRemote)
	c.ID = r.ID
	r.Apply(c)
	return c
}

// ErrMalformedRecord marks records the remote store returned without the
// fields the board requires. These are skipped, never retried.
var ErrMalformedRecord = errors.New("malformed case record")

// ErrNotFound is returned by stores for unknown persistent IDs.
var ErrNotFound = errors.New("case not found in remote store")

// StatusError is a non-2xx HTTP response from the remote store.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store: %d %s", e.Code, e.Status)
}

// IsAlreadyExists reports whether err is the remote side refusing a
// create because the record already exists. Sync operations treat this
// as success: it covers the race where another client created the
// record first.
func IsAlreadyExists(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusConflict
}

// IsInvalid reports whether err marks malformed local state (a programmer
// error). Such uploads are logged and dropped, never retried.
func IsInvalid(err error) bool {
	if errors.Is(err, ErrMalformedRecord) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusUnprocessableEntity)
}
