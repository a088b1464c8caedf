// Package domain – Case
//
// This file implements the mutable case record: identity, client info,
// assignments, quotes, the status state machine, and per-record sync
// bookkeeping. Every externally observable mutation bumps the revision
// counter and flips the sync state so the owning board knows an upload
// is due.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// ErrBadTransition is returned when a status change violates the case
// state machine (e.g. Inactive -> Queued).
var ErrBadTransition = errors.New("invalid case status transition")

// Case is one rescue being tracked on the board.
//
// Identity is two-level: ID is the globally unique persistent identifier
// and never changes; DisplayID is the short, human-typed number that is
// unique only among cases currently on the board and is recycled after
// closure.
type Case struct {
	ID        uuid.UUID
	DisplayID int

	Client  string
	Nick    string
	Locale  language.Tag
	CodeRed bool

	Platform Platform
	Title    string
	Notes    string
	System   StarSystem

	Status  Status
	Outcome Outcome
	Origin  Origin

	Quotes       []Quote
	Rats         []*Rat
	Unidentified []string

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time

	// SyncState describes how this record relates to its remote copy.
	SyncState SyncState
	// Uploaded is set after the first successful upload and stays set.
	Uploaded bool
	// Rev increments on every observable mutation. Sync operations capture
	// it before an upload and commit only if it is still current, so a
	// mutation racing an in-flight upload is picked up by the next one.
	Rev uint64
}

// NewCase builds an open case for the given client. The caller (the board)
// assigns the display ID and schedules the initial upload.
func NewCase(client, nick string, origin Origin) *Case {
	now := time.Now().UTC()
	return &Case{
		ID:        uuid.New(),
		Client:    NormalizeName(client),
		Nick:      NormalizeName(nick),
		Locale:    language.Und,
		Status:    StatusOpen,
		Origin:    origin,
		CreatedAt: now,
		UpdatedAt: now,
		SyncState: SyncPendingCreation,
	}
}

// Touch records an observable mutation: it bumps the revision, refreshes
// UpdatedAt, and moves a synced record to pending-changes. Records that
// were never uploaded or are mid-retry keep their state; the revision
// bump alone is enough for the active sync operation to re-upload.
func (c *Case) Touch() {
	c.Rev++
	c.UpdatedAt = time.Now().UTC()
	if c.SyncState == SyncSynced {
		c.SyncState = SyncPendingChanges
	}
}

// SetStatus applies a state-machine transition. Callers that need the
// Inactive/Queued -> Closed shortcut must pass through Open explicitly.
func (c *Case) SetStatus(next Status) error {
	if next == c.Status {
		return nil
	}
	ok := false
	switch c.Status {
	case StatusOpen:
		ok = next == StatusInactive || next == StatusQueued || next == StatusClosed
	case StatusInactive, StatusQueued:
		ok = next == StatusOpen
	case StatusClosed:
		// Terminal on the active board; resurrection goes through reopen,
		// which builds a fresh open record.
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, c.Status, next)
	}
	c.Status = next
	c.Touch()
	return nil
}

// Close transitions the case to Closed with the given outcome, routing
// through Open first when the case sits in a holding state.
func (c *Case) Close(outcome Outcome) error {
	if c.Status == StatusInactive || c.Status == StatusQueued {
		if err := c.SetStatus(StatusOpen); err != nil {
			return err
		}
	}
	if err := c.SetStatus(StatusClosed); err != nil {
		return err
	}
	c.Outcome = outcome
	c.ClosedAt = time.Now().UTC()
	return nil
}

// Clone returns a copy safe to read outside the owning board's lock:
// the quote, rat and unidentified slices are duplicated so later
// mutations of the original do not show through.
func (c *Case) Clone() *Case {
	out := *c
	out.Quotes = append([]Quote(nil), c.Quotes...)
	out.Rats = append([]*Rat(nil), c.Rats...)
	out.Unidentified = append([]string(nil), c.Unidentified...)
	return &out
}

// AddQuote appends a log entry authored by author.
func (c *Case) AddQuote(author, text string) {
	now := time.Now().UTC()
	c.Quotes = append(c.Quotes, Quote{
		Author:     author,
		LastAuthor: author,
		Text:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	c.Touch()
}

// UpdateQuote rewrites the text of quote index i, recording editor as the
// last author. Returns false when i is out of range.
func (c *Case) UpdateQuote(i int, editor, text string) bool {
	if i < 0 || i >= len(c.Quotes) {
		return false
	}
	c.Quotes[i].Text = text
	c.Quotes[i].LastAuthor = editor
	c.Quotes[i].UpdatedAt = time.Now().UTC()
	c.Touch()
	return true
}

// HasRat reports whether the rat with the given ID is assigned.
func (c *Case) HasRat(id uuid.UUID) bool {
	for _, r := range c.Rats {
		if r.ID == id {
			return true
		}
	}
	return false
}

// AddRat appends a verified rat to the assigned set. The caller is
// responsible for duplicate checks (see the assignment engine).
func (c *Case) AddRat(r *Rat) {
	c.Rats = append(c.Rats, r)
	c.Touch()
}

// RemoveRat drops the rat with the given ID from the assigned set,
// reporting whether it was present.
func (c *Case) RemoveRat(id uuid.UUID) bool {
	for i, r := range c.Rats {
		if r.ID == id {
			c.Rats = append(c.Rats[:i], c.Rats[i+1:]...)
			c.Touch()
			return true
		}
	}
	return false
}

// RatByName returns the assigned rat whose name matches (case-insensitive).
func (c *Case) RatByName(name string) *Rat {
	for _, r := range c.Rats {
		if strings.EqualFold(r.Name, name) {
			return r
		}
	}
	return nil
}

// HasUnidentified reports whether name sits in the unidentified set
// (case-insensitive).
func (c *Case) HasUnidentified(name string) bool {
	for _, n := range c.Unidentified {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// AddUnidentified records a provisional, name-only assignment.
func (c *Case) AddUnidentified(name string) {
	c.Unidentified = append(c.Unidentified, name)
	c.Touch()
}

// RemoveUnidentified drops name from the unidentified set, reporting
// whether it was present. Matching is case-insensitive.
func (c *Case) RemoveUnidentified(name string) bool {
	for i, n := range c.Unidentified {
		if strings.EqualFold(n, name) {
			c.Unidentified = append(c.Unidentified[:i], c.Unidentified[i+1:]...)
			c.Touch()
			return true
		}
	}
	return false
}

// SetSystem replaces the star-system reference.
func (c *Case) SetSystem(sys StarSystem) {
	c.System = sys
	c.Touch()
}

// SetCodeRed flips the emergency flag.
func (c *Case) SetCodeRed(cr bool) {
	if c.CodeRed == cr {
		return
	}
	c.CodeRed = cr
	c.Touch()
}

// SetPlatform records the client's platform.
func (c *Case) SetPlatform(p Platform) {
	if c.Platform == p {
		return
	}
	c.Platform = p
	c.Touch()
}

// SetTitle sets the human-readable case title.
func (c *Case) SetTitle(title string) {
	c.Title = NormalizeName(title)
	c.Touch()
}

// SetNotes replaces the free-text notes.
func (c *Case) SetNotes(notes string) {
	c.Notes = notes
	c.Touch()
}

// SetLocale parses and stores the client's language. Unparseable input
// degrades to Und rather than failing intake.
func (c *Case) SetLocale(tag string) {
	t, err := language.Parse(tag)
	if err != nil {
		t = language.Und
	}
	c.Locale = t
	c.Touch()
}

// IsClient reports whether name refers to the case's own client
// (by client name or nick, case-insensitive). A client cannot rescue
// themself.
func (c *Case) IsClient(name string) bool {
	return strings.EqualFold(name, c.Client) || (c.Nick != "" && strings.EqualFold(name, c.Nick))
}

// NormalizeName trims surrounding whitespace and collapses internal runs
// of whitespace to single spaces.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
