// Package board – read-side views
//
// Handlers and other readers never receive pointers into the board's
// mutable state; they get value snapshots taken under the lock.
package board

import (
	"sort"
	"time"

	"github.com/mfreire/go-rescue-board/internal/domain"
)

// CaseView is an immutable snapshot of one case.
type CaseView struct {
	ID           string    `json:"id"`
	DisplayID    int       `json:"display_id"`
	Client       string    `json:"client"`
	Locale       string    `json:"locale,omitempty"`
	CodeRed      bool      `json:"code_red"`
	Platform     string    `json:"platform,omitempty"`
	System       string    `json:"system,omitempty"`
	Title        string    `json:"title,omitempty"`
	Status       string    `json:"status"`
	Outcome      string    `json:"outcome,omitempty"`
	Rats         []string  `json:"rats,omitempty"`
	Unidentified []string  `json:"unidentified_rats,omitempty"`
	Quotes       int       `json:"quotes"`
	SyncState    string    `json:"sync_state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusView is the aggregate board state exposed to operators.
type StatusView struct {
	ActiveCases    int          `json:"active_cases"`
	RecentlyClosed int          `json:"recently_closed"`
	AllSynced      bool         `json:"all_synced"`
	LastSync       *SyncSummary `json:"last_sync,omitempty"`
}

func viewOf(c *domain.Case) CaseView {
	v := CaseView{
		ID:           c.ID.String(),
		DisplayID:    c.DisplayID,
		Client:       c.Client,
		Locale:       c.Locale.String(),
		CodeRed:      c.CodeRed,
		Platform:     string(c.Platform),
		System:       c.System.Name,
		Title:        c.Title,
		Status:       c.Status.String(),
		Outcome:      string(c.Outcome),
		Unidentified: append([]string(nil), c.Unidentified...),
		Quotes:       len(c.Quotes),
		SyncState:    c.SyncState.String(),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, r := range c.Rats {
		v.Rats = append(v.Rats, r.Name)
	}
	return v
}

// Views snapshots every active case, ordered by display ID.
func (b *Board) Views() []CaseView {
	b.mu.Lock()
	out := make([]CaseView, 0, len(b.cases))
	for _, c := range b.cases {
		out = append(out, viewOf(c))
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DisplayID < out[j].DisplayID })
	return out
}

// View snapshots one case by display ID.
func (b *Board) View(display int) (CaseView, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.byDisplayLocked(display)
	if !ok {
		return CaseView{}, false
	}
	return viewOf(c), true
}

// RecentlyClosed snapshots the recently-closed cache, newest first.
func (b *Board) RecentlyClosed() []CaseView {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CaseView, 0, len(b.recent))
	for i := len(b.recent) - 1; i >= 0; i-- {
		out = append(out, viewOf(b.recent[i]))
	}
	return out
}

// Status snapshots the aggregate board state.
func (b *Board) Status() StatusView {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := StatusView{
		ActiveCases:    len(b.cases),
		RecentlyClosed: len(b.recent),
		AllSynced:      true,
	}
	for _, c := range b.cases {
		if c.SyncState != domain.SyncSynced || !c.Uploaded {
			st.AllSynced = false
			break
		}
	}
	if b.lastSummary != nil {
		s := *b.lastSummary
		st.LastSync = &s
	}
	return st
}
