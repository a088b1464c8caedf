// Package board – timers
//
// Two kinds of scheduled work hang off the board: a per-case prep timer
// that reminds the channel to brief the client, and a periodic sweep that
// nags about paperwork for recently closed rescues. Both are keyed by the
// case's persistent ID and canceled on close, trash or silence; a timer
// that fires anyway re-checks case status first and becomes a no-op.
package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfreire/go-rescue-board/internal/domain"
)

// startPrepTimerLocked arms the prep warning for a fresh case. Callers
// hold b.mu.
func (b *Board) startPrepTimerLocked(c *domain.Case) {
	if b.cfg.PrepTimeout <= 0 {
		return
	}
	id := c.ID
	b.timers[id] = time.AfterFunc(b.cfg.PrepTimeout, func() {
		b.prepFired(id)
	})
}

// prepFired runs when a prep timer elapses. The case may have closed or
// been silenced since the timer was armed, so status is re-checked under
// the lock before anything is sent.
func (b *Board) prepFired(id uuid.UUID) {
	b.mu.Lock()
	delete(b.timers, id)
	c, ok := b.cases[id]
	if !ok || c.Status == domain.StatusClosed || b.silenced[id] {
		b.mu.Unlock()
		return
	}
	display, client, codeRed := c.DisplayID, c.Client, c.CodeRed
	b.mu.Unlock()

	b.announce(codeRed, fmt.Sprintf("Case #%d: has %s been prepped?%s",
		display, client, codeRedSuffix(codeRed)))
}

// cancelTimersLocked stops and forgets the case's prep timer. Callers
// hold b.mu.
func (b *Board) cancelTimersLocked(id uuid.UUID) {
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
}

// Silence suppresses further timer-driven notices for a case.
func (b *Board) Silence(display int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.byDisplayLocked(display)
	if !ok {
		return ErrCaseNotFound
	}
	b.silenced[c.ID] = true
	b.cancelTimersLocked(c.ID)
	return nil
}

// StartPaperworkSweep launches the periodic paperwork-reminder loop. It
// stops when the board is stopped.
func (b *Board) StartPaperworkSweep() {
	if b.cfg.PaperworkInterval <= 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.cfg.PaperworkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				b.paperworkSweep()
			}
		}
	}()
}

// paperworkSweep reminds the channel once per closed rescue that still
// owes paperwork. Purged and invalid cases owe none.
func (b *Board) paperworkSweep() {
	b.mu.Lock()
	var due []string
	for _, c := range b.recent {
		switch c.Outcome {
		case domain.OutcomePurge, domain.OutcomeInvalid:
			continue
		}
		if b.reminded[c.ID] || b.silenced[c.ID] {
			continue
		}
		b.reminded[c.ID] = true
		due = append(due, fmt.Sprintf("#%d (%s)", c.DisplayID, c.Client))
	}
	b.mu.Unlock()

	if len(due) == 0 {
		return
	}
	b.notifier.Notify(b.cfg.Channel,
		fmt.Sprintf("Paperwork reminder: %s", strings.Join(due, ", ")))
}
