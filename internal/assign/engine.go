// Package assign implements the rat-to-case assignment engine.
//
// Assignment is a pure validation pipeline over the case, the channel
// roster and a global deny-list: the first matching rule decides the
// outcome. Successful branches mutate the case (and therefore mark it
// pending-changes via Touch); scheduling the resulting upload is the
// board's job, so the engine stays synchronous and lock-free.
package assign

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mfreire/go-rescue-board/internal/domain"
)

// Engine validates and applies assignment attempts. The zero value is
// usable; NewEngine adds a deny-list.
type Engine struct {
	deny map[string]struct{}
}

// NewEngine builds an engine with the given deny-listed names
// (case-insensitive).
func NewEngine(denylist []string) *Engine {
	e := &Engine{deny: make(map[string]struct{}, len(denylist))}
	for _, n := range denylist {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			e.deny[n] = struct{}{}
		}
	}
	return e
}

// Roster exposes current channel membership to the engine.
type Roster interface {
	// Member returns the channel member with the given nick, if present.
	Member(nick string) (*domain.ChannelMember, bool)
}

// Outcome discriminates the successful assignment results.
type Outcome int

const (
	// Assigned: a verified rat was appended to the case.
	Assigned Outcome = iota
	// UnidentifiedAdded: the name joined the provisional unidentified set.
	UnidentifiedAdded
	// Duplicate: the rat was already assigned; nothing changed.
	Duplicate
	// UnidentifiedDuplicate: the name was already provisionally assigned.
	UnidentifiedDuplicate
	// Unassigned: an unassignment removed the rat or name.
	Unassigned
)

// Result carries the successful outcome of an assignment attempt. Rat is
// set for verified-identity outcomes, Name for unidentified ones.
type Result struct {
	Outcome Outcome
	Rat     *domain.Rat
	Name    string
}

// Validation failures. These are deterministic, never retried, and the
// caller owns all user-facing messaging.
var (
	// ErrBlacklisted: the name sits on the global deny-list.
	ErrBlacklisted = errors.New("name is blacklisted from assignment")
	// ErrSelfAssignment: a client cannot rescue themself.
	ErrSelfAssignment = errors.New("cannot assign the case's own client")
	// ErrNotInChannel: the name is not currently present in the channel.
	ErrNotInChannel = errors.New("name not present in channel")
	// ErrNotAssigned: unassignment found nothing to remove.
	ErrNotAssigned = errors.New("name is not assigned to this case")
)

// JumpCallError reports that a rat holds an open jump-call obligation on
// another case and the attempt did not force the override.
type JumpCallError struct {
	Rat    *domain.Rat
	CaseID uuid.UUID
}

func (e *JumpCallError) Error() string {
	return fmt.Sprintf("rat %s has an open jump call on case %s", e.Rat.Name, e.CaseID)
}

// Assign validates rawName against c and, when valid, records the
// assignment. Rules are checked in order; the first match wins:
//
//  1. deny-listed name            -> ErrBlacklisted
//  2. case's own client           -> ErrSelfAssignment
//  3. absent from channel         -> ErrNotInChannel
//  4. no verified rat identity    -> UnidentifiedAdded / UnidentifiedDuplicate
//  5. open jump call elsewhere    -> *JumpCallError (unless force)
//  6. already assigned            -> Duplicate
//  7. otherwise                   -> Assigned
func (e *Engine) Assign(c *domain.Case, rawName string, roster Roster, force bool) (Result, error) {
	name := strings.TrimSpace(rawName)

	if _, ok := e.deny[strings.ToLower(name)]; ok {
		return Result{}, ErrBlacklisted
	}
	if c.IsClient(name) {
		return Result{}, ErrSelfAssignment
	}
	member, ok := roster.Member(name)
	if !ok {
		return Result{}, ErrNotInChannel
	}
	rat := member.RatFor(c.Platform)
	if rat == nil {
		if c.HasUnidentified(name) {
			return Result{Outcome: UnidentifiedDuplicate, Name: name}, nil
		}
		c.AddUnidentified(name)
		return Result{Outcome: UnidentifiedAdded, Name: name}, nil
	}
	if other, open := rat.OpenJumpCallOn(c.ID); open && !force {
		return Result{}, &JumpCallError{Rat: rat, CaseID: other}
	}
	if c.HasRat(rat.ID) {
		return Result{Outcome: Duplicate, Rat: rat}, nil
	}
	c.RemoveUnidentified(name)
	c.AddRat(rat)
	return Result{Outcome: Assigned, Rat: rat}, nil
}

// Unassign is the structural inverse of Assign. It removes, in order of
// precedence: an exact unidentified-name match; the channel member's rat
// identity whose name is closest (by edit distance) to rawName; a literal
// assigned-name match. The first rule that matches short-circuits.
func (e *Engine) Unassign(c *domain.Case, rawName string, roster Roster) (Result, error) {
	name := strings.TrimSpace(rawName)

	if c.RemoveUnidentified(name) {
		return Result{Outcome: Unassigned, Name: name}, nil
	}
	if member, ok := roster.Member(name); ok {
		if rat := closestRat(member.Rats, name); rat != nil && c.RemoveRat(rat.ID) {
			return Result{Outcome: Unassigned, Rat: rat}, nil
		}
	}
	if rat := c.RatByName(name); rat != nil {
		c.RemoveRat(rat.ID)
		return Result{Outcome: Unassigned, Rat: rat}, nil
	}
	return Result{}, ErrNotAssigned
}

// closestRat picks, among a member's rat identities, the one whose name
// has the smallest edit distance to the supplied text.
func closestRat(rats []*domain.Rat, name string) *domain.Rat {
	var best *domain.Rat
	bestDist := -1
	for _, r := range rats {
		d := editDistance(strings.ToLower(r.Name), strings.ToLower(name))
		if best == nil || d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}
