// Package domain defines the core entities of the rescue board: cases,
// rats, quotes and star systems, together with the enumerations that
// describe case status, closure outcome and local/remote sync state.
//
// Everything in this package is plain data plus synchronous mutation
// helpers. Ownership and serialization of concurrent access belong to the
// board; nothing here locks.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the game platform/expansion a client plays on.
// A rat identity is only valid for the platform it was verified on.
type Platform string

const (
	PlatformPC   Platform = "pc"
	PlatformXbox Platform = "xb"
	PlatformPS   Platform = "ps"

	// PlatformUnknown marks cases whose platform has not been stated yet.
	PlatformUnknown Platform = ""
)

// Status is the lifecycle state of a case on the active board.
//
// Valid transitions: Open -> Inactive, Open -> Queued, Inactive -> Open,
// Queued -> Open, Open -> Closed. Inactive and Queued are holding states;
// they never transition into each other or directly into Closed.
type Status int

const (
	StatusOpen Status = iota
	StatusInactive
	StatusQueued
	StatusClosed
)

// String returns the lowercase wire/display name of the status.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInactive:
		return "inactive"
	case StatusQueued:
		return "queued"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseStatus maps a wire name back to a Status. Unrecognized values
// come back as StatusOpen so a malformed remote record stays visible
// rather than vanishing into a holding state.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inactive":
		return StatusInactive
	case "queued":
		return StatusQueued
	case "closed":
		return StatusClosed
	default:
		return StatusOpen
	}
}

// Outcome classifies a closed case. It is empty while the case is open.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeInvalid Outcome = "invalid"
	OutcomePurge   Outcome = "purge"
	OutcomeOther   Outcome = "other"
)

// SyncState tracks how the local record relates to its remote copy.
type SyncState int

const (
	// SyncPendingCreation means the record has never been uploaded.
	SyncPendingCreation SyncState = iota
	// SyncSynced means the local state matched the last successful upload.
	SyncSynced
	// SyncPendingChanges means the record mutated since the last upload.
	SyncPendingChanges
	// SyncError means the last upload attempt failed; a retry loop is live.
	SyncError
)

// String returns the display name of the sync state.
func (s SyncState) String() string {
	switch s {
	case SyncPendingCreation:
		return "pending-creation"
	case SyncSynced:
		return "synced"
	case SyncPendingChanges:
		return "pending-changes"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// Origin records how a case entered the board.
type Origin string

const (
	OriginSignal    Origin = "signal"
	OriginAnnouncer Origin = "announcer"
	OriginManual    Origin = "manual"
	OriginRemote    Origin = "remote"
)

// Rat is a volunteer responder identity. Identities are owned by the
// account subsystem; the board only holds references plus per-assignment
// metadata such as outstanding jump calls.
type Rat struct {
	ID       uuid.UUID
	Name     string
	Platform Platform

	// JumpCalls maps a case ID to the number of outstanding jump calls
	// this rat has committed to on that case.
	JumpCalls map[uuid.UUID]int
}

// OpenJumpCallOn returns the case (other than exclude) on which the rat
// has an outstanding jump call, if any.
func (r *Rat) OpenJumpCallOn(exclude uuid.UUID) (uuid.UUID, bool) {
	for id, n := range r.JumpCalls {
		if id != exclude && n > 0 {
			return id, true
		}
	}
	return uuid.Nil, false
}

// AddJumpCall records count additional jump calls for the rat on caseID.
func (r *Rat) AddJumpCall(caseID uuid.UUID, count int) {
	if r.JumpCalls == nil {
		r.JumpCalls = make(map[uuid.UUID]int)
	}
	r.JumpCalls[caseID] += count
}

// ClearJumpCalls removes the rat's jump-call obligation on caseID.
func (r *Rat) ClearJumpCalls(caseID uuid.UUID) {
	delete(r.JumpCalls, caseID)
}

// ChannelMember is one nick currently present in the rescue channel,
// together with the verified rat identities attached to that account.
type ChannelMember struct {
	Nick string
	Rats []*Rat
}

// RatFor returns the member's verified identity for the given platform,
// or nil when none exists.
func (m *ChannelMember) RatFor(p Platform) *Rat {
	for _, r := range m.Rats {
		if r.Platform == p {
			return r
		}
	}
	return nil
}

// Quote is one timestamped free-text log entry attached to a case.
type Quote struct {
	Author     string    `json:"author"`
	LastAuthor string    `json:"lastAuthor"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StarSystem is the (independently correctable) location of a rescue.
// Confirmed is set once the name was validated by the system-name service.
type StarSystem struct {
	Name      string `json:"name"`
	Confirmed bool   `json:"confirmed"`
}
