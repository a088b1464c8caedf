// Package repo – case archive
//
// Every case evicted from the active board is flattened into one
// ArchivedCase row. Scalar fields are promoted to columns for querying;
// the full quote/rat detail rides along as a JSON payload. Archive writes
// are best-effort from the board's point of view: a failed insert is
// logged by the caller and never blocks closure.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mfreire/go-rescue-board/internal/domain"
)

// ErrNotFound is returned when a requested archive row does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across callers.
var ErrNotFound = gorm.ErrRecordNotFound

// ArchivedCase is the archive row for one closed (or trashed) case.
type ArchivedCase struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	DisplayID int       `json:"display_id" gorm:"not null"`
	Client    string    `json:"client"     gorm:"type:varchar(255);not null;index"`
	Platform  string    `json:"platform"   gorm:"type:varchar(8)"`
	System    string    `json:"system"     gorm:"type:varchar(255)"`
	CodeRed   bool      `json:"code_red"`
	Outcome   string    `json:"outcome"    gorm:"type:varchar(16);index"`
	Title     string    `json:"title"      gorm:"type:varchar(255)"`
	Notes     string    `json:"notes"      gorm:"type:text"`
	Payload   string    `json:"-"          gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at"  gorm:"index"`
}

// TableName returns the database table name for ArchivedCase.
func (ArchivedCase) TableName() string { return "archived_cases" }

// casePayload is the JSON detail stored alongside the scalar columns.
type casePayload struct {
	Quotes       []domain.Quote `json:"quotes,omitempty"`
	Rats         []string       `json:"rats,omitempty"`
	Unidentified []string       `json:"unidentifiedRats,omitempty"`
}

// Archive persists local archive access for the board and the status API.
type Archive struct {
	DB *gorm.DB
}

// NewArchive wraps a GORM handle.
func NewArchive(db *gorm.DB) *Archive {
	return &Archive{DB: db}
}

// Archive flattens and upserts the case. Re-archiving after a reopen and
// re-close replaces the previous row.
func (a *Archive) Archive(ctx context.Context, c *domain.Case) error {
	payload := casePayload{
		Quotes:       c.Quotes,
		Unidentified: c.Unidentified,
	}
	for _, r := range c.Rats {
		payload.Rats = append(payload.Rats, r.Name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	row := &ArchivedCase{
		ID:        c.ID.String(),
		DisplayID: c.DisplayID,
		Client:    c.Client,
		Platform:  string(c.Platform),
		System:    c.System.Name,
		CodeRed:   c.CodeRed,
		Outcome:   string(c.Outcome),
		Title:     c.Title,
		Notes:     c.Notes,
		Payload:   string(raw),
		CreatedAt: c.CreatedAt,
		ClosedAt:  c.ClosedAt,
	}
	return a.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
}

// Get fetches one archived case by persistent ID, or ErrNotFound.
func (a *Archive) Get(ctx context.Context, id uuid.UUID) (*ArchivedCase, error) {
	var row ArchivedCase
	err := a.DB.WithContext(ctx).
		Where("id = ?", id.String()).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Recent returns up to limit archived cases, most recently closed first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]ArchivedCase, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []ArchivedCase
	err := a.DB.WithContext(ctx).
		Order("closed_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
