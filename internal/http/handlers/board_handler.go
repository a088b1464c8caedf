// Package handlers – board endpoints
//
// Read-only views of the rescue board plus the operator-triggered resync.
// Case mutation stays with the chat-driven board; the status API never
// edits cases.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mfreire/go-rescue-board/internal/board"
	"github.com/mfreire/go-rescue-board/internal/repo"
	"github.com/mfreire/go-rescue-board/internal/utils"
)

// BoardAPI is the surface the handlers need from the rescue board.
type BoardAPI interface {
	Views() []board.CaseView
	View(display int) (board.CaseView, bool)
	RecentlyClosed() []board.CaseView
	Status() board.StatusView
	Sync(ctx context.Context) (*board.SyncSummary, error)
}

// ArchiveAPI is the read surface of the closed-case archive.
type ArchiveAPI interface {
	Recent(ctx context.Context, limit int) ([]repo.ArchivedCase, error)
}

// Handler bundles the endpoint dependencies.
type Handler struct {
	Board   BoardAPI
	Archive ArchiveAPI // optional
}

// New constructs a Handler.
func New(b BoardAPI, a ArchiveAPI) *Handler {
	return &Handler{Board: b, Archive: a}
}

// ListCases returns every active case, ordered by display ID.
//
// GET /cases
func (h *Handler) ListCases(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"items": h.Board.Views()})
}

// GetCase returns one active case by display ID.
//
// GET /cases/:id
func (h *Handler) GetCase(c *gin.Context) {
	display, err := strconv.Atoi(c.Param("id"))
	if err != nil || display < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "case id must be a non-negative integer")
		return
	}
	v, found := h.Board.View(display)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "case not found")
		return
	}
	ok(c, http.StatusOK, v)
}

// ListRecent returns the recently-closed cache, newest first.
//
// GET /cases/recent
func (h *Handler) ListRecent(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"items": h.Board.RecentlyClosed()})
}

// BoardStatus returns the aggregate board state.
//
// GET /board
func (h *Handler) BoardStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.Board.Status())
}

// TriggerSync runs a full reconciliation on operator demand.
//
// POST /board/sync
func (h *Handler) TriggerSync(c *gin.Context) {
	summary, err := h.Board.Sync(c.Request.Context())
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeSyncFailed, "reconciliation against the remote store failed")
		return
	}
	ok(c, http.StatusOK, summary)
}

// ListArchive returns recently archived cases from local storage.
//
// GET /archive?limit=n
func (h *Handler) ListArchive(c *gin.Context) {
	if h.Archive == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "archive not configured")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 20)
	if limit < 1 || limit > 200 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 1 and 200")
		return
	}
	rows, err := h.Archive.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "archive query failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": rows})
}
