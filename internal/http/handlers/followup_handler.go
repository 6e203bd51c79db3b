// Follow-up HTTP handlers.
//
// This file exposes the admin endpoints for follow-up records:
//   - GET  /followups                  (list, filtered + paginated)
//   - GET  /followups/analytics        (dashboard totals)
//   - GET  /followups/{id}/link        (click-to-chat link for one record)
//   - POST /followups/{id}/messages    (record a WhatsApp send)
//   - POST /followups/{id}/commented   (manual "mark as commented" override)
//   - POST /followups/import           (bulk import of completed orders)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/dukahub/go-followup-backend/internal/domain"
	"github.com/dukahub/go-followup-backend/internal/repo"
	"github.com/dukahub/go-followup-backend/internal/services"
	"github.com/dukahub/go-followup-backend/internal/utils"
	"github.com/dukahub/go-followup-backend/internal/whatsapp"
)

//
// Service contracts (context-aware)
//

// FollowupService defines follow-up record operations consumed by HTTP
// handlers. Implementations should be safe for concurrent use and must honor
// the provided context for cancellation and timeouts.
type FollowupService interface {
	// Track records a newly completed order (idempotent on order id).
	Track(ctx context.Context, o services.Order) (*domain.FollowupRecord, bool, error)
	// Import bulk-loads historical completed orders, skipping duplicates.
	Import(ctx context.Context, orders []services.Order) (int, error)
	// Get fetches a single record.
	Get(ctx context.Context, id uint) (*domain.FollowupRecord, error)
	// CanSend reports whether another prompt is allowed for the record.
	CanSend(rec *domain.FollowupRecord) bool
	// RecordSent registers one outbound prompt, enforcing the cap atomically.
	RecordSent(ctx context.Context, id uint) (*domain.FollowupRecord, error)
	// ForceCommented applies the manual staff override.
	ForceCommented(ctx context.Context, id uint) error
	// ListPage returns a page of records matching the filter plus the total.
	ListPage(ctx context.Context, filter repo.StatusFilter, page, pageSize int) ([]domain.FollowupRecord, int64, error)
	// Analytics returns record totals and the conversion rate.
	Analytics(ctx context.Context) (repo.Analytics, error)
}

// ReconcileService defines the comment reconciliation operation.
type ReconcileService interface {
	// HandleComment matches a comment-created event against open records.
	HandleComment(ctx context.Context, ev services.CommentEvent) (int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for follow-up records and platform
// events. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	fuSvc FollowupService
	rcSvc ReconcileService

	formatter    whatsapp.Formatter
	storeBaseURL string
	maxMessages  int
}

// New constructs a Handlers instance bound to the given services and link
// configuration. storeBaseURL may be empty, in which case generated messages
// omit the product permalink.
func New(fuSvc FollowupService, rcSvc ReconcileService, formatter whatsapp.Formatter, storeBaseURL string, maxMessages int) *Handlers {
	return &Handlers{
		fuSvc:        fuSvc,
		rcSvc:        rcSvc,
		formatter:    formatter,
		storeBaseURL: storeBaseURL,
		maxMessages:  maxMessages,
	}
}

//
// DTOs
//

// ImportRequest is the JSON payload for bulk-importing completed orders.
// The host platform queries its own order store and posts the result here.
type ImportRequest struct {
	Orders []services.Order `json:"orders" binding:"required"`
}

// ImportResponse reports how many orders were newly tracked; orders already
// present, without a phone, or without products are skipped.
type ImportResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// RowLinks carries both click-to-chat link styles for a record.
type RowLinks struct {
	Web string `json:"web"`
	App string `json:"app"`
}

// FollowupRow is one admin-table row: the persisted record enriched with
// presentation fields (relative last-sent time, status badge, send
// affordance, and ready-made links).
type FollowupRow struct {
	ID              uint       `json:"id"`
	OrderID         int64      `json:"order_id"`
	CustomerEmail   string     `json:"customer_email"`
	CustomerPhone   string     `json:"customer_phone"`
	ProductIDs      []int64    `json:"product_ids"`
	MessagesSent    int        `json:"messages_sent"`
	MaxMessages     int        `json:"max_messages"`
	LastMessageDate *time.Time `json:"last_message_date,omitempty"`
	LastSent        string     `json:"last_sent"`
	Status          string     `json:"status"`
	CommentSource   string     `json:"comment_source,omitempty"`
	CanSend         bool       `json:"can_send"`
	Links           *RowLinks  `json:"links,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListFollowupsResponse wraps a page of rows and pagination information.
type ListFollowupsResponse struct {
	Followups  []FollowupRow `json:"followups"`
	Pagination Pagination    `json:"pagination"`
}

// RecordSentResponse returns the refreshed record state after a send is
// recorded, so the admin UI can update the counter and affordances in place.
type RecordSentResponse struct {
	Record  *domain.FollowupRecord `json:"record"`
	CanSend bool                   `json:"can_send"`
}

// LinkResponse is the response of the link endpoint.
type LinkResponse struct {
	Phone string `json:"phone"`
	Link  string `json:"link"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = services.DefaultPageSize
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// recordID parses the :id path parameter.
func recordID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// productLabels renders fallback display names for products when the host
// has not supplied real names ("#5, #9" style).
func productLabels(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("#%d", id))
	}
	return out
}

// productPermalink builds the storefront URL of the first product in the
// set, using the host's id-based permalink form. Empty when no base URL is
// configured or the record has no products.
func (h *Handlers) productPermalink(ids []int64) string {
	if h.storeBaseURL == "" || len(ids) == 0 {
		return ""
	}
	return fmt.Sprintf("%s/?p=%d", h.storeBaseURL, ids[0])
}

// buildLinks derives both link styles for a record. names may be empty, in
// which case id-based labels are used in the message text.
func (h *Handlers) buildLinks(rec *domain.FollowupRecord, names []string) RowLinks {
	ids := rec.Products()
	if len(names) == 0 {
		names = productLabels(ids)
	}
	phone := h.formatter.NormalizePhone(rec.CustomerPhone)
	msg := whatsapp.BuildMessage(rec.OrderID, names, h.productPermalink(ids))
	return RowLinks{
		Web: whatsapp.Link(whatsapp.LinkStyleWeb, phone, msg),
		App: whatsapp.Link(whatsapp.LinkStyleApp, phone, msg),
	}
}

// row converts a persisted record into its admin-table representation.
func (h *Handlers) row(rec *domain.FollowupRecord) FollowupRow {
	status := "pending"
	if rec.HasCommented {
		status = "commented"
	}
	lastSent := "never"
	if rec.LastMessageDate != nil {
		lastSent = humanize.Time(*rec.LastMessageDate)
	}

	canSend := h.fuSvc.CanSend(rec)
	r := FollowupRow{
		ID:              rec.ID,
		OrderID:         rec.OrderID,
		CustomerEmail:   rec.CustomerEmail,
		CustomerPhone:   rec.CustomerPhone,
		ProductIDs:      rec.Products(),
		MessagesSent:    rec.MessagesSent,
		MaxMessages:     h.maxMessages,
		LastMessageDate: rec.LastMessageDate,
		LastSent:        lastSent,
		Status:          status,
		CommentSource:   rec.CommentSource,
		CanSend:         canSend,
	}
	if canSend {
		links := h.buildLinks(rec, nil)
		r.Links = &links
	}
	return r
}

//
// Handlers
//

// ListFollowups returns a page of follow-up records for the admin table.
//
// Query params:
//   - filter:    all | commented | not_commented (default not_commented)
//   - page:      page number (default 1)
//   - page_size: rows per page (default 20, max 100)
func (h *Handlers) ListFollowups(c *gin.Context) {
	ctx := c.Request.Context()
	filter := repo.ParseStatusFilter(c.Query("filter"))
	page, pageSize := clampPagination(c)

	items, total, err := h.fuSvc.ListPage(ctx, filter, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	rows := make([]FollowupRow, 0, len(items))
	for i := range items {
		rows = append(rows, h.row(&items[i]))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListFollowupsResponse{
		Followups: rows,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetAnalytics returns dashboard totals and the comment conversion rate.
func (h *Handlers) GetAnalytics(c *gin.Context) {
	a, err := h.fuSvc.Analytics(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, a)
}

// GetLink returns a click-to-chat link for one record.
//
// Query params:
//   - style: web | app (default web)
//   - names: optional comma-separated product names supplied by the host;
//     when absent, id-based labels are used in the message text.
func (h *Handlers) GetLink(c *gin.Context) {
	id, okID := recordID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record id must be a positive integer")
		return
	}

	rec, err := h.fuSvc.Get(c.Request.Context(), id)
	if err != nil {
		if err == services.ErrRecordNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "follow-up record not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	var names []string
	if raw := strings.TrimSpace(c.Query("names")); raw != "" {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	style := whatsapp.ParseLinkStyle(c.Query("style"))
	links := h.buildLinks(rec, names)
	link := links.Web
	if style == whatsapp.LinkStyleApp {
		link = links.App
	}
	ok(c, http.StatusOK, LinkResponse{
		Phone: h.formatter.NormalizePhone(rec.CustomerPhone),
		Link:  link,
	})
}

// RecordSent registers one outbound WhatsApp prompt against a record. The
// counter bump is atomic with the cap check, so concurrent sends cannot
// exceed the limit; blocked sends return 409 with a domain-specific code.
func (h *Handlers) RecordSent(c *gin.Context) {
	id, okID := recordID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record id must be a positive integer")
		return
	}

	rec, err := h.fuSvc.RecordSent(c.Request.Context(), id)
	if err != nil {
		switch err {
		case services.ErrRecordNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "follow-up record not found")
		case services.ErrSendLimitReached:
			fail(c, http.StatusConflict, ErrCodeLimitReached, "message limit reached")
		case services.ErrAlreadyCommented:
			fail(c, http.StatusConflict, ErrCodeAlreadyCommented, "customer has already commented")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, RecordSentResponse{
		Record:  rec,
		CanSend: h.fuSvc.CanSend(rec),
	})
}

// ForceCommented marks a record as commented on behalf of staff. The call is
// idempotent and succeeds with 204 whether or not the record was already
// commented.
func (h *Handlers) ForceCommented(c *gin.Context) {
	id, okID := recordID(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record id must be a positive integer")
		return
	}

	if err := h.fuSvc.ForceCommented(c.Request.Context(), id); err != nil {
		if err == services.ErrRecordNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "follow-up record not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ImportOrders bulk-imports historical completed orders. Re-running an
// import with identical input is a no-op; the response separates newly
// imported orders from skipped ones.
func (h *Handlers) ImportOrders(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	imported, err := h.fuSvc.Import(c.Request.Context(), req.Orders)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeImportFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ImportResponse{
		Imported: imported,
		Skipped:  len(req.Orders) - imported,
	})
}
