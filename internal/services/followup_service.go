// Package services – FollowupService
//
// This file implements the FollowupService, which owns the lifecycle of
// follow-up records: creation from order-completed events, idempotent bulk
// import of historical orders, the capped messaging counter, the manual
// "mark as commented" override, and the filtered/paginated admin listing.
// Service-level errors (e.g. ErrRecordNotFound, ErrSendLimitReached,
// ErrAlreadyCommented) are returned for predictable cases so handlers can
// map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dukahub/go-followup-backend/internal/domain"
	"github.com/dukahub/go-followup-backend/internal/repo"
)

// DefaultMaxMessages is the hard cap on outbound WhatsApp prompts per order.
const DefaultMaxMessages = 4

// DefaultPageSize is the admin-table page size.
const DefaultPageSize = 20

// Order is the order-completed payload delivered by the host commerce
// platform (and by the bulk import query, which returns the same shape).
type Order struct {
	OrderID    int64   `json:"order_id"`
	Email      string  `json:"billing_email"`
	Phone      string  `json:"billing_phone"`
	ProductIDs []int64 `json:"line_item_product_ids"`
}

// FollowupRepo defines the repository contract required by FollowupService.
// Implementations are responsible for persistence of follow-up records.
type FollowupRepo interface {
	// CreateRecord inserts a follow-up row, or returns the existing row for
	// an already-tracked order (created=false).
	CreateRecord(ctx context.Context, db *gorm.DB, orderID int64, email, phone string, productIDs []int64) (*domain.FollowupRecord, bool, error)

	// GetRecord fetches a record by ID, ErrNotFound when absent.
	GetRecord(ctx context.Context, db *gorm.DB, id uint) (*domain.FollowupRecord, error)

	// CountRecords returns the total matching the filter, for pagination.
	CountRecords(ctx context.Context, db *gorm.DB, filter repo.StatusFilter) (int64, error)

	// ListRecordsPage returns a page of records matching the filter.
	ListRecordsPage(ctx context.Context, db *gorm.DB, filter repo.StatusFilter, offset, limit int) ([]domain.FollowupRecord, error)

	// IncrementMessages performs the atomic capped counter update.
	IncrementMessages(ctx context.Context, db *gorm.DB, id uint, maxMessages int, now time.Time) (bool, error)

	// ForceCommented applies the manual staff override.
	ForceCommented(ctx context.Context, db *gorm.DB, id uint, now time.Time) error
}

// FollowupService provides follow-up record operations: tracking completed
// orders, importing history, gating and recording sends, manual overrides,
// listing, and analytics.
type FollowupService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the follow-up repository used by this service.
	Repo FollowupRepo

	// MaxMessages caps outbound prompts per record.
	MaxMessages int
}

// NewFollowupService constructs a FollowupService with the default message cap.
func NewFollowupService(db *gorm.DB, r FollowupRepo) *FollowupService {
	return &FollowupService{
		DB:          db,
		Repo:        r,
		MaxMessages: DefaultMaxMessages,
	}
}

// Track records a newly completed order. Duplicate order IDs are a
// success-no-op (the existing record is returned with created=false) so the
// completed-order hook and the bulk importer can overlap safely.
// Returns ErrInvalidOrder when the order id or billing email is missing.
func (s *FollowupService) Track(ctx context.Context, o Order) (*domain.FollowupRecord, bool, error) {
	if o.OrderID <= 0 || strings.TrimSpace(o.Email) == "" {
		return nil, false, ErrInvalidOrder
	}
	rec, created, err := s.Repo.CreateRecord(ctx, s.DB, o.OrderID, strings.TrimSpace(o.Email), strings.TrimSpace(o.Phone), o.ProductIDs)
	if err != nil {
		return nil, false, err
	}
	if created {
		recordsTracked.Inc()
	}
	return rec, created, nil
}

// Import bulk-loads historical completed orders. Orders without a phone
// number or without products are skipped (there is nothing to message or
// review), as are orders already tracked; the returned count covers newly
// created records only. Re-running an import with identical input is a no-op.
func (s *FollowupService) Import(ctx context.Context, orders []Order) (int, error) {
	imported := 0
	for _, o := range orders {
		if o.OrderID <= 0 || strings.TrimSpace(o.Email) == "" {
			continue
		}
		if strings.TrimSpace(o.Phone) == "" || len(o.ProductIDs) == 0 {
			continue
		}
		_, created, err := s.Track(ctx, o)
		if err != nil {
			return imported, err
		}
		if created {
			imported++
		}
	}
	return imported, nil
}

// CanSend reports whether another WhatsApp prompt may be sent for the
// record: the customer has not commented and the message cap is not reached.
func (s *FollowupService) CanSend(rec *domain.FollowupRecord) bool {
	return rec != nil && !rec.HasCommented && rec.MessagesSent < s.MaxMessages
}

// RecordSent registers one outbound WhatsApp prompt for the record. The
// counter bump and the cap check happen in a single conditional UPDATE, so
// two concurrent sends can never push a record past the cap. When the update
// is refused the record is re-read to surface the precise reason:
// ErrRecordNotFound, ErrAlreadyCommented, or ErrSendLimitReached.
// On success the refreshed record is returned.
func (s *FollowupService) RecordSent(ctx context.Context, id uint) (*domain.FollowupRecord, error) {
	updated, err := s.Repo.IncrementMessages(ctx, s.DB, id, s.MaxMessages, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !updated {
		rec, err := s.Repo.GetRecord(ctx, s.DB, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrRecordNotFound
			}
			return nil, err
		}
		if rec.HasCommented {
			return nil, ErrAlreadyCommented
		}
		return nil, ErrSendLimitReached
	}

	messagesRecorded.Inc()
	rec, err := s.Repo.GetRecord(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ForceCommented marks a record as commented on behalf of staff, regardless
// of the current message count. Idempotent; ErrRecordNotFound when absent.
func (s *FollowupService) ForceCommented(ctx context.Context, id uint) error {
	err := s.Repo.ForceCommented(ctx, s.DB, id, time.Now().UTC())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// Get fetches a single record, mapping missing rows to ErrRecordNotFound.
func (s *FollowupService) Get(ctx context.Context, id uint) (*domain.FollowupRecord, error) {
	rec, err := s.Repo.GetRecord(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListPage returns a page of records matching the status filter along with
// the total count. It applies defaults for invalid page/pageSize.
func (s *FollowupService) ListPage(ctx context.Context, filter repo.StatusFilter, page, pageSize int) ([]domain.FollowupRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountRecords(ctx, s.DB, filter)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.FollowupRecord{}, 0, nil
	}

	items, err := s.Repo.ListRecordsPage(ctx, s.DB, filter, offset, pageSize)
	return items, total, err
}

// Analytics returns record totals and the comment conversion rate.
func (s *FollowupService) Analytics(ctx context.Context) (repo.Analytics, error) {
	return repo.CollectAnalytics(ctx, s.DB)
}
