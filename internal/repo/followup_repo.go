// Package repo implements the data persistence layer for follow-up records,
// backed by GORM. This file provides repository functions for the
// FollowupRecord model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateRecord(ctx, db, orderID, email, phone, productIDs) -> *domain.FollowupRecord, bool, error
//     Inserts a follow-up row, or returns the existing row when the order is
//     already tracked (idempotent creation keyed on order_id).
//
//   - GetRecord(ctx, db, id) -> *domain.FollowupRecord, error
//     Fetches a single record by ID, or ErrNotFound if missing.
//
//   - CountRecords(ctx, db, filter) -> (int64, error)
//     Returns the number of records matching the status filter.
//
//   - ListRecordsPage(ctx, db, filter, offset, limit) -> []domain.FollowupRecord, error
//     Returns a paginated slice ordered by last_message_date descending with
//     never-messaged rows sorted last.
//
//   - IncrementMessages(ctx, db, id, maxMessages, now) -> (bool, error)
//     Single conditional UPDATE that bumps the send counter and stamps
//     last_message_date, refusing commented or capped rows.
//
//   - MarkCommented(ctx, db, email, productID, now) -> (int64, error)
//     Two-phase reconciliation update (exact email match, then
//     case-insensitive fallback).
//
//   - ForceCommented(ctx, db, id, now) -> error
//     Idempotent manual override; ErrNotFound when the row is absent.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.FollowupService) which enforces the messaging cap and maps
// blocked updates to stable service errors.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dukahub/go-followup-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// StatusFilter selects follow-up records by review status.
type StatusFilter string

// Recognized status filters for listing and counting.
const (
	FilterAll          StatusFilter = "all"
	FilterCommented    StatusFilter = "commented"
	FilterNotCommented StatusFilter = "not_commented"
)

// ParseStatusFilter maps a raw query value to a StatusFilter, defaulting to
// FilterNotCommented (the admin view's "needs follow-up" tab) for unknown or
// empty input.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterAll:
		return FilterAll
	case FilterCommented:
		return FilterCommented
	default:
		return FilterNotCommented
	}
}

// scopeFilter applies a status filter to a FollowupRecord query.
func scopeFilter(q *gorm.DB, filter StatusFilter) *gorm.DB {
	switch filter {
	case FilterCommented:
		return q.Where("has_commented = ?", true)
	case FilterNotCommented:
		return q.Where("has_commented = ?", false)
	default:
		return q
	}
}

// productSetMatch is the SQL predicate for membership in the comma-joined
// product_ids column. Padding both sides with commas turns substring search
// into exact element match.
const productSetMatch = "(',' || product_ids || ',') LIKE ('%,' || ? || ',%')"

// CreateRecord inserts a new follow-up row for orderID. Creation is
// idempotent: if the order is already tracked, the existing row is returned
// with created=false and no error, so bulk imports can be re-run safely.
func CreateRecord(ctx context.Context, db *gorm.DB, orderID int64, email, phone string, productIDs []int64) (*domain.FollowupRecord, bool, error) {
	var existing domain.FollowupRecord
	err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	rec := &domain.FollowupRecord{
		OrderID:       orderID,
		CustomerEmail: email,
		CustomerPhone: phone,
		ProductIDs:    domain.JoinProductIDs(productIDs),
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// A concurrent create can win the unique-index race; fall back to
		// the winner's row.
		if isDuplicate(err) {
			var winner domain.FollowupRecord
			if lookupErr := db.WithContext(ctx).Where("order_id = ?", orderID).First(&winner).Error; lookupErr == nil {
				return &winner, false, nil
			}
		}
		return nil, false, err
	}
	return rec, true, nil
}

// GetRecord fetches a single record by its ID. If the record does not exist,
// it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetRecord(ctx context.Context, db *gorm.DB, id uint) (*domain.FollowupRecord, error) {
	var rec domain.FollowupRecord
	if err := db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountRecords returns the number of records matching the status filter.
// On DB error, it returns the error.
func CountRecords(ctx context.Context, db *gorm.DB, filter StatusFilter) (int64, error) {
	var total int64
	err := scopeFilter(db.WithContext(ctx).Model(&domain.FollowupRecord{}), filter).
		Count(&total).Error
	return total, err
}

// ListRecordsPage returns a paginated slice of records matching the status
// filter, ordered by last_message_date descending with never-messaged rows
// (NULL last_message_date) sorted last. Use CountRecords to obtain the total
// for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListRecordsPage(ctx context.Context, db *gorm.DB, filter StatusFilter, offset, limit int) ([]domain.FollowupRecord, error) {
	var out []domain.FollowupRecord
	err := scopeFilter(db.WithContext(ctx), filter).
		Order("last_message_date IS NULL, last_message_date DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IncrementMessages bumps the send counter for a record and stamps
// last_message_date, in one conditional UPDATE:
//
//	UPDATE followup_records
//	SET messages_sent = messages_sent + 1, last_message_date = ?
//	WHERE id = ? AND has_commented = 0 AND messages_sent < ?
//
// It reports whether a row was updated. A false result with a nil error means
// the row exists but is either commented or at the cap (or is absent; callers
// distinguish via GetRecord). Folding the check into the UPDATE closes the
// read-then-write race between two concurrent send actions.
func IncrementMessages(ctx context.Context, db *gorm.DB, id uint, maxMessages int, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.FollowupRecord{}).
		Where("id = ? AND has_commented = ? AND messages_sent < ?", id, false, maxMessages).
		Updates(map[string]interface{}{
			"messages_sent":     gorm.Expr("messages_sent + 1"),
			"last_message_date": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkCommented flips has_commented on every record whose product set
// contains productID and whose customer email matches the comment author.
// Matching is two-phase: an exact (byte-for-byte) email comparison first,
// and a case-insensitive fallback only when the exact phase matched nothing.
// The fallback absorbs capitalization drift between billing and comment
// emails without weakening the exact phase when it succeeds.
//
// comment_date is preserved when already set (re-matching an already
// commented record never advances the timestamp) and comment_source is only
// stamped "auto" when previously empty. Returns the number of rows matched
// by the winning phase; zero matches is a valid outcome, not an error.
func MarkCommented(ctx context.Context, db *gorm.DB, email string, productID int64, now time.Time) (int64, error) {
	update := map[string]interface{}{
		"has_commented":  true,
		"comment_date":   gorm.Expr("COALESCE(comment_date, ?)", now),
		"comment_source": gorm.Expr("CASE WHEN comment_source = '' THEN ? ELSE comment_source END", domain.CommentSourceAuto),
	}

	res := db.WithContext(ctx).
		Model(&domain.FollowupRecord{}).
		Where("customer_email = ?", email).
		Where(productSetMatch, productID).
		Updates(update)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		return res.RowsAffected, nil
	}

	res = db.WithContext(ctx).
		Model(&domain.FollowupRecord{}).
		Where("LOWER(customer_email) = LOWER(?)", email).
		Where(productSetMatch, productID).
		Updates(update)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ForceCommented marks a record as commented regardless of its message count
// (manual staff override). The call is idempotent: once has_commented is
// true, repeated calls leave comment_date and comment_source untouched.
// Returns ErrNotFound if the record does not exist.
func ForceCommented(ctx context.Context, db *gorm.DB, id uint, now time.Time) error {
	rec, err := GetRecord(ctx, db, id)
	if err != nil {
		return err
	}
	if rec.HasCommented {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.FollowupRecord{}).
		Where("id = ? AND has_commented = ?", id, false).
		Updates(map[string]interface{}{
			"has_commented":  true,
			"comment_date":   now,
			"comment_source": domain.CommentSourceManual,
		}).Error
}

// isDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
