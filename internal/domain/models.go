// Package domain defines the persistence model for order follow-up records.
// The type is mapped with GORM and forms the core data layer of the review
// follow-up application.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Comment sources recorded when a follow-up record is marked as commented.
// Auto means the reconciliation engine matched an incoming product comment;
// manual means a staff member used the override action.
const (
	CommentSourceAuto   = "auto"
	CommentSourceManual = "manual"
)

// FollowupRecord tracks the review-request lifecycle of one completed order.
// One row exists per order; the unique index on OrderID makes record creation
// idempotent so historical imports can be re-run safely.
//
// Fields:
//   - ID: autoincrement primary key.
//   - OrderID: originating order identifier; unique per record.
//   - CustomerEmail: billing email, the reconciliation join key.
//   - CustomerPhone: raw phone string as captured at checkout; normalization
//     happens only at link-generation time.
//   - ProductIDs: comma-joined product identifiers from the order line items.
//   - MessagesSent: number of WhatsApp prompts recorded, capped by the
//     configured maximum.
//   - LastMessageDate: set on every successful send; NULL until the first.
//   - HasCommented: monotonic flag, never reverts once true.
//   - CommentDate: set once, when HasCommented first transitions to true.
//   - CommentSource: "auto" (reconciled comment) or "manual" (staff override).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type FollowupRecord struct {
	ID              uint       `json:"id"                gorm:"primaryKey"`
	OrderID         int64      `json:"order_id"          gorm:"not null;uniqueIndex:ux_followup_order"`
	CustomerEmail   string     `json:"customer_email"    gorm:"type:varchar(100);not null;index"`
	CustomerPhone   string     `json:"customer_phone"    gorm:"type:varchar(20);not null"`
	ProductIDs      string     `json:"product_ids"       gorm:"type:text;not null"`
	MessagesSent    int        `json:"messages_sent"     gorm:"not null;default:0"`
	LastMessageDate *time.Time `json:"last_message_date" gorm:"index"`
	HasCommented    bool       `json:"has_commented"     gorm:"not null;default:false;index"`
	CommentDate     *time.Time `json:"comment_date"`
	CommentSource   string     `json:"comment_source,omitempty" gorm:"type:varchar(10);not null;default:''"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name for FollowupRecord.
func (FollowupRecord) TableName() string { return "followup_records" }

// Products returns the product ID set parsed from the stored comma-joined
// form. Blank and malformed entries are skipped.
func (r FollowupRecord) Products() []int64 {
	return SplitProductIDs(r.ProductIDs)
}

// HasProduct reports whether productID is part of the order's line items.
func (r FollowupRecord) HasProduct(productID int64) bool {
	for _, id := range r.Products() {
		if id == productID {
			return true
		}
	}
	return false
}

// JoinProductIDs renders a product ID set in the stored comma-joined form.
// Order is preserved as given; callers treat the set as unordered.
func JoinProductIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// SplitProductIDs parses the stored comma-joined product ID form. Blank and
// malformed entries are skipped rather than treated as errors, matching how
// the admin view tolerates legacy rows.
func SplitProductIDs(s string) []int64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
