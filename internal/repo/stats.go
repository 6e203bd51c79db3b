// Package repo implements the data persistence layer for follow-up records,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the analytics endpoint of the admin dashboard. Each function is
// context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"math"

	"gorm.io/gorm"

	"github.com/dukahub/go-followup-backend/internal/domain"
)

// Analytics summarizes the follow-up table for the dashboard header boxes.
//
// ConversionRate is the share of tracked orders that received a comment,
// expressed as a percentage rounded to one decimal, and 0 when no records
// exist.
type Analytics struct {
	Total          int64   `json:"total"`
	Pending        int64   `json:"pending"`
	Commented      int64   `json:"commented"`
	ConversionRate float64 `json:"conversion_rate"`
}

// CollectAnalytics computes record totals and the comment conversion rate.
//
// It executes two lightweight COUNT queries; the pending figure is derived
// rather than queried since the commented flag is binary.
func CollectAnalytics(ctx context.Context, db *gorm.DB) (Analytics, error) {
	var out Analytics

	q := db.WithContext(ctx).Model(&domain.FollowupRecord{})
	if err := q.Count(&out.Total).Error; err != nil {
		return Analytics{}, err
	}
	if out.Total == 0 {
		return out, nil
	}

	if err := db.WithContext(ctx).
		Model(&domain.FollowupRecord{}).
		Where("has_commented = ?", true).
		Count(&out.Commented).Error; err != nil {
		return Analytics{}, err
	}

	out.Pending = out.Total - out.Commented
	out.ConversionRate = math.Round(float64(out.Commented)/float64(out.Total)*1000) / 10
	return out, nil
}
