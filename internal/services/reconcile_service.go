// Package services – ReconcileService
//
// This file implements the ReconcileService, which matches comment-created
// events from the host platform against outstanding follow-up records and
// flips their commented state. Matching is delegated to the repository's
// two-phase update (exact email first, case-insensitive fallback second);
// this layer filters out non-product comments and empty author emails.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dukahub/go-followup-backend/internal/repo"
)

// ProductPostType is the host-platform post type carried by comment events
// that concern a product review. Events for any other post type are ignored.
const ProductPostType = "product"

// CommentEvent is the comment-created payload delivered by the host
// platform whenever a review is posted.
type CommentEvent struct {
	PostID      int64  `json:"comment_post_id"`
	PostType    string `json:"comment_post_type"`
	AuthorEmail string `json:"comment_author_email"`
}

// ReconcileService matches inbound comment events to follow-up records.
type ReconcileService struct {
	// DB is the GORM handle used for all reconciliation updates.
	DB *gorm.DB
}

// HandleComment processes one comment-created event.
//
// Semantics:
//   - Only events with PostType == "product" are acted on; everything else
//     returns (0, nil).
//   - Events without an author email are skipped (guest comment artifacts).
//   - Matching records get has_commented=true; a record that already
//     commented remains a valid match target but keeps its original
//     comment_date and comment_source.
//
// The returned count is the number of records updated by the winning match
// phase. Zero matches is expected for comments unrelated to any tracked
// order and is not an error.
func (s *ReconcileService) HandleComment(ctx context.Context, ev CommentEvent) (int64, error) {
	if ev.PostType != ProductPostType {
		return 0, nil
	}
	email := strings.TrimSpace(ev.AuthorEmail)
	if email == "" {
		return 0, nil
	}

	matched, err := repo.MarkCommented(ctx, s.DB, email, ev.PostID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	commentsReconciled.Add(float64(matched))
	log.Debug().
		Str("email", email).
		Int64("product_id", ev.PostID).
		Int64("matched", matched).
		Msg("comment reconciled")
	return matched, nil
}
