// Platform event handlers.
//
// The host platform (the storefront) pushes two kinds of events here:
//   - order-completed: starts tracking a follow-up record for the order
//   - comment:         reconciles a product comment against open records
//
// Both endpoints are idempotent so hosts can safely retry deliveries.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukahub/go-followup-backend/internal/services"
)

// OrderCompletedResponse reports the tracked record and whether this event
// created it (false when the order was already tracked).
type OrderCompletedResponse struct {
	Record  FollowupRow `json:"record"`
	Created bool        `json:"created"`
}

// CommentEventResponse reports how many open records the comment closed.
// Zero is a normal outcome: the comment may target a non-product post, come
// from an unknown email, or hit records already marked as commented.
type CommentEventResponse struct {
	Matched int64 `json:"matched"`
}

// OrderCompleted tracks a follow-up record for a newly completed order.
// Returns 201 when a record is created and 200 when the order was already
// tracked, so host-side retries converge on the same state.
func (h *Handlers) OrderCompleted(c *gin.Context) {
	var o services.Order
	if err := c.ShouldBindJSON(&o); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rec, created, err := h.fuSvc.Track(c.Request.Context(), o)
	if err != nil {
		if err == services.ErrInvalidOrder {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "order id and billing email are required")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeTrackFailed, err.Error())
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, OrderCompletedResponse{
		Record:  h.row(rec),
		Created: created,
	})
}

// CommentCreated reconciles a comment-created event against open follow-up
// records by author email. Non-product comments and empty emails are
// ignored and report matched=0.
func (h *Handlers) CommentCreated(c *gin.Context) {
	var ev services.CommentEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	matched, err := h.rcSvc.HandleComment(c.Request.Context(), ev)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, CommentEventResponse{Matched: matched})
}
