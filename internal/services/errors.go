// Package services defines the business logic for order follow-up tracking,
// review reconciliation, and messaging limits. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrRecordNotFound indicates that the requested follow-up record does
	// not exist.
	ErrRecordNotFound = errors.New("follow-up record not found")

	// ErrInvalidOrder is returned when an order event carries a missing or
	// malformed identifier and is rejected before touching the store.
	ErrInvalidOrder = errors.New("order id and billing email are required")

	// ErrSendLimitReached is returned when recording a send would push a
	// record past the configured message cap.
	ErrSendLimitReached = errors.New("message limit reached for this order")

	// ErrAlreadyCommented is returned when a send is recorded against a
	// record whose customer has already left a review.
	ErrAlreadyCommented = errors.New("customer has already commented")
)
