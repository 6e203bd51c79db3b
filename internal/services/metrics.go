// Package services – domain metrics.
//
// Prometheus collectors for the follow-up domain. HTTP-level metrics live in
// the middleware package; the counters here track business events regardless
// of which transport triggered them.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// recordsTracked counts newly created follow-up records (order-completed
	// events and imports; duplicates are not counted).
	recordsTracked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "followup_records_tracked_total",
		Help: "Total number of follow-up records created.",
	})

	// messagesRecorded counts successfully recorded WhatsApp prompts.
	messagesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "followup_messages_recorded_total",
		Help: "Total number of WhatsApp prompts recorded against follow-up records.",
	})

	// commentsReconciled counts records flipped to commented by the
	// reconciliation engine (manual overrides excluded).
	commentsReconciled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "followup_comments_reconciled_total",
		Help: "Total number of follow-up records matched to product comments.",
	})
)

func init() {
	prometheus.MustRegister(recordsTracked, messagesRecorded, commentsReconciled)
}
