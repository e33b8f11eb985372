// Package metrics exposes prometheus counters for inquiry intake and notification fan-out.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	SubmissionResultAccepted        = "accepted"
	SubmissionResultRejectedToken   = "rejected_token"
	SubmissionResultRejectedInvalid = "rejected_invalid"
	SubmissionResultStorageFailed   = "storage_failed"
	SubmissionResultRateLimited     = "rate_limited"

	NotificationChannelEmail     = "email"
	NotificationChannelWebhook   = "webhook"
	NotificationOutcomeDelivered = "delivered"
	NotificationOutcomeFailed    = "failed"

	submissionsCounterName   = "inquiry_submissions_total"
	notificationsCounterName = "inquiry_notifications_total"
	submissionsCounterHelp   = "Total number of inquiry submissions by result"
	notificationsCounterHelp = "Total number of inquiry notification attempts by channel and outcome"
	submissionResultLabel    = "result"
	notificationChannelLabel = "channel"
	notificationOutcomeLabel = "outcome"
)

var (
	InquirySubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: submissionsCounterName,
			Help: submissionsCounterHelp,
		},
		[]string{submissionResultLabel},
	)

	InquiryNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: notificationsCounterName,
			Help: notificationsCounterHelp,
		},
		[]string{notificationChannelLabel, notificationOutcomeLabel},
	)
)

// RecordSubmission counts one submission outcome.
func RecordSubmission(result string) {
	InquirySubmissions.WithLabelValues(result).Inc()
}

// RecordNotification counts one delivery attempt.
func RecordNotification(channel string, delivered bool) {
	outcome := NotificationOutcomeFailed
	if delivered {
		outcome = NotificationOutcomeDelivered
	}
	InquiryNotifications.WithLabelValues(channel, outcome).Inc()
}
