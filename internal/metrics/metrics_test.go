package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordSubmissionIncrementsResultCounter(testingT *testing.T) {
	counter := InquirySubmissions.WithLabelValues(SubmissionResultAccepted)
	before := testutil.ToFloat64(counter)

	RecordSubmission(SubmissionResultAccepted)

	require.Equal(testingT, before+1, testutil.ToFloat64(counter))
}

func TestRecordNotificationSplitsOutcomes(testingT *testing.T) {
	delivered := InquiryNotifications.WithLabelValues(NotificationChannelWebhook, NotificationOutcomeDelivered)
	failed := InquiryNotifications.WithLabelValues(NotificationChannelWebhook, NotificationOutcomeFailed)
	deliveredBefore := testutil.ToFloat64(delivered)
	failedBefore := testutil.ToFloat64(failed)

	RecordNotification(NotificationChannelWebhook, true)
	RecordNotification(NotificationChannelWebhook, false)
	RecordNotification(NotificationChannelWebhook, false)

	require.Equal(testingT, deliveredBefore+1, testutil.ToFloat64(delivered))
	require.Equal(testingT, failedBefore+2, testutil.ToFloat64(failed))
}
