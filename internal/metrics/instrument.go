package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/webhook"
)

// instrumentedSender records submission metrics around another sender
type instrumentedSender struct {
	next composer.Sender
}

// Instrument wraps a sender so every call is counted and timed against the
// global metrics. With no global metrics the wrapper is transparent.
func Instrument(next composer.Sender) composer.Sender {
	return &instrumentedSender{next: next}
}

func (s *instrumentedSender) Broadcast(ctx context.Context, message string, groups []string) (json.RawMessage, error) {
	m := Global()
	if m == nil {
		return s.next.Broadcast(ctx, message, groups)
	}

	m.SendsInFlight.Inc()
	defer m.SendsInFlight.Dec()
	start := time.Now()

	resp, err := s.next.Broadcast(ctx, message, groups)

	if errors.Is(err, webhook.ErrEmptyInput) {
		m.SubmissionsTotal.WithLabelValues(ResultRejected).Inc()
		return resp, err
	}

	m.WebhookDuration.Observe(time.Since(start).Seconds())
	m.WebhookResponsesTotal.WithLabelValues(responseClass(err)).Inc()

	if err != nil {
		m.SubmissionsTotal.WithLabelValues(ResultFailure).Inc()
		return resp, err
	}

	m.SubmissionsTotal.WithLabelValues(ResultSuccess).Inc()
	m.GroupsTargetedTotal.Add(float64(len(groups)))
	return resp, nil
}

// responseClass buckets a webhook result as 2xx, 3xx, 4xx, 5xx or transport
func responseClass(err error) string {
	if err == nil {
		return "2xx"
	}
	var statusErr *webhook.StatusError
	if !errors.As(err, &statusErr) {
		return "transport"
	}
	switch {
	case statusErr.StatusCode >= 500:
		return "5xx"
	case statusErr.StatusCode >= 400:
		return "4xx"
	case statusErr.StatusCode >= 300:
		return "3xx"
	default:
		return "other"
	}
}
