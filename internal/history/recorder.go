package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/webhook"
)

// Submission sources
const (
	SourceWeb = "web"
	SourceAPI = "api"
	SourceCLI = "cli"
)

type recordingSender struct {
	next    composer.Sender
	storage *Storage
	source  string
	logger  *slog.Logger
}

// Record wraps a sender so every attempt that reaches the webhook is journaled.
// Journal write failures are logged and never fail the send.
func Record(next composer.Sender, storage *Storage, source string, logger *slog.Logger) composer.Sender {
	if storage == nil {
		return next
	}
	return &recordingSender{next: next, storage: storage, source: source, logger: logger}
}

func (r *recordingSender) Broadcast(ctx context.Context, message string, groups []string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := r.next.Broadcast(ctx, message, groups)

	if errors.Is(err, webhook.ErrEmptyInput) {
		return resp, err
	}

	entry := &Entry{
		ID:         uuid.New().String(),
		Source:     r.source,
		Groups:     append([]string(nil), groups...),
		Preview:    composer.Preview(message),
		Length:     utf8.RuneCountInString(message),
		Status:     StatusSent,
		DurationMs: time.Since(start).Milliseconds(),
		CreatedAt:  start,
	}
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
	}

	// The request context may already be gone
	if saveErr := r.storage.Save(context.WithoutCancel(ctx), entry); saveErr != nil {
		r.logger.Error("failed to record history entry", "error", saveErr)
	}

	return resp, err
}
