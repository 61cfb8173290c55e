// Package notify holds the outbound adapters for the external notification
// service. The gateway calls them fire-and-forget: a failure here is logged
// and never rolls back or fails the write that triggered it.
package notify

import (
	"context"
	"time"

	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/logger"
)

// Request is the envelope handed to the external delivery worker. The
// excerpt is a short preview; full content is fetched from the thread.
type Request struct {
	UserId     domain.UserId           `json:"user_id"`
	Kind       domain.NotificationType `json:"kind"`
	QuestionId domain.QuestionId       `json:"question_id"`
	Excerpt    string                  `json:"excerpt"`
	At         time.Time               `json:"at"`
}

// Slog is the fallback notifier used when no broker is configured: it only
// records that a notification would have been sent.
type Slog struct{}

func NewSlog() *Slog {
	return &Slog{}
}

func (n *Slog) Notify(_ context.Context, userId domain.UserId, kind domain.NotificationType, questionId domain.QuestionId, excerpt string) error {
	logger.Log.Info("notification (no broker configured)",
		"user", userId, "kind", kind, "question", questionId, "excerpt", excerpt)
	return nil
}

func (n *Slog) Close() {}
