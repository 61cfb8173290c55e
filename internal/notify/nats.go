package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/logger"
)

const (
	streamName    = "NOTIFICATIONS"
	subjectPrefix = "notify"
)

// NATS publishes notification requests to a JetStream subject per user.
// The delivery worker (e-mail/SMS, out of scope here) consumes the stream;
// retention gives offline users a bounded window to be caught by it.
type NATS struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := js.Stream(ctx, streamName); err != nil {
		logger.Log.Info("notification stream not found, creating", "stream", streamName)
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        streamName,
			Description: "Outbound notification requests",
			Subjects:    []string{fmt.Sprintf("%s.*", subjectPrefix)},
			MaxAge:      72 * time.Hour,
			Storage:     jetstream.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream '%s': %w", streamName, err)
		}
	}

	return &NATS{nc: nc, js: js}, nil
}

func (n *NATS) Notify(ctx context.Context, userId domain.UserId, kind domain.NotificationType, questionId domain.QuestionId, excerpt string) error {
	req := Request{
		UserId:     userId,
		Kind:       kind,
		QuestionId: questionId,
		Excerpt:    excerpt,
		At:         time.Now().UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := fmt.Sprintf("%s.%d", subjectPrefix, userId)
	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish notification to '%s': %w", subject, err)
	}
	return nil
}

func (n *NATS) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}
