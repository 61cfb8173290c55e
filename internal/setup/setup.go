package setup

import (
	"context"

	"github.com/counsel-dev/counsel/internal/config"
	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/handler"
	"github.com/counsel-dev/counsel/internal/jwt"
	"github.com/counsel-dev/counsel/internal/logger"
	"github.com/counsel-dev/counsel/internal/middleware"
	"github.com/counsel-dev/counsel/internal/msglog"
	"github.com/counsel-dev/counsel/internal/notify"
	"github.com/counsel-dev/counsel/internal/registry"
	"github.com/counsel-dev/counsel/internal/service"
	"github.com/counsel-dev/counsel/internal/storage/pg"
	"github.com/counsel-dev/counsel/internal/utils"
)

// notifier is the outbound delivery port; both adapters satisfy it.
type notifier interface {
	Notify(ctx context.Context, userId domain.UserId, kind domain.NotificationType, questionId domain.QuestionId, excerpt string) error
	Close()
}

// Dependencies holds everything the router and the main loop need.
type Dependencies struct {
	Storage  *pg.Storage
	Registry *registry.Registry
	Handler  *handler.Handler
	Auth     *middleware.Auth
	Config   *config.Config

	notifier notifier
}

// SetupDependencies initializes all dependencies required for the application.
// The NATS notifier is used when configured; otherwise notifications fall
// back to the log-only adapter.
func SetupDependencies(cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(cfg)
	if err != nil {
		return nil, err
	}

	var n notifier
	if cfg.Private.NatsURL != "" {
		n, err = notify.NewNATS(cfg.Private.NatsURL)
		if err != nil {
			storage.Cleanup()
			return nil, err
		}
	} else {
		logger.Log.Warn("nats url not configured, notifications are log-only")
		n = notify.NewSlog()
	}

	identity := jwt.New(cfg.JwtKey(), cfg.JwtTTL())
	reg := registry.New()
	log := msglog.New(storage)

	consultation := service.NewConsultation(
		storage,
		storage,
		log,
		reg,
		n,
		utils.NewContentValidator(cfg.Public.MessageMaxLen),
		&utils.TitleValidator{},
		cfg.Public.NotifyTimeout,
	)

	h := handler.New(consultation, reg, storage, cfg)

	return &Dependencies{
		Storage:  storage,
		Registry: reg,
		Handler:  h,
		Auth:     middleware.NewAuth(identity),
		Config:   cfg,
		notifier: n,
	}, nil
}

// Cleanup releases the store connection and the notifier.
func (d *Dependencies) Cleanup() {
	d.notifier.Close()
	if err := d.Storage.Cleanup(); err != nil {
		logger.Log.Error("closing storage", "err", err)
	}
}
