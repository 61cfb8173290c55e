package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/counsel-dev/counsel/internal/config"
	"github.com/counsel-dev/counsel/internal/logger"
	"github.com/counsel-dev/counsel/internal/registry"
	"github.com/counsel-dev/counsel/internal/service"
)

// Pinger reports whether the durable store can handle requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	consultation service.ConsultationService
	registry     *registry.Registry
	health       Pinger
	cfg          *config.Config
}

func New(consultation service.ConsultationService, registry *registry.Registry, health Pinger, cfg *config.Config) *Handler {
	return &Handler{consultation, registry, health, cfg}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logger.Log.Error("encoding response", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
}
