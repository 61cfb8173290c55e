package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/counsel-dev/counsel/internal/api"
	"github.com/counsel-dev/counsel/internal/middleware"
	"github.com/counsel-dev/counsel/internal/utils"
)

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	limit, offset := h.pagination(r)
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := h.consultation.Notifications(user.Id, unreadOnly, limit, offset)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.NotificationListResponse{Items: notifications})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIntParam(mux.Vars(r)["notification"], "notification ID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.consultation.MarkNotificationRead(id, user.Id); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
