package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/counsel-dev/counsel/internal/api"
	"github.com/counsel-dev/counsel/internal/middleware"
	"github.com/counsel-dev/counsel/internal/utils"
)

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	questionId, err := parseIntParam(mux.Vars(r)["question"], "question ID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var body api.CreateMessageRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	msg, err := h.consultation.SubmitMessage(questionId, *user, body.Kind, body.Content)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, api.MessageResponse{Message: msg})
}

// ListMessages replays the ordered log, optionally after the "after"
// message id cursor.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	questionId, err := parseIntParam(mux.Vars(r)["question"], "question ID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var afterId int64
	if s := r.URL.Query().Get("after"); s != "" {
		afterId, err = parseIntParam(s, "after cursor")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	messages, err := h.consultation.ReplayThread(questionId, afterId, *user)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.MessageListResponse{Items: messages})
}

func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	questionId, err := parseIntParam(mux.Vars(r)["question"], "question ID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	participants, err := h.consultation.ActiveParticipants(questionId, *user)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSON(w, api.ParticipantsResponse{Participants: participants})
}
