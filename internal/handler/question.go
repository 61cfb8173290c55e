package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/counsel-dev/counsel/internal/api"
	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/middleware"
	"github.com/counsel-dev/counsel/internal/utils"
)

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body api.CreateQuestionRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	question, err := h.consultation.CreateQuestion(domain.QuestionCreationData{
		Asker:       *user,
		Category:    body.Category,
		Title:       body.Title,
		Description: body.Description,
		IsPublic:    body.IsPublic,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, api.QuestionResponse{Question: question})
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
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

	question, messages, err := h.consultation.Question(questionId, *user)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	participants, err := h.consultation.ActiveParticipants(questionId, *user)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.QuestionDetailResponse{
		Question:     question,
		Messages:     messages,
		Participants: participants,
	})
}

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	limit, offset := h.pagination(r)

	var status *domain.QuestionStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed := domain.QuestionStatus(s)
		status = &parsed
	}

	questions, err := h.consultation.Questions(user.Id, status, limit, offset)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.QuestionListResponse{Items: questions, Limit: limit, Offset: offset})
}

// Queue lists the caller's open assignments, oldest first.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	limit, offset := h.pagination(r)

	questions, err := h.consultation.Queue(*user, limit, offset)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.QuestionListResponse{Items: questions, Limit: limit, Offset: offset})
}

func (h *Handler) AssignResponder(w http.ResponseWriter, r *http.Request) {
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

	var body api.AssignResponderRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	question, err := h.consultation.AssignResponder(questionId, body.ResponderId, *user)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.QuestionResponse{Question: question})
}

// ClaimQuestion is the responder shortcut: assign the question to yourself.
func (h *Handler) ClaimQuestion(w http.ResponseWriter, r *http.Request) {
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

	question, err := h.consultation.AssignResponder(questionId, user.Id, *user)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.QuestionResponse{Question: question})
}

func (h *Handler) CloseQuestion(w http.ResponseWriter, r *http.Request) {
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

	question, err := h.consultation.ForceClose(questionId, *user)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.QuestionResponse{Question: question})
}
