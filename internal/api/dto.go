package api

import (
	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/registry"
)

// Request DTOs

type CreateQuestionRequest struct {
	Category    string `json:"category"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public,omitempty"`
}

type AssignResponderRequest struct {
	ResponderId domain.UserId `json:"responder_id" validate:"required"`
}

type CreateMessageRequest struct {
	Kind    domain.MessageKind `json:"kind" validate:"required"`
	Content string             `json:"content" validate:"required"`
}

// Response DTOs

type QuestionResponse struct {
	domain.Question
}

// QuestionDetailResponse is the thread view: the question plus its full log
// and current presence.
type QuestionDetailResponse struct {
	domain.Question
	Messages     []domain.Message `json:"messages"`
	Participants []domain.UserId  `json:"participants,omitempty"`
}

type QuestionListResponse struct {
	Items  []domain.Question `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type MessageResponse struct {
	domain.Message
}

type MessageListResponse struct {
	Items []domain.Message `json:"items"`
}

type NotificationListResponse struct {
	Items []domain.Notification `json:"items"`
}

type ParticipantsResponse struct {
	Participants []domain.UserId `json:"participants"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Connections registry.Stats `json:"connections"`
}
