package domain

import "time"

type NotificationType string

const (
	NotifQuestionReceived NotificationType = "question_received"
	NotifAnswerProvided   NotificationType = "answer_provided"
	NotifFollowUp         NotificationType = "follow_up"
	NotifNewConsultation  NotificationType = "new_consultation"
)

// Notification is a persisted inbox entry for a participant who may be
// offline when the event happens. Live delivery goes through the registry;
// this record and the outbound notify request are best-effort extras.
type Notification struct {
	Id         NotifId          `json:"id"`
	UserId     UserId           `json:"user_id"`
	Type       NotificationType `json:"type"`
	Subject    string           `json:"subject"`
	Body       string           `json:"body,omitempty"`
	QuestionId QuestionId       `json:"question_id"`
	IsRead     bool             `json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}
