package domain

import (
	"time"
)

type QuestionStatus string

const (
	StatusPending    QuestionStatus = "pending"
	StatusAssigned   QuestionStatus = "assigned"
	StatusInProgress QuestionStatus = "in_progress"
	StatusAnswered   QuestionStatus = "answered"
	StatusClosed     QuestionStatus = "closed"
)

func (s QuestionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusAnswered, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions or appends are possible.
func (s QuestionStatus) Terminal() bool {
	return s == StatusClosed
}

// Question is one consultation thread.
type Question struct {
	Id          QuestionId     `json:"id"`
	AskerId     UserId         `json:"asker_id"`
	AssignedTo  *UserId        `json:"assigned_to,omitempty"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      QuestionStatus `json:"status"`
	IsPublic    bool           `json:"is_public"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	AnsweredAt  *time.Time     `json:"answered_at,omitempty"`
}

// AssignedResponder reports whether userId is the currently assigned responder.
func (q *Question) AssignedResponder(userId UserId) bool {
	return q.AssignedTo != nil && *q.AssignedTo == userId
}

// to iterate thru layers: handler -> service -> storage
type QuestionCreationData struct {
	Asker       User
	Category    string
	Title       string
	Description string
	IsPublic    bool
}

// StatusChange carries one lifecycle transition to the store, which applies
// it conditionally: the update must find the question still in From.
type StatusChange struct {
	From       QuestionStatus
	To         QuestionStatus
	AnsweredAt *time.Time // set only when the transition stamps answered_at
}
