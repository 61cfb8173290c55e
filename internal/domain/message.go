package domain

import (
	"time"
)

type MessageKind string

const (
	MsgQuestion      MessageKind = "question"
	MsgAnswer        MessageKind = "answer"
	MsgFollowUp      MessageKind = "follow_up"
	MsgClarification MessageKind = "clarification"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MsgQuestion, MsgAnswer, MsgFollowUp, MsgClarification:
		return true
	}
	return false
}

// Message is one entry in a question's log. A message never outlives or
// moves between questions; closing a question keeps its messages.
type Message struct {
	Id         MsgId       `json:"id"`
	QuestionId QuestionId  `json:"question_id"`
	SenderId   UserId      `json:"sender_id"`
	SenderRole Role        `json:"sender_role"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
	Ordinal    int64       `json:"ordinal"`    // per-question logical counter, strictly increasing
	CreatedAt  time.Time   `json:"created_at"` // server-assigned, strictly increasing within the question
}

// to iterate thru layers: handler -> service -> msglog
type MessageCreationData struct {
	QuestionId QuestionId
	Sender     User
	Kind       MessageKind
	Content    string
}
