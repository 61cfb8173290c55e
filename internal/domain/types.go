package domain

type (
	UserId     = int64
	QuestionId = int64
	MsgId      = int64
	NotifId    = int64

	SessionId = string
)
