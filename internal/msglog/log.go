// Package msglog owns the append-only, per-question ordered message log.
// Appending under the per-question lock is the thread's single-writer
// serialization point: two concurrent submissions on one question are
// ordered here, different questions never contend.
package msglog

import (
	"sync"
	"time"

	"github.com/counsel-dev/counsel/internal/domain"
	internal_errors "github.com/counsel-dev/counsel/internal/errors"
)

// Position is the last assigned (created_at, ordinal) pair of a question's
// log, used to keep server-assigned timestamps strictly increasing even
// under clock skew.
type Position struct {
	CreatedAt time.Time
	Ordinal   int64
}

type Storage interface {
	// QuestionStatus returns ErrQuestionNotFound for unknown ids.
	QuestionStatus(id domain.QuestionId) (domain.QuestionStatus, error)
	// LastPosition returns the zero Position for an empty log.
	LastPosition(questionId domain.QuestionId) (Position, error)
	// AppendMessage persists msg and, when change is non-nil, applies the
	// status transition in the same transaction. The update is conditional
	// on change.From; a miss returns ErrInvalidTransition.
	AppendMessage(msg *domain.Message, change *domain.StatusChange) (domain.MsgId, error)
	// MessagesAfter returns the ordinal-ordered log after the given message
	// id, or the full log when afterId is zero. Unknown non-zero afterId
	// returns ErrMessageNotFound.
	MessagesAfter(questionId domain.QuestionId, afterId domain.MsgId) ([]domain.Message, error)
}

type Log struct {
	storage Storage
	clock   func() time.Time

	mu      sync.Mutex
	threads map[domain.QuestionId]*threadLog
}

// threadLog caches the tail position of one question's log. Seeded lazily
// from the store so the log survives process restarts without losing
// monotonicity.
type threadLog struct {
	mu     sync.Mutex
	seeded bool
	last   Position
}

func New(storage Storage) *Log {
	return &Log{
		storage: storage,
		clock:   time.Now,
		threads: make(map[domain.QuestionId]*threadLog),
	}
}

func (l *Log) thread(id domain.QuestionId) *threadLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.threads[id]
	if !ok {
		t = &threadLog{}
		l.threads[id] = t
	}
	return t
}

// Append assigns created_at and ordinal under the question's lock, persists
// the message together with any status transition, and returns the
// materialized message for the caller to broadcast.
func (l *Log) Append(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error) {
	status, err := l.storage.QuestionStatus(data.QuestionId)
	if err != nil {
		return domain.Message{}, err
	}
	if status.Terminal() {
		return domain.Message{}, internal_errors.ErrThreadClosed
	}

	t := l.thread(data.QuestionId)
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seeded {
		pos, err := l.storage.LastPosition(data.QuestionId)
		if err != nil {
			return domain.Message{}, err
		}
		t.last = pos
		t.seeded = true
	}

	createdAt := l.clock().UTC()
	if !createdAt.After(t.last.CreatedAt) {
		// Clock went backwards or stood still; the logical counter keeps
		// per-question order strict anyway.
		createdAt = t.last.CreatedAt.Add(time.Microsecond)
	}

	msg := domain.Message{
		QuestionId: data.QuestionId,
		SenderId:   data.Sender.Id,
		SenderRole: data.Sender.Role,
		Kind:       data.Kind,
		Content:    data.Content,
		Ordinal:    t.last.Ordinal + 1,
		CreatedAt:  createdAt,
	}

	id, err := l.storage.AppendMessage(&msg, change)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Id = id
	t.last = Position{CreatedAt: createdAt, Ordinal: msg.Ordinal}
	return msg, nil
}

// Replay returns the question's full or partial history in log order. Works
// on closed questions: history is never deleted.
func (l *Log) Replay(questionId domain.QuestionId, afterId domain.MsgId) ([]domain.Message, error) {
	if _, err := l.storage.QuestionStatus(questionId); err != nil {
		return nil, err
	}
	return l.storage.MessagesAfter(questionId, afterId)
}
