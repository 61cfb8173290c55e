package pg

import (
	"database/sql"
	"errors"

	"github.com/counsel-dev/counsel/internal/domain"
	internal_errors "github.com/counsel-dev/counsel/internal/errors"
	"github.com/counsel-dev/counsel/internal/msglog"
)

func (s *Storage) QuestionStatus(id domain.QuestionId) (domain.QuestionStatus, error) {
	var status domain.QuestionStatus
	err := s.db.QueryRow(`SELECT status FROM questions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", internal_errors.ErrQuestionNotFound
		}
		return "", unavailable("fetch question status", err)
	}
	return status, nil
}

func (s *Storage) LastPosition(questionId domain.QuestionId) (msglog.Position, error) {
	var pos msglog.Position
	var createdAt sql.NullTime
	var ordinal sql.NullInt64
	err := s.db.QueryRow(`
        SELECT max(created_at), max(ordinal)
        FROM messages
        WHERE question_id = $1`, questionId).Scan(&createdAt, &ordinal)
	if err != nil {
		return msglog.Position{}, unavailable("fetch last log position", err)
	}
	if createdAt.Valid {
		pos.CreatedAt = createdAt.Time
		pos.Ordinal = ordinal.Int64
	}
	return pos, nil
}

// AppendMessage persists the message and, when change is non-nil, applies
// the lifecycle transition in the same transaction. SELECT ... FOR UPDATE
// pins the question row so a concurrent close cannot slip between the check
// and the insert.
func (s *Storage) AppendMessage(msg *domain.Message, change *domain.StatusChange) (domain.MsgId, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	var status domain.QuestionStatus
	err = tx.QueryRow(`SELECT status FROM questions WHERE id = $1 FOR UPDATE`, msg.QuestionId).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, internal_errors.ErrQuestionNotFound
		}
		return 0, unavailable("lock question", err)
	}
	if status.Terminal() {
		return 0, internal_errors.ErrThreadClosed
	}

	if change != nil {
		if status != change.From {
			return 0, internal_errors.ErrInvalidTransition
		}
		_, err = tx.Exec(`
            UPDATE questions
            SET status = $1, answered_at = COALESCE($2, answered_at), updated_at = now()
            WHERE id = $3`,
			change.To, change.AnsweredAt, msg.QuestionId,
		)
		if err != nil {
			return 0, unavailable("apply status transition", err)
		}
	}

	err = tx.QueryRow(`
        INSERT INTO messages (question_id, sender_id, sender_role, kind, content, ordinal, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`,
		msg.QuestionId, msg.SenderId, msg.SenderRole, msg.Kind, msg.Content, msg.Ordinal, msg.CreatedAt,
	).Scan(&msg.Id)
	if err != nil {
		return 0, unavailable("insert message", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit transaction", err)
	}
	return msg.Id, nil
}

// MessagesAfter returns the ordinal-ordered log after afterId, or the full
// log when afterId is zero.
func (s *Storage) MessagesAfter(questionId domain.QuestionId, afterId domain.MsgId) ([]domain.Message, error) {
	var afterOrdinal int64
	if afterId != 0 {
		err := s.db.QueryRow(`
            SELECT ordinal FROM messages WHERE id = $1 AND question_id = $2`,
			afterId, questionId).Scan(&afterOrdinal)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, internal_errors.ErrMessageNotFound
			}
			return nil, unavailable("resolve replay cursor", err)
		}
	}

	rows, err := s.db.Query(`
        SELECT id, question_id, sender_id, sender_role, kind, content, ordinal, created_at
        FROM messages
        WHERE question_id = $1 AND ordinal > $2
        ORDER BY ordinal`, questionId, afterOrdinal)
	if err != nil {
		return nil, unavailable("fetch messages", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		err := rows.Scan(
			&msg.Id, &msg.QuestionId, &msg.SenderId, &msg.SenderRole,
			&msg.Kind, &msg.Content, &msg.Ordinal, &msg.CreatedAt,
		)
		if err != nil {
			return nil, unavailable("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, unavailable("iterate messages", err)
	}
	return messages, nil
}
