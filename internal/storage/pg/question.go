package pg

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/counsel-dev/counsel/internal/domain"
	internal_errors "github.com/counsel-dev/counsel/internal/errors"
)

// unavailable keeps the driver failure readable while letting callers match
// with errors.Is(err, ErrStoreUnavailable).
func unavailable(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", internal_errors.ErrStoreUnavailable, action, err)
}

const questionColumns = `id, asker_id, assigned_to, category, title, description, status, is_public, created_at, updated_at, answered_at`

func scanQuestion(row interface{ Scan(...any) error }) (domain.Question, error) {
	var q domain.Question
	var assignedTo sql.NullInt64
	var answeredAt sql.NullTime
	err := row.Scan(
		&q.Id, &q.AskerId, &assignedTo, &q.Category, &q.Title, &q.Description,
		&q.Status, &q.IsPublic, &q.CreatedAt, &q.UpdatedAt, &answeredAt,
	)
	if err != nil {
		return domain.Question{}, err
	}
	if assignedTo.Valid {
		v := domain.UserId(assignedTo.Int64)
		q.AssignedTo = &v
	}
	if answeredAt.Valid {
		t := answeredAt.Time
		q.AnsweredAt = &t
	}
	return q, nil
}

// CreateQuestion opens the thread in pending. A non-empty description is
// written as the ordinal-1 opening message in the same transaction, so a
// thread can never exist half-created.
func (s *Storage) CreateQuestion(data domain.QuestionCreationData) (domain.Question, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.Question{}, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
        INSERT INTO questions (asker_id, category, title, description, status, is_public)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING `+questionColumns,
		data.Asker.Id, data.Category, data.Title, data.Description, domain.StatusPending, data.IsPublic,
	)
	question, err := scanQuestion(row)
	if err != nil {
		return domain.Question{}, unavailable("insert question", err)
	}

	if data.Description != "" {
		_, err = tx.Exec(`
            INSERT INTO messages (question_id, sender_id, sender_role, kind, content, ordinal, created_at)
            VALUES ($1, $2, $3, $4, $5, 1, $6)`,
			question.Id, data.Asker.Id, data.Asker.Role, domain.MsgQuestion, data.Description, question.CreatedAt,
		)
		if err != nil {
			return domain.Question{}, unavailable("insert opening message", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Question{}, unavailable("commit transaction", err)
	}
	return question, nil
}

func (s *Storage) GetQuestion(id domain.QuestionId) (domain.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Question{}, internal_errors.ErrQuestionNotFound
		}
		return domain.Question{}, unavailable("fetch question", err)
	}
	return question, nil
}

func (s *Storage) QuestionsByAsker(asker domain.UserId, status *domain.QuestionStatus, limit, offset int) ([]domain.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE asker_id = $1`
	args := []any{asker}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	return s.queryQuestions(query, args...)
}

// QueueForResponder returns the responder's open assignments, oldest first,
// so the longest-waiting asker surfaces at the top.
func (s *Storage) QueueForResponder(responder domain.UserId, limit, offset int) ([]domain.Question, error) {
	query := fmt.Sprintf(`
        SELECT `+questionColumns+`
        FROM questions
        WHERE assigned_to = $1 AND status IN ($2, $3)
        ORDER BY created_at
        LIMIT %d OFFSET %d`, limit, offset)
	return s.queryQuestions(query, responder, domain.StatusAssigned, domain.StatusInProgress)
}

func (s *Storage) queryQuestions(query string, args ...any) ([]domain.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, unavailable("fetch questions", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, unavailable("scan question", err)
		}
		questions = append(questions, q)
	}
	if err = rows.Err(); err != nil {
		return nil, unavailable("iterate questions", err)
	}
	return questions, nil
}

// AssignResponder applies the assignment only when the question is still in
// expect (and unassigned, when requireUnassigned). The WHERE clause is the
// arbiter under races: the loser's update matches zero rows.
func (s *Storage) AssignResponder(id domain.QuestionId, responder domain.UserId, expect domain.QuestionStatus, requireUnassigned bool) (domain.Question, error) {
	query := `
        UPDATE questions
        SET assigned_to = $1, status = $2, updated_at = now()
        WHERE id = $3 AND status = $4`
	if requireUnassigned {
		query += ` AND assigned_to IS NULL`
	}
	query += ` RETURNING ` + questionColumns

	row := s.db.QueryRow(query, responder, domain.StatusAssigned, id, expect)
	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Question{}, s.missedUpdate(id)
		}
		return domain.Question{}, unavailable("assign responder", err)
	}
	return question, nil
}

// CloseQuestion moves the question to closed conditionally on change.From.
func (s *Storage) CloseQuestion(id domain.QuestionId, change domain.StatusChange) (domain.Question, error) {
	row := s.db.QueryRow(`
        UPDATE questions
        SET status = $1, answered_at = COALESCE(answered_at, $2), updated_at = now()
        WHERE id = $3 AND status = $4
        RETURNING `+questionColumns,
		change.To, change.AnsweredAt, id, change.From,
	)
	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Question{}, s.missedUpdate(id)
		}
		return domain.Question{}, unavailable("close question", err)
	}
	return question, nil
}

// missedUpdate disambiguates a zero-row conditional update: the question is
// either gone or no longer in the expected state.
func (s *Storage) missedUpdate(id domain.QuestionId) error {
	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM questions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return unavailable("check question existence", err)
	}
	if !exists {
		return internal_errors.ErrQuestionNotFound
	}
	return internal_errors.ErrInvalidTransition
}
