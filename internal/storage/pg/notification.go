package pg

import (
	"fmt"
	"net/http"

	"github.com/counsel-dev/counsel/internal/domain"
	internal_errors "github.com/counsel-dev/counsel/internal/errors"
)

func (s *Storage) SaveNotification(n domain.Notification) (domain.NotifId, error) {
	var id domain.NotifId
	err := s.db.QueryRow(`
        INSERT INTO notifications (user_id, type, subject, body, question_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`,
		n.UserId, n.Type, n.Subject, n.Body, n.QuestionId, n.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, unavailable("insert notification", err)
	}
	return id, nil
}

func (s *Storage) NotificationsByUser(user domain.UserId, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	query := `
        SELECT id, user_id, type, subject, body, question_id, is_read, created_at
        FROM notifications
        WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.db.Query(query, user)
	if err != nil {
		return nil, unavailable("fetch notifications", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(&n.Id, &n.UserId, &n.Type, &n.Subject, &n.Body, &n.QuestionId, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, unavailable("scan notification", err)
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, unavailable("iterate notifications", err)
	}
	return notifications, nil
}

// MarkNotificationRead is scoped to the owning user, so one user cannot
// acknowledge another's inbox entries.
func (s *Storage) MarkNotificationRead(id domain.NotifId, user domain.UserId) error {
	res, err := s.db.Exec(`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, user)
	if err != nil {
		return unavailable("mark notification read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable("check update result", err)
	}
	if affected == 0 {
		return &internal_errors.ErrorWithStatusCode{Message: "Notification not found", StatusCode: http.StatusNotFound}
	}
	return nil
}
