package service

import (
	"context"
	"fmt"
	"time"

	"github.com/counsel-dev/counsel/internal/domain"
	internal_errors "github.com/counsel-dev/counsel/internal/errors"
	"github.com/counsel-dev/counsel/internal/logger"
)

// ConsultationService is what the transport layer sees. *Consultation is
// the only production implementation.
type ConsultationService interface {
	CreateQuestion(data domain.QuestionCreationData) (domain.Question, error)
	AssignResponder(questionId domain.QuestionId, responderId domain.UserId, caller domain.User) (domain.Question, error)
	SubmitMessage(questionId domain.QuestionId, sender domain.User, kind domain.MessageKind, content string) (domain.Message, error)
	ForceClose(questionId domain.QuestionId, caller domain.User) (domain.Question, error)
	JoinThread(questionId domain.QuestionId, user domain.User, conn domain.EventSender) (domain.SessionId, error)
	LeaveThread(sessionId domain.SessionId)
	ReplayThread(questionId domain.QuestionId, afterId domain.MsgId, caller domain.User) ([]domain.Message, error)
	Question(questionId domain.QuestionId, caller domain.User) (domain.Question, []domain.Message, error)
	Questions(asker domain.UserId, status *domain.QuestionStatus, limit, offset int) ([]domain.Question, error)
	Queue(caller domain.User, limit, offset int) ([]domain.Question, error)
	ActiveParticipants(questionId domain.QuestionId, caller domain.User) ([]domain.UserId, error)
	Notifications(user domain.UserId, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	MarkNotificationRead(id domain.NotifId, user domain.UserId) error
}

// ConsultationStorage is the durable-store contract of the gateway. Every
// method is atomic per call; the conditional updates carry the expected
// current state so racing writers cannot both win.
type ConsultationStorage interface {
	CreateQuestion(data domain.QuestionCreationData) (domain.Question, error)
	GetQuestion(id domain.QuestionId) (domain.Question, error)
	QuestionsByAsker(asker domain.UserId, status *domain.QuestionStatus, limit, offset int) ([]domain.Question, error)
	QueueForResponder(responder domain.UserId, limit, offset int) ([]domain.Question, error)
	// AssignResponder applies the assignment only when the question is still
	// in expect (and unassigned, when requireUnassigned). A miss returns
	// ErrInvalidTransition.
	AssignResponder(id domain.QuestionId, responder domain.UserId, expect domain.QuestionStatus, requireUnassigned bool) (domain.Question, error)
	// CloseQuestion moves the question to Closed conditionally on change.From.
	CloseQuestion(id domain.QuestionId, change domain.StatusChange) (domain.Question, error)
}

// MessageLog is the append/replay contract of §4.2, implemented by msglog.
type MessageLog interface {
	Append(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error)
	Replay(questionId domain.QuestionId, afterId domain.MsgId) ([]domain.Message, error)
}

// ConnectionRegistry is the live fan-out contract. Delivery is best-effort
// at-most-once; durability lives in the MessageLog.
type ConnectionRegistry interface {
	Join(questionId domain.QuestionId, userId domain.UserId, conn domain.EventSender) domain.SessionId
	Leave(sessionId domain.SessionId) (domain.QuestionId, domain.UserId, bool)
	Broadcast(questionId domain.QuestionId, ev domain.Event)
	SendTo(userId domain.UserId, questionId domain.QuestionId, ev domain.Event)
	ActiveParticipants(questionId domain.QuestionId) []domain.UserId
}

// Notifier requests out-of-band delivery for offline participants.
// Fire-and-forget: failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, userId domain.UserId, kind domain.NotificationType, questionId domain.QuestionId, excerpt string) error
}

type NotificationStorage interface {
	SaveNotification(n domain.Notification) (domain.NotifId, error)
	NotificationsByUser(user domain.UserId, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	// MarkNotificationRead is scoped to the owning user; foreign ids return
	// ErrMessageNotFound-style not-found.
	MarkNotificationRead(id domain.NotifId, user domain.UserId) error
}

type ContentValidator interface {
	Content(text string) (string, error)
}

type TitleValidator interface {
	Title(title string) error
}

const excerptMaxLen = 120

// Consultation is the gateway façade over the thread state machine, the
// message log and the connection registry. Each write follows the same
// sequence: validate -> persist -> append -> broadcast -> notify, and any
// failure before the broadcast aborts the whole call.
type Consultation struct {
	storage       ConsultationStorage
	notifications NotificationStorage
	log           MessageLog
	registry      ConnectionRegistry
	notifier      Notifier
	content       ContentValidator
	title         TitleValidator
	clock         func() time.Time
	notifyTimeout time.Duration
}

func NewConsultation(
	storage ConsultationStorage,
	notifications NotificationStorage,
	log MessageLog,
	registry ConnectionRegistry,
	notifier Notifier,
	content ContentValidator,
	title TitleValidator,
	notifyTimeout time.Duration,
) *Consultation {
	return &Consultation{
		storage:       storage,
		notifications: notifications,
		log:           log,
		registry:      registry,
		notifier:      notifier,
		content:       content,
		title:         title,
		clock:         time.Now,
		notifyTimeout: notifyTimeout,
	}
}

// CreateQuestion opens a new thread in Pending. A non-empty description
// becomes the thread's opening question-kind message in the same store
// transaction.
func (c *Consultation) CreateQuestion(data domain.QuestionCreationData) (domain.Question, error) {
	if err := c.title.Title(data.Title); err != nil {
		return domain.Question{}, err
	}
	if data.Description != "" {
		sanitized, err := c.content.Content(data.Description)
		if err != nil {
			return domain.Question{}, err
		}
		data.Description = sanitized
	}

	question, err := c.storage.CreateQuestion(data)
	if err != nil {
		return domain.Question{}, err
	}
	return question, nil
}

// AssignResponder assigns (or lets a responder claim) a question. The store
// applies the update conditionally, so two racing claims resolve to exactly
// one winner.
func (c *Consultation) AssignResponder(questionId domain.QuestionId, responderId domain.UserId, caller domain.User) (domain.Question, error) {
	question, err := c.storage.GetQuestion(questionId)
	if err != nil {
		return domain.Question{}, err
	}
	if err := question.CanAssign(responderId, caller); err != nil {
		return domain.Question{}, err
	}

	requireUnassigned := caller.Role == domain.RoleResponder
	updated, err := c.storage.AssignResponder(questionId, responderId, question.Status, requireUnassigned)
	if err != nil {
		return domain.Question{}, err
	}

	c.registry.Broadcast(questionId, domain.Event{
		Type:       domain.EventAssigned,
		QuestionId: questionId,
		UserId:     responderId,
		At:         c.clock().UTC(),
	})

	// A self-claim tells the asker; an assignment tells the responder.
	recipient, kind := responderId, domain.NotifQuestionReceived
	if caller.Id == responderId {
		recipient, kind = updated.AskerId, domain.NotifNewConsultation
	}
	c.notifyAsync(recipient, kind, updated.Id, excerpt(updated.Title))

	return updated, nil
}

// SubmitMessage runs the full gateway sequence for one message. Errors
// before the append abort the call; once the append commits, the message is
// durable and live-delivery problems stay internal.
func (c *Consultation) SubmitMessage(questionId domain.QuestionId, sender domain.User, kind domain.MessageKind, content string) (domain.Message, error) {
	question, err := c.storage.GetQuestion(questionId)
	if err != nil {
		return domain.Message{}, err
	}
	if question.Status.Terminal() {
		return domain.Message{}, internal_errors.ErrThreadClosed
	}
	sanitized, err := c.content.Content(content)
	if err != nil {
		return domain.Message{}, err
	}
	if !question.CanPost(sender) {
		return domain.Message{}, fmt.Errorf("%w: sender is not a participant of this thread", internal_errors.ErrNotAuthorized)
	}

	change, err := question.NextStatus(sender, kind, c.clock().UTC())
	if err != nil {
		return domain.Message{}, err
	}

	msg, err := c.log.Append(domain.MessageCreationData{
		QuestionId: questionId,
		Sender:     sender,
		Kind:       kind,
		Content:    sanitized,
	}, change)
	if err != nil {
		return domain.Message{}, err
	}

	c.registry.Broadcast(questionId, domain.NewMessageEvent(msg))
	c.notifyCounterpart(&question, msg)

	return msg, nil
}

// ForceClose terminates a thread without requiring an answer. Moderation
// roles only.
func (c *Consultation) ForceClose(questionId domain.QuestionId, caller domain.User) (domain.Question, error) {
	question, err := c.storage.GetQuestion(questionId)
	if err != nil {
		return domain.Question{}, err
	}
	change, err := question.CloseChange(caller, c.clock().UTC())
	if err != nil {
		return domain.Question{}, err
	}

	closed, err := c.storage.CloseQuestion(questionId, *change)
	if err != nil {
		return domain.Question{}, err
	}

	c.registry.Broadcast(questionId, domain.Event{
		Type:       domain.EventClosed,
		QuestionId: questionId,
		UserId:     caller.Id,
		At:         c.clock().UTC(),
	})

	c.notifyAsync(closed.AskerId, domain.NotifFollowUp, closed.Id, "Thread was closed by a moderator")
	if closed.AssignedTo != nil {
		c.notifyAsync(*closed.AssignedTo, domain.NotifFollowUp, closed.Id, "Thread was closed by a moderator")
	}
	return closed, nil
}

// JoinThread registers a live connection for the thread after the §4.1
// participant check. The new session sees the join event too.
func (c *Consultation) JoinThread(questionId domain.QuestionId, user domain.User, conn domain.EventSender) (domain.SessionId, error) {
	question, err := c.storage.GetQuestion(questionId)
	if err != nil {
		return "", err
	}
	if question.Status.Terminal() {
		return "", internal_errors.ErrThreadClosed
	}
	if !question.CanPost(user) {
		return "", fmt.Errorf("%w: not a participant of this thread", internal_errors.ErrNotAuthorized)
	}

	sessionId := c.registry.Join(questionId, user.Id, conn)
	c.registry.Broadcast(questionId, domain.Event{
		Type:       domain.EventJoined,
		QuestionId: questionId,
		UserId:     user.Id,
		At:         c.clock().UTC(),
	})
	return sessionId, nil
}

// LeaveThread drops the session. Safe to call twice; only the first call
// announces the departure.
func (c *Consultation) LeaveThread(sessionId domain.SessionId) {
	questionId, userId, ok := c.registry.Leave(sessionId)
	if !ok {
		return
	}
	c.registry.Broadcast(questionId, domain.Event{
		Type:       domain.EventLeft,
		QuestionId: questionId,
		UserId:     userId,
		At:         c.clock().UTC(),
	})
}

// ReplayThread returns the thread history for catch-up. Works on closed
// threads: the log outlives the lifecycle.
func (c *Consultation) ReplayThread(questionId domain.QuestionId, afterId domain.MsgId, caller domain.User) ([]domain.Message, error) {
	question, err := c.storage.GetQuestion(questionId)
	if err != nil {
		return nil, err
	}
	if !question.CanView(caller) {
		return nil, fmt.Errorf("%w: not allowed to view this thread", internal_errors.ErrNotAuthorized)
	}
	return c.log.Replay(questionId, afterId)
}

// Question returns the thread detail (question + full log) for viewers.
func (c *Consultation) Question(questionId domain.QuestionId, caller domain.User) (domain.Question, []domain.Message, error) {
	question, err := c.storage.GetQuestion(questionId)
	if err != nil {
		return domain.Question{}, nil, err
	}
	if !question.CanView(caller) {
		return domain.Question{}, nil, fmt.Errorf("%w: not allowed to view this thread", internal_errors.ErrNotAuthorized)
	}
	messages, err := c.log.Replay(questionId, 0)
	if err != nil {
		return domain.Question{}, nil, err
	}
	return question, messages, nil
}

// Questions lists the caller's own threads, optionally filtered by status.
func (c *Consultation) Questions(asker domain.UserId, status *domain.QuestionStatus, limit, offset int) ([]domain.Question, error) {
	if status != nil && !status.Valid() {
		return nil, &internal_errors.ValidationError{Message: fmt.Sprintf("unknown status %q", *status)}
	}
	return c.storage.QuestionsByAsker(asker, status, limit, offset)
}

// Queue lists a responder's open assignments.
func (c *Consultation) Queue(caller domain.User, limit, offset int) ([]domain.Question, error) {
	if caller.Role != domain.RoleResponder && !caller.Role.Moderates() {
		return nil, fmt.Errorf("%w: only responders have a queue", internal_errors.ErrNotAuthorized)
	}
	return c.storage.QueueForResponder(caller.Id, limit, offset)
}

// ActiveParticipants exposes presence for a thread. Visibility follows the
// same rule as reading the thread itself.
func (c *Consultation) ActiveParticipants(questionId domain.QuestionId, caller domain.User) ([]domain.UserId, error) {
	question, err := c.storage.GetQuestion(questionId)
	if err != nil {
		return nil, err
	}
	if !question.CanView(caller) {
		return nil, fmt.Errorf("%w: not allowed to view this thread", internal_errors.ErrNotAuthorized)
	}
	return c.registry.ActiveParticipants(questionId), nil
}

// Notifications lists the caller's inbox.
func (c *Consultation) Notifications(user domain.UserId, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	return c.notifications.NotificationsByUser(user, unreadOnly, limit, offset)
}

func (c *Consultation) MarkNotificationRead(id domain.NotifId, user domain.UserId) error {
	return c.notifications.MarkNotificationRead(id, user)
}

// notifyCounterpart picks who is NOT the sender and requests an offline
// notification for them.
func (c *Consultation) notifyCounterpart(question *domain.Question, msg domain.Message) {
	var recipient domain.UserId
	var kind domain.NotificationType
	switch {
	case msg.SenderId == question.AskerId:
		if question.AssignedTo == nil {
			return
		}
		recipient, kind = *question.AssignedTo, domain.NotifFollowUp
	case msg.Kind == domain.MsgAnswer:
		recipient, kind = question.AskerId, domain.NotifAnswerProvided
	default:
		recipient, kind = question.AskerId, domain.NotifFollowUp
	}
	c.notifyAsync(recipient, kind, question.Id, excerpt(msg.Content))
}

// notifyAsync runs the notification step in the background with its own
// deadline. Its failure must never surface to the submitting caller.
func (c *Consultation) notifyAsync(recipient domain.UserId, kind domain.NotificationType, questionId domain.QuestionId, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.notifyTimeout)
		defer cancel()

		n := domain.Notification{
			UserId:     recipient,
			Type:       kind,
			Subject:    subjectFor(kind),
			Body:       text,
			QuestionId: questionId,
			CreatedAt:  c.clock().UTC(),
		}
		if _, err := c.notifications.SaveNotification(n); err != nil {
			logger.Log.Warn("saving notification", "user", recipient, "question", questionId, "err", err)
		}
		if err := c.notifier.Notify(ctx, recipient, kind, questionId, text); err != nil {
			logger.Log.Warn("requesting notification delivery", "user", recipient, "question", questionId, "err", err)
		}
	}()
}

func subjectFor(kind domain.NotificationType) string {
	switch kind {
	case domain.NotifQuestionReceived:
		return "A question was assigned to you"
	case domain.NotifAnswerProvided:
		return "Your question was answered"
	case domain.NotifFollowUp:
		return "New activity on your thread"
	case domain.NotifNewConsultation:
		return "A responder picked up your question"
	}
	return "Notification"
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptMaxLen {
		return text
	}
	return string(runes[:excerptMaxLen]) + "…"
}
