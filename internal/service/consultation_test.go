package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counsel-dev/counsel/internal/domain"
	internal_errors "github.com/counsel-dev/counsel/internal/errors"
)

// mocks

type MockStorage struct {
	CreateQuestionFunc   func(data domain.QuestionCreationData) (domain.Question, error)
	GetQuestionFunc      func(id domain.QuestionId) (domain.Question, error)
	QuestionsByAskerFunc func(asker domain.UserId, status *domain.QuestionStatus, limit, offset int) ([]domain.Question, error)
	QueueFunc            func(responder domain.UserId, limit, offset int) ([]domain.Question, error)
	AssignFunc           func(id domain.QuestionId, responder domain.UserId, expect domain.QuestionStatus, requireUnassigned bool) (domain.Question, error)
	CloseFunc            func(id domain.QuestionId, change domain.StatusChange) (domain.Question, error)
}

func (m *MockStorage) CreateQuestion(data domain.QuestionCreationData) (domain.Question, error) {
	return m.CreateQuestionFunc(data)
}
func (m *MockStorage) GetQuestion(id domain.QuestionId) (domain.Question, error) {
	return m.GetQuestionFunc(id)
}
func (m *MockStorage) QuestionsByAsker(asker domain.UserId, status *domain.QuestionStatus, limit, offset int) ([]domain.Question, error) {
	return m.QuestionsByAskerFunc(asker, status, limit, offset)
}
func (m *MockStorage) QueueForResponder(responder domain.UserId, limit, offset int) ([]domain.Question, error) {
	return m.QueueFunc(responder, limit, offset)
}
func (m *MockStorage) AssignResponder(id domain.QuestionId, responder domain.UserId, expect domain.QuestionStatus, requireUnassigned bool) (domain.Question, error) {
	return m.AssignFunc(id, responder, expect, requireUnassigned)
}
func (m *MockStorage) CloseQuestion(id domain.QuestionId, change domain.StatusChange) (domain.Question, error) {
	return m.CloseFunc(id, change)
}

type MockLog struct {
	AppendFunc func(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error)
	ReplayFunc func(questionId domain.QuestionId, afterId domain.MsgId) ([]domain.Message, error)
}

func (m *MockLog) Append(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error) {
	return m.AppendFunc(data, change)
}
func (m *MockLog) Replay(questionId domain.QuestionId, afterId domain.MsgId) ([]domain.Message, error) {
	return m.ReplayFunc(questionId, afterId)
}

type MockRegistry struct {
	mu           sync.Mutex
	broadcast    []domain.Event
	joined       int
	LeaveFunc    func(sessionId domain.SessionId) (domain.QuestionId, domain.UserId, bool)
	participants []domain.UserId
}

func (m *MockRegistry) Join(q domain.QuestionId, u domain.UserId, conn domain.EventSender) domain.SessionId {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined++
	return "session-1"
}
func (m *MockRegistry) Leave(sessionId domain.SessionId) (domain.QuestionId, domain.UserId, bool) {
	if m.LeaveFunc != nil {
		return m.LeaveFunc(sessionId)
	}
	return 0, 0, false
}
func (m *MockRegistry) Broadcast(q domain.QuestionId, ev domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append(m.broadcast, ev)
}
func (m *MockRegistry) SendTo(u domain.UserId, q domain.QuestionId, ev domain.Event) {}
func (m *MockRegistry) ActiveParticipants(q domain.QuestionId) []domain.UserId {
	return m.participants
}

func (m *MockRegistry) Broadcasts() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.broadcast...)
}

type MockNotifier struct {
	mu    sync.Mutex
	calls []domain.UserId
	err   error
	done  chan struct{}
}

func (m *MockNotifier) Notify(ctx context.Context, userId domain.UserId, kind domain.NotificationType, questionId domain.QuestionId, excerpt string) error {
	m.mu.Lock()
	m.calls = append(m.calls, userId)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.err
}

func (m *MockNotifier) Calls() []domain.UserId {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UserId(nil), m.calls...)
}

type MockNotifStorage struct {
	mu    sync.Mutex
	saved []domain.Notification
	err   error
}

func (m *MockNotifStorage) SaveNotification(n domain.Notification) (domain.NotifId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, n)
	return domain.NotifId(len(m.saved)), m.err
}
func (m *MockNotifStorage) NotificationsByUser(user domain.UserId, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	return nil, nil
}
func (m *MockNotifStorage) MarkNotificationRead(id domain.NotifId, user domain.UserId) error {
	return nil
}

type passContent struct{}

func (passContent) Content(text string) (string, error) { return text, nil }

type passTitle struct{}

func (passTitle) Title(title string) error { return nil }

func newTestConsultation(st *MockStorage, log *MockLog, reg *MockRegistry, n *MockNotifier, ns *MockNotifStorage) *Consultation {
	return NewConsultation(st, ns, log, reg, n, passContent{}, passTitle{}, time.Second)
}

var (
	asker     = domain.User{Id: 1, Role: domain.RoleSeeker}
	responder = domain.User{Id: 2, Role: domain.RoleResponder}
	moderator = domain.User{Id: 3, Role: domain.RoleModerator}
	stranger  = domain.User{Id: 9, Role: domain.RoleSeeker}
)

func assignedQuestion() domain.Question {
	r := responder.Id
	return domain.Question{
		Id:         10,
		AskerId:    asker.Id,
		AssignedTo: &r,
		Title:      "Reading for next month",
		Status:     domain.StatusAssigned,
	}
}

func TestSubmitMessage_AnswerCollapsesToAnswered(t *testing.T) {
	q := assignedQuestion()
	var gotChange *domain.StatusChange
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	log := &MockLog{AppendFunc: func(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error) {
		gotChange = change
		return domain.Message{Id: 1, QuestionId: data.QuestionId, SenderId: data.Sender.Id, Kind: data.Kind, Content: data.Content}, nil
	}}
	reg := &MockRegistry{}
	notifier := &MockNotifier{done: make(chan struct{}, 1)}
	ns := &MockNotifStorage{}
	c := newTestConsultation(st, log, reg, notifier, ns)

	msg, err := c.SubmitMessage(q.Id, responder, domain.MsgAnswer, "Here is your answer")

	require.NoError(t, err)
	assert.Equal(t, domain.MsgAnswer, msg.Kind)
	require.NotNil(t, gotChange)
	assert.Equal(t, domain.StatusAssigned, gotChange.From)
	assert.Equal(t, domain.StatusAnswered, gotChange.To)
	assert.NotNil(t, gotChange.AnsweredAt)

	events := reg.Broadcasts()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMessage, events[0].Type)

	<-notifier.done
	assert.Equal(t, []domain.UserId{asker.Id}, notifier.Calls())
}

func TestSubmitMessage_PendingClaimWindow(t *testing.T) {
	q := domain.Question{Id: 11, AskerId: asker.Id, Status: domain.StatusPending, IsPublic: true}
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	log := &MockLog{AppendFunc: func(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error) {
		t.Fatal("append must not be reached")
		return domain.Message{}, nil
	}}
	c := newTestConsultation(st, log, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	// A responder inside the claim window is a participant, so the guard
	// table answers, not authorization.
	_, err := c.SubmitMessage(q.Id, responder, domain.MsgFollowUp, "any update?")
	assert.ErrorIs(t, err, internal_errors.ErrInvalidTransition)

	// A non-participant is cut off earlier.
	_, err = c.SubmitMessage(q.Id, stranger, domain.MsgFollowUp, "me too")
	assert.ErrorIs(t, err, internal_errors.ErrNotAuthorized)
}

func TestSubmitMessage_ClosedThread(t *testing.T) {
	q := assignedQuestion()
	q.Status = domain.StatusClosed
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	c := newTestConsultation(st, &MockLog{}, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	_, err := c.SubmitMessage(q.Id, responder, domain.MsgAnswer, "too late")
	assert.ErrorIs(t, err, internal_errors.ErrThreadClosed)
}

func TestSubmitMessage_NoReopenAfterAnswered(t *testing.T) {
	q := assignedQuestion()
	q.Status = domain.StatusAnswered
	var gotChange *domain.StatusChange
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	log := &MockLog{AppendFunc: func(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error) {
		gotChange = change
		return domain.Message{Id: 2, QuestionId: data.QuestionId, SenderId: data.Sender.Id, Kind: data.Kind}, nil
	}}
	c := newTestConsultation(st, log, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	_, err := c.SubmitMessage(q.Id, asker, domain.MsgFollowUp, "one more thing")
	require.NoError(t, err)
	assert.Nil(t, gotChange, "follow-up after an answer must not change status")
}

func TestSubmitMessage_AppendFailurePropagates(t *testing.T) {
	q := assignedQuestion()
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	log := &MockLog{AppendFunc: func(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error) {
		return domain.Message{}, internal_errors.ErrStoreUnavailable
	}}
	reg := &MockRegistry{}
	c := newTestConsultation(st, log, reg, &MockNotifier{}, &MockNotifStorage{})

	_, err := c.SubmitMessage(q.Id, responder, domain.MsgClarification, "which year?")
	assert.ErrorIs(t, err, internal_errors.ErrStoreUnavailable)
	assert.Empty(t, reg.Broadcasts(), "failed append must not broadcast")
}

func TestSubmitMessage_NotifierFailureIsInvisible(t *testing.T) {
	q := assignedQuestion()
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	log := &MockLog{AppendFunc: func(data domain.MessageCreationData, change *domain.StatusChange) (domain.Message, error) {
		return domain.Message{Id: 3, QuestionId: data.QuestionId, SenderId: data.Sender.Id, Kind: data.Kind}, nil
	}}
	notifier := &MockNotifier{err: errors.New("broker down"), done: make(chan struct{}, 1)}
	ns := &MockNotifStorage{err: errors.New("insert failed")}
	c := newTestConsultation(st, log, &MockRegistry{}, notifier, ns)

	_, err := c.SubmitMessage(q.Id, responder, domain.MsgAnswer, "done")
	require.NoError(t, err)
	<-notifier.done
}

func TestAssignResponder(t *testing.T) {
	base := domain.Question{Id: 12, AskerId: asker.Id, Status: domain.StatusPending, IsPublic: true, Title: "Career question"}

	t.Run("moderator assigns", func(t *testing.T) {
		var gotExpect domain.QuestionStatus
		var gotRequireUnassigned bool
		st := &MockStorage{
			GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return base, nil },
			AssignFunc: func(id domain.QuestionId, r domain.UserId, expect domain.QuestionStatus, requireUnassigned bool) (domain.Question, error) {
				gotExpect, gotRequireUnassigned = expect, requireUnassigned
				q := base
				q.AssignedTo = &r
				q.Status = domain.StatusAssigned
				return q, nil
			},
		}
		reg := &MockRegistry{}
		notifier := &MockNotifier{done: make(chan struct{}, 1)}
		c := newTestConsultation(st, &MockLog{}, reg, notifier, &MockNotifStorage{})

		q, err := c.AssignResponder(base.Id, responder.Id, moderator)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAssigned, q.Status)
		assert.Equal(t, domain.StatusPending, gotExpect)
		assert.False(t, gotRequireUnassigned)

		events := reg.Broadcasts()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventAssigned, events[0].Type)
		assert.Equal(t, responder.Id, events[0].UserId)

		<-notifier.done
		assert.Equal(t, []domain.UserId{responder.Id}, notifier.Calls())
	})

	t.Run("responder self-claim notifies asker", func(t *testing.T) {
		st := &MockStorage{
			GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return base, nil },
			AssignFunc: func(id domain.QuestionId, r domain.UserId, expect domain.QuestionStatus, requireUnassigned bool) (domain.Question, error) {
				assert.True(t, requireUnassigned)
				q := base
				q.AssignedTo = &r
				q.Status = domain.StatusAssigned
				return q, nil
			},
		}
		notifier := &MockNotifier{done: make(chan struct{}, 1)}
		c := newTestConsultation(st, &MockLog{}, &MockRegistry{}, notifier, &MockNotifStorage{})

		_, err := c.AssignResponder(base.Id, responder.Id, responder)
		require.NoError(t, err)
		<-notifier.done
		assert.Equal(t, []domain.UserId{asker.Id}, notifier.Calls())
	})

	t.Run("lost race surfaces conflict", func(t *testing.T) {
		st := &MockStorage{
			GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return base, nil },
			AssignFunc: func(id domain.QuestionId, r domain.UserId, expect domain.QuestionStatus, requireUnassigned bool) (domain.Question, error) {
				return domain.Question{}, internal_errors.ErrInvalidTransition
			},
		}
		c := newTestConsultation(st, &MockLog{}, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

		_, err := c.AssignResponder(base.Id, responder.Id, responder)
		assert.ErrorIs(t, err, internal_errors.ErrInvalidTransition)
	})

	t.Run("seeker cannot assign", func(t *testing.T) {
		st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return base, nil }}
		c := newTestConsultation(st, &MockLog{}, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

		_, err := c.AssignResponder(base.Id, responder.Id, stranger)
		assert.ErrorIs(t, err, internal_errors.ErrNotAuthorized)
	})
}

func TestForceClose(t *testing.T) {
	q := assignedQuestion()
	q.Status = domain.StatusInProgress

	var gotChange domain.StatusChange
	st := &MockStorage{
		GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil },
		CloseFunc: func(id domain.QuestionId, change domain.StatusChange) (domain.Question, error) {
			gotChange = change
			closed := q
			closed.Status = domain.StatusClosed
			closed.AnsweredAt = change.AnsweredAt
			return closed, nil
		},
	}
	reg := &MockRegistry{}
	notifier := &MockNotifier{done: make(chan struct{}, 2)}
	c := newTestConsultation(st, &MockLog{}, reg, notifier, &MockNotifStorage{})

	closed, err := c.ForceClose(q.Id, moderator)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, domain.StatusInProgress, gotChange.From)
	assert.NotNil(t, gotChange.AnsweredAt, "closing an unanswered thread stamps the resolution time")

	events := reg.Broadcasts()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventClosed, events[0].Type)

	// Both participants get told.
	<-notifier.done
	<-notifier.done
	assert.ElementsMatch(t, []domain.UserId{asker.Id, responder.Id}, notifier.Calls())
}

func TestForceClose_NonModerator(t *testing.T) {
	q := assignedQuestion()
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	c := newTestConsultation(st, &MockLog{}, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	_, err := c.ForceClose(q.Id, responder)
	assert.ErrorIs(t, err, internal_errors.ErrNotAuthorized)
}

func TestJoinAndLeaveThread(t *testing.T) {
	q := assignedQuestion()
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	reg := &MockRegistry{LeaveFunc: func(sessionId domain.SessionId) (domain.QuestionId, domain.UserId, bool) {
		return q.Id, responder.Id, sessionId == "session-1"
	}}
	c := newTestConsultation(st, &MockLog{}, reg, &MockNotifier{}, &MockNotifStorage{})

	sessionId, err := c.JoinThread(q.Id, responder, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionId("session-1"), sessionId)

	c.LeaveThread(sessionId)
	c.LeaveThread("stale") // second leave is a no-op

	events := reg.Broadcasts()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventJoined, events[0].Type)
	assert.Equal(t, domain.EventLeft, events[1].Type)
}

func TestJoinThread_Denied(t *testing.T) {
	q := assignedQuestion()
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	c := newTestConsultation(st, &MockLog{}, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	_, err := c.JoinThread(q.Id, stranger, nil)
	assert.ErrorIs(t, err, internal_errors.ErrNotAuthorized)

	closed := q
	closed.Status = domain.StatusClosed
	st.GetQuestionFunc = func(id domain.QuestionId) (domain.Question, error) { return closed, nil }
	_, err = c.JoinThread(q.Id, responder, nil)
	assert.ErrorIs(t, err, internal_errors.ErrThreadClosed)
}

func TestReplayThread(t *testing.T) {
	q := assignedQuestion()
	q.Status = domain.StatusClosed // history survives the lifecycle
	history := []domain.Message{{Id: 1, QuestionId: q.Id}, {Id: 2, QuestionId: q.Id}}

	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	log := &MockLog{ReplayFunc: func(questionId domain.QuestionId, afterId domain.MsgId) ([]domain.Message, error) {
		assert.Equal(t, domain.MsgId(1), afterId)
		return history[1:], nil
	}}
	c := newTestConsultation(st, log, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	got, err := c.ReplayThread(q.Id, 1, asker)
	require.NoError(t, err)
	assert.Equal(t, history[1:], got)

	_, err = c.ReplayThread(q.Id, 0, stranger)
	assert.ErrorIs(t, err, internal_errors.ErrNotAuthorized)
}

func TestActiveParticipants_SameVisibilityAsThread(t *testing.T) {
	q := assignedQuestion() // private: IsPublic is false
	st := &MockStorage{GetQuestionFunc: func(id domain.QuestionId) (domain.Question, error) { return q, nil }}
	reg := &MockRegistry{participants: []domain.UserId{asker.Id}}
	c := newTestConsultation(st, &MockLog{}, reg, &MockNotifier{}, &MockNotifStorage{})

	// Anyone denied the thread must be denied its presence list too.
	_, _, err := c.Question(q.Id, stranger)
	require.ErrorIs(t, err, internal_errors.ErrNotAuthorized)
	_, err = c.ActiveParticipants(q.Id, stranger)
	assert.ErrorIs(t, err, internal_errors.ErrNotAuthorized)

	got, err := c.ActiveParticipants(q.Id, asker)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserId{asker.Id}, got)

	st.GetQuestionFunc = func(id domain.QuestionId) (domain.Question, error) {
		return domain.Question{}, internal_errors.ErrQuestionNotFound
	}
	_, err = c.ActiveParticipants(99, asker)
	assert.ErrorIs(t, err, internal_errors.ErrQuestionNotFound)
}

func TestQuestions_InvalidStatusFilter(t *testing.T) {
	c := newTestConsultation(&MockStorage{}, &MockLog{}, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	bad := domain.QuestionStatus("resolved")
	_, err := c.Questions(asker.Id, &bad, 20, 0)
	var verr *internal_errors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestQueue_RoleGate(t *testing.T) {
	st := &MockStorage{QueueFunc: func(r domain.UserId, limit, offset int) ([]domain.Question, error) {
		return []domain.Question{{Id: 1}}, nil
	}}
	c := newTestConsultation(st, &MockLog{}, &MockRegistry{}, &MockNotifier{}, &MockNotifStorage{})

	got, err := c.Queue(responder, 20, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = c.Queue(asker, 20, 0)
	assert.ErrorIs(t, err, internal_errors.ErrNotAuthorized)
}
