// Package registry tracks which participants are live-connected to which
// question threads and fans events out to them. Sessions are ephemeral:
// nothing here is persisted and a process restart loses connections but no
// data, because every client can catch up from the message log.
package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/logger"
)

var (
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thread_sessions_active",
			Help: "Number of live sessions across all question threads",
		},
	)
	threadsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threads_with_sessions",
			Help: "Number of question threads with at least one live session",
		},
	)
	deliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thread_delivery_failures_total",
			Help: "Sessions dropped because an event send failed",
		},
	)
)

type session struct {
	id         domain.SessionId
	questionId domain.QuestionId
	userId     domain.UserId
	conn       domain.EventSender
}

// room is one thread's session set. Each room has its own lock so different
// threads never contend.
type room struct {
	mu       sync.Mutex
	sessions map[domain.SessionId]*session
	byUser   map[domain.UserId]map[domain.SessionId]struct{}
}

func newRoom() *room {
	return &room{
		sessions: make(map[domain.SessionId]*session),
		byUser:   make(map[domain.UserId]map[domain.SessionId]struct{}),
	}
}

func (r *room) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
	userSessions, ok := r.byUser[s.userId]
	if !ok {
		userSessions = make(map[domain.SessionId]struct{})
		r.byUser[s.userId] = userSessions
	}
	userSessions[s.id] = struct{}{}
}

func (r *room) remove(s *session) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.id)
	if userSessions, ok := r.byUser[s.userId]; ok {
		delete(userSessions, s.id)
		if len(userSessions) == 0 {
			delete(r.byUser, s.userId)
		}
	}
	return len(r.sessions) == 0
}

// snapshot copies the current session list so sends happen outside the room
// lock; concurrent Join/Leave never block on a slow peer.
func (r *room) snapshot(userId *domain.UserId) []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	targets := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if userId != nil && s.userId != *userId {
			continue
		}
		targets = append(targets, s)
	}
	return targets
}

type Stats struct {
	Connections int `json:"connections"`
	Threads     int `json:"threads"`
	Users       int `json:"users"`
}

// Registry is the long-lived connection bookkeeper. The top-level maps are
// guarded by one RWMutex touched only for room lookup and session
// registration; event delivery for a thread serializes on that thread's
// room alone.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[domain.QuestionId]*room
	sessions map[domain.SessionId]*session
}

func New() *Registry {
	return &Registry{
		rooms:    make(map[domain.QuestionId]*room),
		sessions: make(map[domain.SessionId]*session),
	}
}

// Join registers a live connection for (questionId, userId). Multiple
// sessions per user are fine: every open tab gets its own session.
// Authorization happens in the gateway before the connection reaches here.
func (r *Registry) Join(questionId domain.QuestionId, userId domain.UserId, conn domain.EventSender) domain.SessionId {
	s := &session{
		id:         uuid.NewString(),
		questionId: questionId,
		userId:     userId,
		conn:       conn,
	}

	r.mu.Lock()
	rm, ok := r.rooms[questionId]
	if !ok {
		rm = newRoom()
		r.rooms[questionId] = rm
		threadsActive.Inc()
	}
	r.sessions[s.id] = s
	// Register in the room before releasing the registry lock, so a racing
	// empty-room cleanup cannot drop the room between the two steps.
	rm.add(s)
	r.mu.Unlock()

	sessionsActive.Inc()
	return s.id
}

// Leave removes the session and closes its connection. Idempotent: a second
// call for the same id is a no-op, never an error. Returns the session's
// coordinates so the caller can announce the departure.
func (r *Registry) Leave(sessionId domain.SessionId) (domain.QuestionId, domain.UserId, bool) {
	r.mu.Lock()
	s, ok := r.sessions[sessionId]
	if !ok {
		r.mu.Unlock()
		return 0, 0, false
	}
	delete(r.sessions, sessionId)
	rm := r.rooms[s.questionId]
	r.mu.Unlock()

	if rm != nil && rm.remove(s) {
		r.mu.Lock()
		// Re-check under the write lock: a Join may have raced the removal.
		if current, ok := r.rooms[s.questionId]; ok && current == rm {
			rm.mu.Lock()
			if len(rm.sessions) == 0 {
				delete(r.rooms, s.questionId)
				threadsActive.Dec()
			}
			rm.mu.Unlock()
		}
		r.mu.Unlock()
	}

	sessionsActive.Dec()
	if err := s.conn.Close(); err != nil {
		logger.Log.Debug("closing session connection", "session", sessionId, "err", err)
	}
	return s.questionId, s.userId, true
}

// Broadcast delivers ev to every live session on the thread. Best-effort,
// at-most-once: a failed send drops that one session and delivery continues
// for the rest. No retry; a dropped client re-joins and replays.
func (r *Registry) Broadcast(questionId domain.QuestionId, ev domain.Event) {
	r.deliver(questionId, nil, ev)
}

// SendTo is Broadcast scoped to one user's sessions on the thread.
func (r *Registry) SendTo(userId domain.UserId, questionId domain.QuestionId, ev domain.Event) {
	r.deliver(questionId, &userId, ev)
}

func (r *Registry) deliver(questionId domain.QuestionId, userId *domain.UserId, ev domain.Event) {
	r.mu.RLock()
	rm := r.rooms[questionId]
	r.mu.RUnlock()
	if rm == nil {
		return
	}

	for _, s := range rm.snapshot(userId) {
		if err := s.conn.Send(ev); err != nil {
			// DeliveryFailure stays internal: the session dies, the write
			// that produced the event already succeeded.
			deliveryFailures.Inc()
			logger.Log.Warn("dropping session after failed send",
				"session", s.id, "question", s.questionId, "user", s.userId, "err", err)
			r.Leave(s.id)
		}
	}
}

// ActiveParticipants returns the distinct connected users of a thread,
// sorted for stable presence output.
func (r *Registry) ActiveParticipants(questionId domain.QuestionId) []domain.UserId {
	r.mu.RLock()
	rm := r.rooms[questionId]
	r.mu.RUnlock()
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	users := make([]domain.UserId, 0, len(rm.byUser))
	for userId := range rm.byUser {
		users = append(users, userId)
	}
	rm.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Stats reports connection counts for health output.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	distinct := make(map[domain.UserId]struct{})
	for _, s := range r.sessions {
		distinct[s.userId] = struct{}{}
	}
	return Stats{
		Connections: len(r.sessions),
		Threads:     len(r.rooms),
		Users:       len(distinct),
	}
}
