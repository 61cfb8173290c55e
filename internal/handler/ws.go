package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/counsel-dev/counsel/internal/domain"
	"github.com/counsel-dev/counsel/internal/logger"
	"github.com/counsel-dev/counsel/internal/middleware"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConn adapts one websocket connection to the registry's event sender.
// The mutex serializes writes: the registry, the error path and the ping
// ticker all write concurrently.
type wsConn struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	sendWait  time.Duration
	closeOnce sync.Once
}

func newWsConn(conn *websocket.Conn, sendWait time.Duration) *wsConn {
	return &wsConn{conn: conn, sendWait: sendWait}
}

func (c *wsConn) Send(ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.sendWait))
	return c.conn.WriteJSON(ev)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.sendWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(c.sendWait))
		c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// inboundMessage is what a live client sends over the socket.
type inboundMessage struct {
	Kind    domain.MessageKind `json:"kind"`
	Content string             `json:"content"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	allowed := h.cfg.Public.AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

// ThreadSocket attaches a live session to a question thread. The client
// receives every event broadcast to the thread and may submit messages as
// JSON frames. History is not replayed here: clients catch up over the REST
// log endpoint with the "after" cursor, then attach.
func (h *Handler) ThreadSocket(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	questionId, err := parseIntParam(mux.Vars(r)["question"], "question ID")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Debug("websocket upgrade failed", "err", err)
		return
	}
	session := newWsConn(conn, h.cfg.Public.SessionSendTimeout)

	sessionId, err := h.consultation.JoinThread(questionId, *user, session)
	if err != nil {
		session.Send(domain.Event{Type: domain.EventError, QuestionId: questionId, Error: err.Error(), At: time.Now().UTC()})
		session.Close()
		return
	}
	logger.Log.Debug("session attached", "question", questionId, "user", user.Id, "session", sessionId)

	defer func() {
		h.consultation.LeaveThread(sessionId)
		session.Close()
		logger.Log.Debug("session detached", "question", questionId, "user", user.Id, "session", sessionId)
	}()

	stop := make(chan struct{})
	defer close(stop)
	go h.pingLoop(session, stop)

	h.readLoop(conn, session, questionId, *user)
}

func (h *Handler) pingLoop(session *wsConn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := session.ping(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// readLoop consumes inbound frames until the peer goes away. Submission
// failures are reported back on the same session only; the thread never
// sees them.
func (h *Handler) readLoop(conn *websocket.Conn, session *wsConn, questionId domain.QuestionId, user domain.User) {
	conn.SetReadLimit(int64(h.cfg.Public.MessageMaxLen) * 4) // rune-to-byte headroom
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("websocket read error", "question", questionId, "user", user.Id, "err", err)
			}
			return
		}

		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			session.Send(domain.Event{Type: domain.EventError, QuestionId: questionId, Error: "malformed frame", At: time.Now().UTC()})
			continue
		}

		if _, err := h.consultation.SubmitMessage(questionId, user, inbound.Kind, inbound.Content); err != nil {
			session.Send(domain.Event{Type: domain.EventError, QuestionId: questionId, Error: err.Error(), At: time.Now().UTC()})
		}
	}
}
