package websocket

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	SendQueueSize = 128
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameSize  = 64 * 1024
)

const (
	CloseSessionReplaced = 4000
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrBackpressure  = errors.New("session send queue full")
)

// Session is one live websocket connection. Frames are queued by Push and
// written by a single writer goroutine.
type Session struct {
	id     string
	UserID string

	Conn      *websocket.Conn
	SendQueue chan []byte
	done      chan struct{}
	closed    atomic.Int32
	log       *zap.Logger
}

func NewSession(id, userID string, conn *websocket.Conn, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		id:        id,
		UserID:    userID,
		Conn:      conn,
		SendQueue: make(chan []byte, SendQueueSize),
		done:      make(chan struct{}),
		log:       log.With(zap.String("session_id", id), zap.String("user_id", userID)),
	}
}

func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) ID() string {
	return s.id
}

// Push queues a frame without blocking. A full queue means the client is
// not keeping up; the session is closed rather than stalling the caller.
func (s *Session) Push(payload []byte) error {
	if s.closed.Load() == 1 {
		return ErrSessionClosed
	}
	select {
	case s.SendQueue <- payload:
		return nil
	default:
		s.log.Warn("session: backpressure overflow - dropping connection")
		s.CloseWithReason(websocket.CloseTryAgainLater, "backpressure overflow")
		return ErrBackpressure
	}
}

func (s *Session) Close() {
	s.CloseWithReason(websocket.CloseNormalClosure, "server closing")
}

func (s *Session) CloseWithReason(code int, reason string) {
	if !s.closed.CompareAndSwap(0, 1) {
		return
	}

	s.log.Info("session: closing", zap.Int("code", code), zap.String("reason", reason))
	close(s.done)

	if s.Conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.Conn.Close()
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.SendQueue:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Warn("session: write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Warn("session: ping error", zap.Error(err))
				return
			}
		case <-s.done:
			return
		}
	}
}
