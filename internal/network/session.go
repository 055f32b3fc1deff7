package network

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/internal/network/packets"
)

// Session errors.
var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendQueueFull = errors.New("send queue full")
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	inboxSize  = 256
	outboxSize = 64
	inboxWait  = 10 * time.Second
)

// Session is a chunk sync connection. A reader goroutine decodes inbound
// messages into the inbox; a writer goroutine drains the outbox. The owner
// drains the inbox from its own loop. When the inbox stays full for longer
// than the inbox wait the session ends rather than lose a message.
type Session struct {
	conn   *websocket.Conn
	inbox  chan packets.Message
	wait   time.Duration
	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	log    *zap.Logger

	rejected atomic.Int64
	dropped  atomic.Int64
}

// Dial connects to a sync endpoint.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, log), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades an HTTP request into a session. Used by servers that push
// chunks to clients.
func Accept(w http.ResponseWriter, r *http.Request, log *zap.Logger) (*Session, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, log), nil
}

// NewSession wraps an established connection and starts its goroutines.
func NewSession(conn *websocket.Conn, log *zap.Logger) *Session {
	return newSession(conn, log, inboxSize, inboxWait)
}

func newSession(conn *websocket.Conn, log *zap.Logger, capacity int, wait time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:   conn,
		inbox:  make(chan packets.Message, capacity),
		wait:   wait,
		out:    make(chan []byte, outboxSize),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.OrNop(log),
	}
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.writeLoop()
	}()
	return s
}

// Inbox returns decoded inbound messages. It is closed when the reader stops.
func (s *Session) Inbox() <-chan packets.Message { return s.inbox }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Drain returns up to max queued messages without blocking.
func (s *Session) Drain(max int) []packets.Message {
	var msgs []packets.Message
	for len(msgs) < max {
		select {
		case m, ok := <-s.inbox:
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
	return msgs
}

// Send queues a message without blocking.
func (s *Session) Send(m packets.Message) error {
	b, err := packets.Encode(m)
	if err != nil {
		return err
	}
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Stats returns the number of rejected inbound messages (invalid) and
// dropped inbound messages (inbox full past the wait, which also ends the
// session).
func (s *Session) Stats() (rejected, dropped int64) {
	return s.rejected.Load(), s.dropped.Load()
}

// Close ends the session and waits for its goroutines.
func (s *Session) Close() error {
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.cancel()
		_ = s.conn.Close()
	})
	s.wg.Wait()
	return nil
}

func (s *Session) readLoop() {
	defer close(s.inbox)
	defer s.cancel()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("sync session read failed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := packets.Decode(data)
		if err != nil {
			s.rejected.Add(1)
			s.log.Warn("rejected sync message", zap.Error(err))
			continue
		}
		if !s.deliver(msg) {
			return
		}
	}
}

// deliver queues msg for the owner, waiting while the inbox is full. It
// reports false when the session should stop reading.
func (s *Session) deliver(msg packets.Message) bool {
	select {
	case s.inbox <- msg:
		return true
	default:
	}

	timer := time.NewTimer(s.wait)
	defer timer.Stop()
	select {
	case s.inbox <- msg:
		return true
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		s.dropped.Add(1)
		s.log.Error("sync inbox stalled, ending session",
			zap.String("type", msg.MessageType()), zap.Duration("waited", s.wait))
		_ = s.conn.Close()
		return false
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case b := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.log.Warn("sync session write failed", zap.Error(err))
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}
