package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/cache"
	"github.com/velora-app/velora/internal/hub"
)

const (
	// sendBuffer bounds queued outbound events per session; a full buffer
	// drops events rather than stalling the producer.
	sendBuffer = 16

	writeTimeout = 5 * time.Second

	// readTimeout matches cache.OnlineTTL so a silent peer falls offline
	// and gets its socket reaped on the same horizon.
	readTimeout = cache.OnlineTTL
)

// inbound is the client-to-server frame format.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type inboundMessage struct {
	RecipientID uint64 `json:"recipient_id"`
	Content     string `json:"content"`
}

// Session wraps one websocket connection. It implements hub.Sender; events
// flow through a buffered channel so hub pushes never block on a slow peer.
type Session struct {
	userID uint64
	conn   *websocket.Conn
	appCtx *app.AppContext
	svc    *Service

	// the session outlives the upgrade handler, whose request context is
	// canceled the moment the handler returns; all service calls run on
	// this context instead, canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	send      chan hub.Event
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession registers the connection in the hub and marks the user online.
// Call Run to start pumping; it blocks until the connection dies.
func NewSession(appCtx *app.AppContext, svc *Service, userID uint64, conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID: userID,
		conn:   conn,
		appCtx: appCtx,
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan hub.Event, sendBuffer),
		done:   make(chan struct{}),
	}

	appCtx.Hub.Register(userID, s)
	svc.Connected(ctx, userID)
	return s
}

// Send queues an event for delivery. Never blocks; reports false when the
// session buffer is full or the session is closing.
func (s *Session) Send(e hub.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- e:
		return true
	default:
		s.appCtx.Logger.Debug("dropping event for slow peer", "user_id", s.userID, "event", e.Type)
		return false
	}
}

// Close signals the pumps to stop. Safe to call multiple times and from the
// hub when a newer connection replaces this one.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
	})
}

// Run drives both pumps and tears everything down when either side fails.
func (s *Session) Run() {
	go s.writePump()
	s.readPump()

	s.Close()
	s.appCtx.Hub.Unregister(s.userID, s)
	s.svc.Disconnected(context.Background(), s.userID)
	_ = s.conn.Close()
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(e); err != nil {
				s.appCtx.Logger.Debug("websocket write failed", "user_id", s.userID, "err", err)
				s.Close()
				return
			}
		}
	}
}

func (s *Session) readPump() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inbound
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.Send(hub.Event{Type: "error", Data: "invalid frame"})
			continue
		}

		switch frame.Type {
		case "ping":
			s.svc.Heartbeat(s.ctx, s.userID)
			s.Send(hub.Event{Type: "pong"})

		case "message":
			var m inboundMessage
			if err := json.Unmarshal(frame.Data, &m); err != nil {
				s.Send(hub.Event{Type: "error", Data: "invalid message frame"})
				continue
			}
			if _, err := s.svc.SendMessage(s.ctx, s.userID, m.RecipientID, m.Content); err != nil {
				s.Send(hub.Event{Type: "error", Data: err.Error()})
			}

		default:
			s.Send(hub.Event{Type: "error", Data: "unknown frame type"})
		}
	}
}
