package apihttp

import (
	"time"

	"quantdesk/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// handleRemoteStream pushes orchestrator state over a websocket: the current
// state first, then every transition. Slow readers only see the latest state.
func (s *Server) handleRemoteStream(c *gin.Context) {
	if !s.requireOrchestrator(c) {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debugf("[http] stream upgrade: %v", err)
		return
	}
	defer conn.Close()

	updates := make(chan engine.State, 1)
	cancel := s.orch.Subscribe(func(st engine.State) {
		for {
			select {
			case updates <- st:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeState(conn, s.orch.State()); err != nil {
		return
	}
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-s.baseCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(streamWriteTimeout))
			return
		case st := <-updates:
			if err := s.writeState(conn, st); err != nil {
				s.log.Debugf("[http] stream write: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeState(conn *websocket.Conn, st engine.State) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(st)
}
