package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"conductor/internal/async"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

type topicChangedFrame struct {
	Topic string `json:"topic"`
}

// handleTopicSocket upgrades the request and relays hub change signals for
// one topic as JSON frames. The client re-fetches authoritative state on
// each frame; the frames themselves carry no payload beyond the topic name.
func (s *Server) handleTopicSocket(c *gin.Context) {
	topic := c.Param("topic")
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Server: websocket upgrade failed: %v", err)
		return
	}
	s.trackConn(conn)

	sub := s.hub.Subscribe(topic)
	done := make(chan struct{})

	// Reader: consumes control frames and detects the client going away.
	async.Go(s.logger, "ws-reader", func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	// Writer: relays change signals and keeps the connection alive.
	async.Go(s.logger, "ws-writer", func() {
		defer func() {
			s.hub.Unsubscribe(sub)
			s.untrackConn(conn)
			_ = conn.Close()
		}()
		pinger := time.NewTicker(wsPingPeriod)
		defer pinger.Stop()
		for {
			select {
			case _, ok := <-sub.Changed():
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(topicChangedFrame{Topic: topic}); err != nil {
					return
				}
			case <-pinger.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}

func (s *Server) trackConn(conn *websocket.Conn) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.wsConns[conn] = struct{}{}
}

func (s *Server) untrackConn(conn *websocket.Conn) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	delete(s.wsConns, conn)
}
