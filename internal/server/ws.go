package server

import (
	"log/slog"
	"time"

	"github.com/jakopako/bankpull/internal/notify"
	"golang.org/x/net/websocket"
)

// handleWS streams hub events to the client until it disconnects.
func (s *Server) handleWS(conn *websocket.Conn) {
	defer conn.Close()
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	s.logger.Info("client connected", slog.String("remote", conn.Request().RemoteAddr))
	defer s.logger.Info("client disconnected", slog.String("remote", conn.Request().RemoteAddr))

	hello := notify.Event{Time: time.Now(), Type: notify.EventStatus, Message: "Connected to Backend"}
	if err := websocket.JSON.Send(conn, hello); err != nil {
		return
	}

	// the client never sends anything, a failing read means it is gone
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, e); err != nil {
				return
			}
		}
	}
}
