package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/quote"
)

const maxReadMessageSize = 4096

// readUntilClosed drains client frames so control messages are handled, and
// closes done once the connection fails
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// notificationStream pushes every new notification to the client until it
// disconnects
func (s *Server) notificationStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.LogDebug(r.Context(), "failed to upgrade", "error", err.Error())
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxReadMessageSize)

	sub, cancel := s.cfg.Hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go readUntilClosed(conn, done)

	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteJSON(n); err != nil {
				s.cfg.Logger.LogDebug(r.Context(), "closing notification stream", "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

type quoteRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type quoteMessage struct {
	Quote *quote.Quote `json:"quote,omitempty"`
	Error string       `json:"error,omitempty"`
}

// quoteStream answers each burst of form edits with one quote for the last
// edit, once typing pauses
func (s *Server) quoteStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.LogDebug(r.Context(), "failed to upgrade", "error", err.Error())
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxReadMessageSize)

	debouncer := s.cfg.Estimator.NewDebouncer()
	defer debouncer.Stop()

	var writeMu sync.Mutex
	deliver := func(q quote.Quote, err error) {
		msg := quoteMessage{}
		if err != nil {
			msg.Error = err.Error()
		} else {
			msg.Quote = &q
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
		_ = conn.WriteJSON(msg)
	}

	for {
		var req quoteRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		s.cfg.Estimator.Schedule(debouncer, req.From, req.To, req.Amount, deliver)
	}
}
