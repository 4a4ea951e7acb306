package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/events"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
	watchBuffer    = 256
)

type watchMessage struct {
	Type    string        `json:"type"`
	Session *sessionView  `json:"session,omitempty"`
	Event   *events.Event `json:"event,omitempty"`
}

func (r *Router) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     r.originAllowed,
	}
}

func (r *Router) originAllowed(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range r.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// GET /v1/sessions/{sid}/watch
// Streams a snapshot of the session followed by every progress event. The
// stream ends when the client goes away or the session is closed.
func (r *Router) handleWatch(w http.ResponseWriter, req *http.Request) {
	s, err := r.session(req)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	subID, ch := s.Subscribe(watchBuffer)
	defer s.Unsubscribe(subID)

	conn, err := r.upgrader().Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := r.log.WithField("session", s.ID)

	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(msg watchMessage) error {
		if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(msg)
	}

	view := viewOf(s)
	if err := write(watchMessage{Type: "snapshot", Session: &view}); err != nil {
		return
	}
	log.Debug("watch started")

	ticker := time.NewTicker(watchPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			log.Debug("watch client left")
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(watchWriteWait))
				return
			}
			if err := write(watchMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
				return
			}
		}
	}
}
