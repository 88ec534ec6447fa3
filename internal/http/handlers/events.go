package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtalk/pkg/ws"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	writeWait  = 5 * time.Second
)

// EventsHandler streams session events to UI clients over a websocket.
type EventsHandler struct {
	Hub      *ws.Hub
	Svc      SessionService
	Logger   *zap.SugaredLogger
	Upgrader websocket.Upgrader
}

func NewEventsHandler(h *ws.Hub, svc SessionService, logger *zap.SugaredLogger) *EventsHandler {
	return &EventsHandler{
		Hub:    h,
		Svc:    svc,
		Logger: logger,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *EventsHandler) WS(c *gin.Context) {
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	id := uuid.NewString()
	h.Hub.Add(id, conn)
	done := make(chan struct{})
	defer func() {
		close(done)
		h.Hub.Remove(id)
		conn.Close()
		h.Logger.Debugw("event client disconnected", "client", id, "clients", h.Hub.Len())
	}()

	h.Logger.Debugw("event client connected", "client", id, "clients", h.Hub.Len())
	if err := h.Hub.Send(id, h.Svc.Hello()); err != nil {
		return
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.ping(conn, done)

	// The stream is one-way; reads only service control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventsHandler) ping(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
