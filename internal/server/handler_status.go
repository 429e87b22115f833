package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/k11v/gtfshtml/internal/build"
)

const (
	statusWriteWait  = 10 * time.Second
	statusPongWait   = 60 * time.Second
	statusPingPeriod = statusPongWait * 9 / 10
	statusMaxMessage = 1 << 20
)

// frame is a status channel message in either direction.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Status upgrades to the status channel. Clients send create frames and
// receive status frames for the build they started.
//
//	@Summary		Build status channel
//	@Description	WebSocket. Send {"event":"create","data":{"url","buildId","options","template"}}; receive {"event":"status","data":{...}}.
//	@Tags			generate
//	@Success		101
//	@Router			/ws [get]
func (h *handler) Status(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has replied already.
		h.log.Debug().Err(err).Msg("didn't upgrade")
		return
	}

	sc := &statusConn{
		conn: conn,
		log:  h.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger(),
		done: make(chan struct{}),
	}
	defer sc.close()
	go sc.ping()

	session := build.NewSession(build.ListenerFunc(sc.sendStatus))

	conn.SetReadLimit(statusMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(statusPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(statusPongWait))
	})

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.log.Debug().Err(err).Msg("status channel closed")
			}
			return
		}
		if in.Event != "create" {
			continue
		}

		var msg build.CreateMessage
		if err := json.Unmarshal(in.Data, &msg); err != nil {
			sc.sendStatus(build.Event{Error: "Invalid message"})
			continue
		}
		req, listener, err := session.Begin(&msg)
		if err != nil {
			sc.log.Info().Err(err).Msg("build refused")
			continue
		}

		// The build outlives the connection.
		ctx := context.WithoutCancel(r.Context())
		go func() {
			deliverer := &build.StorageDeliverer{Publisher: h.publisher, PublicURL: h.publicURL}
			outcome, err := h.pipeline.Run(ctx, req, listener, deliverer)
			session.Finish(outcome, err)
		}()
	}
}

// statusConn serializes writes to a status channel connection.
type statusConn struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (c *statusConn) sendStatus(e build.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		c.log.Error().Err(err).Msg("didn't encode status")
		return
	}
	c.write(websocket.TextMessage, frame{Event: "status", Data: data})
}

func (c *statusConn) write(messageType int, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(statusWriteWait))
	var err error
	if messageType == websocket.PingMessage {
		err = c.conn.WriteMessage(websocket.PingMessage, nil)
	} else {
		err = c.conn.WriteJSON(v)
	}
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Debug().Err(err).Msg("didn't write to status channel")
	}
}

func (c *statusConn) ping() {
	t := time.NewTicker(statusPingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.write(websocket.PingMessage, nil)
		}
	}
}

func (c *statusConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
}
