package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"coinrush/internal/arena"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
	commandTimeout = 5 * time.Second
)

var errSlowConsumer = errors.New("send buffer full")

// client is one play-stream websocket. It satisfies arena.Conn.
type client struct {
	conn *websocket.Conn
	send chan []byte

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendBuffer)}
}

// Send queues b without blocking. A client that cannot keep up is dropped.
func (c *client) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *client) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
	return nil
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) reply(t string, payload any) {
	b, err := arena.Encode(t, payload)
	if err != nil {
		log.Printf("ws: encode %s: %v", t, err)
		return
	}
	_ = c.Send(b)
}

func (c *client) replyErr(err error, eh *ErrorHandler) {
	apiErr, _ := eh.classifyError(err)
	c.reply(arena.MsgError, arena.ErrorMsg{Code: string(apiErr.Code), Message: apiErr.Message})
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
		},
	}
}

// handlePlay upgrades /ws/play?ticket=... and pumps the room stream.
func (s *Server) handlePlay(c *gin.Context) {
	tk, err := s.tickets.Parse(c.Query("ticket"))
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	room, ok := s.arena.Get(tk.SessionID)
	if !ok {
		s.errs.Abort(c, arena.ErrNotFound, nil)
		return
	}
	if tk.Address != room.Wallet.String() {
		s.errs.Abort(c, NewForbiddenError("Ticket does not match session wallet"), nil)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade %s: %v", room.ID, err)
		return
	}
	cl := newClient(conn)
	s.metrics.WSConnected()
	go cl.writePump()

	detach := room.Subscribe(cl)
	defer func() {
		detach()
		cl.Close()
		s.metrics.WSDisconnected()
	}()
	s.readPump(cl, room, newClickLimiter(s.cfg.ClickRate, s.cfg.ClickBurst))
}

func (s *Server) readPump(cl *client, room *arena.Room, lim *rate.Limiter) {
	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: session %s read: %v", room.ID, err)
			}
			return
		}
		env, err := arena.DecodeEnvelope(message)
		if err != nil {
			cl.replyErr(NewInvalidRequestError("malformed message"), s.errs)
			continue
		}
		s.handleMessage(cl, room, lim, env)
	}
}

func (s *Server) handleMessage(cl *client, room *arena.Room, lim *rate.Limiter, env arena.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch env.T {
	case arena.MsgClick:
		if !lim.Allow() {
			cl.replyErr(NewRateLimitError(time.Second), s.errs)
			return
		}
		msg, err := arena.DecodePayload[arena.ClickMsg](env)
		if err != nil || msg.TokenID == "" {
			cl.replyErr(NewInvalidRequestError("click needs token_id"), s.errs)
			return
		}
		out, err := room.Click(ctx, msg.TokenID)
		if err != nil {
			cl.replyErr(err, s.errs)
			return
		}
		cl.reply(arena.MsgOutcome, out)
	case arena.MsgExit:
		if _, err := room.Exit(ctx); err != nil && !errors.Is(err, context.Canceled) {
			cl.replyErr(err, s.errs)
		}
	case arena.MsgRestart:
		// the entry fee settles with a simulated delay
		rctx, rcancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer rcancel()
		if _, err := room.Restart(rctx); err != nil {
			cl.replyErr(err, s.errs)
		}
	default:
		cl.replyErr(NewInvalidRequestError("unknown message type "+env.T), s.errs)
	}
}
