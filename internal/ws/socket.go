package ws

import (
	"errors"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/timeauction/internal/config"
	"github.com/kiliankoe/timeauction/internal/game"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

const namespace = "/"

// ConnCtx is the per-connection state. Event handlers and the disconnect
// handler may run on different goroutines, so the room code is guarded.
type ConnCtx struct {
	mu      deadlock.Mutex
	code    string // room the connection currently belongs to
	limiter *rate.Limiter
}

func (c *ConnCtx) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (c *ConnCtx) SetCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
}

// swapCode sets the room code and returns the previous one.
func (c *ConnCtx) swapCode(code string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.code
	c.code = code
	return prev
}

type joinPayload struct {
	RoomID    string `json:"roomId"`
	Nickname  string `json:"nickname"`
	Spectator bool   `json:"spectator"`
}

type rematchPayload struct {
	Nickname string `json:"nickname"`
}

// Server adapts Socket.IO connections to the game registry and implements
// game.Broadcaster on top of Socket.IO rooms.
type Server struct {
	RM     *game.Registry
	io     *socketio.Server
	config config.Config

	mu    deadlock.RWMutex
	conns map[string]socketio.Conn // socketID -> Conn
}

func New(rm *game.Registry, cfg config.Config) *Server {
	return &Server{
		RM:     rm,
		io:     socketio.NewServer(nil),
		config: cfg,
		conns:  make(map[string]socketio.Conn),
	}
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := srv.io

	io.OnConnect(namespace, srv.onConnect)
	io.OnEvent(namespace, "requestRoomCode", srv.onRequestRoomCode)
	io.OnEvent(namespace, "joinRoom", srv.onJoinRoom)

	io.OnEvent(namespace, "playerReady", func(s socketio.Conn) {
		if room := srv.currentRoom(s); room != nil {
			room.SetReady(s.ID())
		}
	})

	io.OnEvent(namespace, "startParticipation", func(s socketio.Conn) {
		if room := srv.currentRoom(s); room != nil {
			room.StartBid(s.ID())
		}
	})

	io.OnEvent(namespace, "endParticipation", func(s socketio.Conn) {
		if room := srv.currentRoom(s); room != nil {
			room.EndBid(s.ID())
		}
	})

	io.OnEvent(namespace, "rematchYes", srv.onRematchYes)

	io.OnEvent(namespace, "rematchRequest", func(s socketio.Conn) {
		if room := srv.currentRoom(s); room != nil {
			room.RematchRequest(s.ID())
		}
	})

	io.OnEvent(namespace, "leaveRoom", func(s socketio.Conn) {
		srv.leaveCurrent(s, connCtx(s))
	})

	io.OnEvent(namespace, "requestPlayerList", func(s socketio.Conn, code string) {
		room, err := srv.RM.Get(code)
		if err != nil {
			srv.fail(s, err)
			return
		}
		s.Emit(game.EventPlayerList, room.PlayerList())
	})

	io.OnError(namespace, func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect(namespace, srv.onDisconnect)

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve stopped")
		}
	}()

	// Mount to router
	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	return io
}

func (srv *Server) onConnect(s socketio.Conn) error {
	s.SetContext(&ConnCtx{limiter: rate.NewLimiter(rate.Limit(srv.config.RoomCodeRate), srv.config.RoomCodeBurst)})
	srv.addConn(s)
	log.Info().Str("sid", s.ID()).Msg("socket connected")
	return nil
}

// onRequestRoomCode replies with the bare code string; clients pass it
// straight back as joinRoom's roomId.
func (srv *Server) onRequestRoomCode(s socketio.Conn, required int) {
	ctx := connCtx(s)
	if ctx.limiter != nil && !ctx.limiter.Allow() {
		s.Emit("error", map[string]any{"code": "rate_limited", "message": "Too many rooms requested"})
		return
	}
	room, err := srv.RM.NewRoom(required)
	if err != nil {
		srv.fail(s, err)
		return
	}
	log.Info().Str("sid", s.ID()).Str("code", room.Code).Msg("requestRoomCode")
	s.Emit(game.EventRoomCode, room.Code)
	s.Emit(game.EventRoundConfig, room.TotalRounds)
}

func (srv *Server) onJoinRoom(s socketio.Conn, payload joinPayload) {
	ctx := connCtx(s)
	room, err := srv.RM.Get(payload.RoomID)
	if err != nil {
		srv.fail(s, err)
		return
	}
	if err := room.Join(s.ID(), payload.Nickname, payload.Spectator); err != nil {
		log.Info().Str("sid", s.ID()).Str("code", payload.RoomID).Err(err).Msg("joinRoom refused")
		srv.fail(s, err)
		return
	}
	if prev := ctx.swapCode(payload.RoomID); prev != "" && prev != payload.RoomID {
		srv.leaveRoom(s, prev)
	}
}

func (srv *Server) onRematchYes(s socketio.Conn, payload rematchPayload) {
	ctx := connCtx(s)
	code := ctx.Code()
	newCode, err := srv.RM.RematchAccept(code, s.ID(), payload.Nickname)
	if err != nil {
		log.Info().Str("sid", s.ID()).Str("code", code).Err(err).Msg("rematchYes refused")
		srv.fail(s, err)
		return
	}
	ctx.SetCode(newCode)
}

func (srv *Server) onDisconnect(s socketio.Conn, reason string) {
	srv.leaveCurrent(s, connCtx(s))
	srv.removeConn(s)
	log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
}

func connCtx(s socketio.Conn) *ConnCtx {
	if ctx, ok := s.Context().(*ConnCtx); ok && ctx != nil {
		return ctx
	}
	ctx := &ConnCtx{}
	s.SetContext(ctx)
	return ctx
}

func (srv *Server) currentRoom(s socketio.Conn) *game.Room {
	code := connCtx(s).Code()
	if code == "" {
		return nil
	}
	room, err := srv.RM.Get(code)
	if err != nil {
		return nil
	}
	return room
}

func (srv *Server) leaveCurrent(s socketio.Conn, ctx *ConnCtx) {
	if code := ctx.swapCode(""); code != "" {
		srv.leaveRoom(s, code)
	}
}

func (srv *Server) leaveRoom(s socketio.Conn, code string) {
	if room, err := srv.RM.Get(code); err == nil {
		room.Leave(s.ID())
	}
	s.Leave(code)
}

// fail reports err to the connection. Join refusals use their dedicated
// events; everything else goes out as a generic error event.
func (srv *Server) fail(s socketio.Conn, err error) {
	event, payload := clientEvent(err)
	if payload == nil {
		s.Emit(event)
		return
	}
	s.Emit(event, payload)
}

func clientEvent(err error) (string, map[string]any) {
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		return game.EventRoomNotFound, nil
	case errors.Is(err, game.ErrRoomNotJoinable):
		return game.EventRoomNotJoinable, nil
	case errors.Is(err, game.ErrRoomFull):
		return game.EventRoomFull, nil
	case errors.Is(err, game.ErrInvalidNickname):
		return "error", map[string]any{"code": "invalid_nickname", "message": err.Error()}
	case errors.Is(err, game.ErrDuplicateCode):
		return "error", map[string]any{"code": "no_free_code", "message": err.Error()}
	case errors.Is(err, game.ErrInvalidRequiredPlayers):
		return "error", map[string]any{"code": "invalid_required_players", "message": err.Error()}
	case errors.Is(err, game.ErrNotInRoom):
		return "error", map[string]any{"code": "not_in_room", "message": err.Error()}
	default:
		return "error", map[string]any{"code": "bad_request", "message": err.Error()}
	}
}

func (srv *Server) addConn(c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.conns[c.ID()] = c
}

func (srv *Server) removeConn(c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.conns, c.ID())
}

func (srv *Server) conn(id string) socketio.Conn {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.conns[id]
}

func (srv *Server) Subscribe(connID, code string) {
	if c := srv.conn(connID); c != nil {
		c.Join(code)
	}
}

func (srv *Server) Unsubscribe(connID, code string) {
	if c := srv.conn(connID); c != nil {
		c.Leave(code)
	}
}

func (srv *Server) ToRoom(code, event string, args ...any) {
	srv.io.BroadcastToRoom(namespace, code, event, args...)
}

func (srv *Server) ToConn(connID, event string, args ...any) {
	if c := srv.conn(connID); c != nil {
		c.Emit(event, args...)
	}
}
