// Package signal binds inbound websocket connections to the stage
// orchestrator: the create/join handshake, roster queries, the media
// negotiation request/response pairs and the peer-to-peer relay.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/config"
	"github.com/stagecast/stagecast/internal/core"
	"github.com/stagecast/stagecast/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Gateway owns the per-connection protocol state machine and delegates
// every stage mutation to the registry and participant sessions.
type Gateway struct {
	Registry  *core.StageRegistry
	Directory core.Directory
	Events    *core.EventBroadcaster

	callTimeout time.Duration
	readLimit   int64
	pingPeriod  time.Duration
	limiter     *JoinRateLimiter
	validate    *validator.Validate
}

func NewGateway(reg *core.StageRegistry, dir core.Directory, events *core.EventBroadcaster, cfg *config.Config) *Gateway {
	return &Gateway{
		Registry:    reg,
		Directory:   dir,
		Events:      events,
		callTimeout: cfg.SFUCallTimeout,
		readLimit:   cfg.ReadLimit,
		pingPeriod:  cfg.PingPeriod,
		limiter:     NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval),
		validate:    validator.New(),
	}
}

type phase int

const (
	phaseUnauthenticated phase = iota
	phaseJoining
	phaseJoined
	phaseClosed
)

// client is one connection's protocol state.
type client struct {
	id   domain.ConnectionID
	conn core.SignalConnection

	mu      sync.Mutex
	phase   phase
	session *core.ParticipantSession
	stage   *core.Stage
}

func (cl *client) snapshot() (phase, *core.ParticipantSession, *core.Stage) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.phase, cl.session, cl.stage
}

// WsConn is the gorilla-backed signal connection with a buffered send
// queue. TrySend never blocks: a full queue is a backpressure error.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's pumps until
// it closes. Each websocket connection gets its own connection id.
func (g *Gateway) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	cl := &client{
		id:   domain.ConnectionID(uuid.NewString()),
		conn: conn,
	}
	log.Info().Str("module", "signal").Str("conn", string(cl.id)).Msg("new signaling connection")

	ctx, cancel := context.WithCancel(ctx)
	go g.writePump(ctx, conn)
	go func() {
		defer cancel()
		g.readPump(ctx, cl, conn)
	}()
}

// onClose runs exactly the idempotent removal contract: the stage drops
// the participant (no-op when already gone) and releases its resources.
func (g *Gateway) onClose(cl *client) {
	cl.mu.Lock()
	stage := cl.stage
	cl.phase = phaseClosed
	cl.session = nil
	cl.stage = nil
	cl.mu.Unlock()

	if stage != nil {
		stage.RemoveParticipant(cl.id)
	}
	cl.conn.Close()
	log.Info().Str("module", "signal").Str("conn", string(cl.id)).Msg("connection closed")
}

func (g *Gateway) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.callTimeout)
}
