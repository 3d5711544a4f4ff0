package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/core"
)

func (g *Gateway) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(g.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, cl *client, c *WsConn) {
	defer g.onClose(cl)

	c.conn.SetReadLimit(g.readLimit)
	// The client gets slightly more than one ping period to answer.
	readWait := g.pingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(cl.id)).Msg("readPump read error")
				return
			}
			g.handleFrame(cl, data)
		}
	}
}

// envelope is the shape of every inbound frame: the event name, an
// optional request id echoed back so the client can match request and
// response, and the event payload.
type envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// payload unmarshals the envelope data, treating a missing body as empty.
func (e envelope) payload(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

type response struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (g *Gateway) handleFrame(cl *client, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cl.id)).Msg("bad json frame")
		return
	}

	switch env.Type {
	case "ping":
		g.reply(cl, env, map[string]any{"pong": true})
	case "stage/create":
		g.handleCreate(cl, env)
	case "stage/join":
		g.handleJoin(cl, env)
	case "participants/state":
		g.handleParticipantsState(cl, env)
	case "producers/state":
		g.handleProducersState(cl, env)
	case "sfu/get-capabilities":
		g.handleGetCapabilities(cl, env)
	case "sfu/create-send-transport":
		g.handleCreateTransport(cl, env, core.DirectionSend)
	case "sfu/create-receive-transport":
		g.handleCreateTransport(cl, env, core.DirectionReceive)
	case "sfu/connect-transport":
		g.handleConnectTransport(cl, env)
	case "sfu/send-track":
		g.handleSendTrack(cl, env)
	case "sfu/consume":
		g.handleConsume(cl, env)
	case "sfu/finish-consume":
		g.handleFinishConsume(cl, env)
	case "p2p/make-offer", "p2p/make-answer", "p2p/send-candidate":
		g.handleP2PRelay(cl, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (g *Gateway) reply(cl *client, env envelope, payload any) {
	g.sendJSON(cl.conn, response{Type: env.Type, ID: env.ID, Data: payload})
}

func (g *Gateway) replyErr(cl *client, env envelope, err error) {
	g.sendJSON(cl.conn, response{Type: env.Type, ID: env.ID, Error: errorMessage(err)})
}

func (g *Gateway) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// errorMessage maps the error taxonomy onto the client-facing strings.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrWrongSecret):
		return "Wrong password"
	case errors.Is(err, core.ErrStageNotFound):
		return "Could not find stage"
	case errors.Is(err, core.ErrAuth):
		return "Invalid token"
	case errors.Is(err, core.ErrUnknownTransport):
		return "Could not find transport"
	case errors.Is(err, core.ErrUnknownConsumer):
		return "consumer not found"
	case errors.Is(err, core.ErrDuplicateParticipant):
		return "already joined"
	}
	return err.Error()
}

var errNotJoined = errors.New("not joined to a stage")

// joined returns the session and stage once the connection reached the
// Joined phase, or an error response has already gone out.
func (g *Gateway) joined(cl *client, env envelope) (*core.ParticipantSession, *core.Stage, bool) {
	ph, sess, stage := cl.snapshot()
	if ph != phaseJoined || sess == nil {
		g.replyErr(cl, env, errNotJoined)
		return nil, nil, false
	}
	return sess, stage, true
}
