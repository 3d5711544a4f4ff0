package signal

import (
	"encoding/json"

	"github.com/stagecast/stagecast/internal/core"
)

func (g *Gateway) handleGetCapabilities(cl *client, env envelope) {
	_, stage, ok := g.joined(cl, env)
	if !ok {
		return
	}
	ctx, cancel := g.callCtx()
	defer cancel()
	router, err := stage.Router(ctx)
	if err != nil {
		g.replyErr(cl, env, err)
		return
	}
	g.reply(cl, env, router.Capabilities())
}

type createTransportPayload struct {
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
}

func (g *Gateway) handleCreateTransport(cl *client, env envelope, dir core.Direction) {
	session, _, ok := g.joined(cl, env)
	if !ok {
		return
	}
	var p createTransportPayload
	if err := env.payload(&p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	ctx, cancel := g.callCtx()
	defer cancel()
	params, err := session.AcquireTransport(ctx, dir, p.Capabilities)
	if err != nil {
		g.replyErr(cl, env, err)
		return
	}
	g.reply(cl, env, params)
}

type connectTransportPayload struct {
	TransportID string          `json:"transportId" validate:"required"`
	DTLSParams  json.RawMessage `json:"dtlsParams" validate:"required"`
}

func (g *Gateway) handleConnectTransport(cl *client, env envelope) {
	session, _, ok := g.joined(cl, env)
	if !ok {
		return
	}
	var p connectTransportPayload
	if err := env.payload(&p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	if err := session.ConnectTransport(p.TransportID, p.DTLSParams); err != nil {
		g.replyErr(cl, env, err)
		return
	}
	g.reply(cl, env, map[string]any{"connected": true})
}

type sendTrackPayload struct {
	TransportID string           `json:"transportId" validate:"required"`
	MediaParams core.MediaParams `json:"mediaParams" validate:"required"`
}

func (g *Gateway) handleSendTrack(cl *client, env envelope) {
	session, _, ok := g.joined(cl, env)
	if !ok {
		return
	}
	var p sendTrackPayload
	if err := env.payload(&p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	ctx, cancel := g.callCtx()
	defer cancel()
	producerID, err := session.Produce(ctx, p.TransportID, p.MediaParams)
	if err != nil {
		g.replyErr(cl, env, err)
		return
	}
	g.reply(cl, env, map[string]any{"producerId": producerID})
}

type consumePayload struct {
	ProducerID   string          `json:"producerId" validate:"required"`
	TransportID  string          `json:"transportId" validate:"required"`
	Capabilities json.RawMessage `json:"capabilities"`
}

func (g *Gateway) handleConsume(cl *client, env envelope) {
	session, _, ok := g.joined(cl, env)
	if !ok {
		return
	}
	var p consumePayload
	if err := env.payload(&p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	ctx, cancel := g.callCtx()
	defer cancel()
	params, err := session.Consume(ctx, p.TransportID, p.ProducerID, p.Capabilities)
	if err != nil {
		g.replyErr(cl, env, err)
		return
	}
	g.reply(cl, env, params)
}

type finishConsumePayload struct {
	ConsumerID string `json:"consumerId" validate:"required"`
}

func (g *Gateway) handleFinishConsume(cl *client, env envelope) {
	session, _, ok := g.joined(cl, env)
	if !ok {
		return
	}
	var p finishConsumePayload
	if err := env.payload(&p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	if err := session.FinishConsume(p.ConsumerID); err != nil {
		g.replyErr(cl, env, err)
		return
	}
	g.reply(cl, env, map[string]any{"resumed": true})
}
