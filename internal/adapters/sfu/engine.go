// Package sfu implements the media engine collaborator on pion/webrtc.
// Each stage gets a router (a webrtc API plus its producer registry),
// each participant transport is one PeerConnection, and producer streams
// reach consumers through per-producer RTP relays.
package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/core"
	"github.com/stagecast/stagecast/internal/domain"
)

var (
	errForeignRouter    = errors.New("router handle not created by this engine")
	errForeignTransport = errors.New("transport handle not created by this engine")
	errUnknownProducer  = errors.New("unknown producer")
	errNotSendTransport = errors.New("produce requires a send transport")
)

type Engine struct {
	webCfg webrtc.Configuration
}

func NewEngine(stunURLs []string) *Engine {
	return &Engine{
		webCfg: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
		},
	}
}

type codecCapability struct {
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
}

type routerCapabilities struct {
	RouterID string            `json:"routerId"`
	Codecs   []codecCapability `json:"codecs"`
}

// Router is the per-stage routing context: a dedicated webrtc API and
// the registry of live producers.
type Router struct {
	id      string
	stageID domain.StageID
	api     *webrtc.API
	caps    json.RawMessage

	mu        sync.RWMutex
	producers map[string]*Producer
}

func (r *Router) ID() string                    { return r.id }
func (r *Router) Capabilities() json.RawMessage { return r.caps }

func (r *Router) registerProducer(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *Router) unregisterProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (e *Engine) CreateRouter(_ context.Context, stageID domain.StageID) (core.RouterHandle, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	router := &Router{
		id:        uuid.NewString(),
		stageID:   stageID,
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)),
		producers: make(map[string]*Producer),
	}
	caps, err := json.Marshal(routerCapabilities{
		RouterID: router.id,
		Codecs: []codecCapability{
			{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		},
	})
	if err != nil {
		return nil, err
	}
	router.caps = caps

	log.Info().Str("module", "sfu").Str("stage", string(stageID)).Str("router", router.id).Msg("router created")
	return router, nil
}

func (e *Engine) CreateTransport(ctx context.Context, routerHandle core.RouterHandle, dir core.Direction, _ json.RawMessage) (core.TransportHandle, error) {
	router, ok := routerHandle.(*Router)
	if !ok {
		return nil, errForeignRouter
	}
	pc, err := router.api.NewPeerConnection(e.webCfg)
	if err != nil {
		return nil, err
	}
	t := newTransport(router, dir, pc)
	if err := t.negotiate(ctx); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return t, nil
}

func (e *Engine) Produce(_ context.Context, transportHandle core.TransportHandle, params core.MediaParams) (core.ProducerHandle, error) {
	t, ok := transportHandle.(*Transport)
	if !ok {
		return nil, errForeignTransport
	}
	if t.dir != core.DirectionSend {
		return nil, errNotSendTransport
	}

	producer := &Producer{
		id:     uuid.NewString(),
		kind:   params.Kind,
		relay:  NewRelay(),
		router: t.router,
	}
	t.router.registerProducer(producer)
	t.bindProducer(producer)
	log.Info().
		Str("module", "sfu").
		Str("transport", t.id).
		Str("producer", producer.id).
		Str("kind", producer.kind).
		Msg("producer registered")
	return producer, nil
}

func (e *Engine) Consume(_ context.Context, transportHandle core.TransportHandle, producerID string, _ json.RawMessage) (core.ConsumerHandle, error) {
	t, ok := transportHandle.(*Transport)
	if !ok {
		return nil, errForeignTransport
	}
	producer, ok := t.router.producer(producerID)
	if !ok {
		return nil, errUnknownProducer
	}

	local, err := webrtc.NewTrackLocalStaticRTP(codecFor(producer.kind), uuid.NewString(), "stagecast")
	if err != nil {
		return nil, err
	}
	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}

	consumer := &Consumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       producer.kind,
		out:        NewOutTrack(local, TrackStateMuted),
		relay:      producer.relay,
		transport:  t,
		sender:     sender,
	}
	producer.relay.AddOutTrack(consumer.id, consumer.out)
	log.Info().
		Str("module", "sfu").
		Str("transport", t.id).
		Str("producer", producerID).
		Str("consumer", consumer.id).
		Msg("consumer created paused")
	return consumer, nil
}

func codecFor(kind string) webrtc.RTPCodecCapability {
	if kind == "video" {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

// Producer is one inbound stream: the relay is created on Produce and
// fed once the matching remote track arrives on the transport.
type Producer struct {
	id     string
	kind   string
	relay  *Relay
	router *Router
}

func (p *Producer) ID() string   { return p.id }
func (p *Producer) Kind() string { return p.kind }

func (p *Producer) Close() error {
	p.relay.Stop()
	p.router.unregisterProducer(p.id)
	return nil
}

// Consumer is one outbound stream towards a participant, paused until
// resumed.
type Consumer struct {
	id         string
	producerID string
	kind       string
	out        *OutTrack
	relay      *Relay
	transport  *Transport
	sender     *webrtc.RTPSender
}

func (c *Consumer) ID() string { return c.id }

func (c *Consumer) Params() json.RawMessage {
	params, _ := json.Marshal(map[string]any{
		"id":         c.id,
		"producerId": c.producerID,
		"kind":       c.kind,
		"paused":     true,
	})
	return params
}

func (c *Consumer) Resume() error {
	c.out.MarkOk()
	return nil
}

func (c *Consumer) Close() error {
	c.relay.MarkOutTrackDelete(c.id)
	return c.transport.pc.RemoveTrack(c.sender)
}
