package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/domain"
)

// ParticipantSession is one authenticated user's live presence on a stage:
// identity, connection, and exclusive ownership of its media handles.
type ParticipantSession struct {
	identity  domain.Identity
	connID    domain.ConnectionID
	stage     *Stage
	conn      SignalConnection
	resources *ResourceSet
}

func NewParticipantSession(identity domain.Identity, connID domain.ConnectionID, stage *Stage, conn SignalConnection) *ParticipantSession {
	return &ParticipantSession{
		identity:  identity,
		connID:    connID,
		stage:     stage,
		conn:      conn,
		resources: NewResourceSet(),
	}
}

func (p *ParticipantSession) Identity() domain.Identity         { return p.identity }
func (p *ParticipantSession) ConnectionID() domain.ConnectionID { return p.connID }
func (p *ParticipantSession) Stage() *Stage                     { return p.stage }
func (p *ParticipantSession) Signal() SignalConnection          { return p.conn }
func (p *ParticipantSession) Resources() *ResourceSet           { return p.resources }

func (p *ParticipantSession) Announcement() domain.ParticipantAnnouncement {
	return domain.ParticipantAnnouncement{
		UserID:       p.identity.ID,
		Name:         p.identity.DisplayName,
		ConnectionID: p.connID,
	}
}

// AcquireTransport asks the engine for a transport on the stage's router,
// takes ownership of it and returns the connect payload for the client.
// The engine call runs outside any stage lock.
func (p *ParticipantSession) AcquireTransport(ctx context.Context, dir Direction, clientParams json.RawMessage) (json.RawMessage, error) {
	router, err := p.stage.Router(ctx)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	t, err := p.stage.engine.CreateTransport(ctx, router, dir, clientParams)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	p.resources.PutTransport(t)
	log.Info().
		Str("module", "core.participant").
		Str("user", p.identity.ID).
		Str("transport", t.ID()).
		Str("direction", string(dir)).
		Msg("transport acquired")
	return t.ConnectParams(), nil
}

// ConnectTransport applies the client's connect payload. A transport id
// outside this participant's set is rejected, never resolved against
// another participant's handles.
func (p *ParticipantSession) ConnectTransport(transportID string, params json.RawMessage) error {
	t, ok := p.resources.Transport(transportID)
	if !ok {
		return ErrUnknownTransport
	}
	return t.Connect(params)
}

// Produce registers a new inbound stream on one of this participant's
// transports. On success the producer joins the participant's producer
// list and the room learns about it twice: the full producers/state for
// this participant, and a discrete producer/added event. When the
// underlying transport closes, the producer is announced gone.
func (p *ParticipantSession) Produce(ctx context.Context, transportID string, params MediaParams) (string, error) {
	t, ok := p.resources.Transport(transportID)
	if !ok {
		return "", ErrUnknownTransport
	}
	producer, err := p.stage.engine.Produce(ctx, t, params)
	if err != nil {
		return "", fmt.Errorf("produce: %w", err)
	}
	p.resources.PutProducer(producer)
	t.OnClose(func() { p.dropProducer(producer.ID()) })

	p.announceProducers()
	p.stage.events.Publish(p.stage.ID(), domain.ActionProducerAdded, domain.ProducerChange{
		UserID:     p.identity.ID,
		ProducerID: producer.ID(),
	}, p.connID)
	log.Info().
		Str("module", "core.participant").
		Str("user", p.identity.ID).
		Str("producer", producer.ID()).
		Str("kind", producer.Kind()).
		Msg("producer added")
	return producer.ID(), nil
}

// dropProducer reacts to the engine's transport-close notification.
// Safe to run more than once per producer.
func (p *ParticipantSession) dropProducer(producerID string) {
	producer, ok := p.resources.RemoveProducer(producerID)
	if !ok {
		return
	}
	if err := producer.Close(); err != nil {
		log.Warn().Err(err).
			Str("module", "core.participant").
			Str("producer", producerID).
			Msg("producer close failed")
	}
	p.stage.events.Publish(p.stage.ID(), domain.ActionProducerRemoved, domain.ProducerChange{
		UserID:     p.identity.ID,
		ProducerID: producerID,
	}, p.connID)
	p.announceProducers()
	log.Info().
		Str("module", "core.participant").
		Str("user", p.identity.ID).
		Str("producer", producerID).
		Msg("producer removed with its transport")
}

func (p *ParticipantSession) announceProducers() {
	p.stage.events.Publish(p.stage.ID(), domain.ActionProducersState, domain.ProducerAnnouncement{
		UserID:      p.identity.ID,
		ProducerIDs: p.resources.ProducerIDs(),
	}, p.connID)
}

// Consume sets up an outbound stream of the given producer over one of
// this participant's transports. The consumer starts paused.
func (p *ParticipantSession) Consume(ctx context.Context, transportID, producerID string, capabilities json.RawMessage) (json.RawMessage, error) {
	t, ok := p.resources.Transport(transportID)
	if !ok {
		return nil, ErrUnknownTransport
	}
	consumer, err := p.stage.engine.Consume(ctx, t, producerID, capabilities)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	p.resources.PutConsumer(consumer)
	return consumer.Params(), nil
}

// FinishConsume resumes a paused consumer. Resuming an already running
// consumer succeeds again; only ids outside this participant's set fail.
func (p *ParticipantSession) FinishConsume(consumerID string) error {
	c, ok := p.resources.Consumer(consumerID)
	if !ok {
		return ErrUnknownConsumer
	}
	return c.Resume()
}
