// Package core holds the stage session orchestrator: stages, participants,
// their media resource handles and the room event fan-out. External
// collaborators (identity directory, media engine, signaling transport)
// are reached only through the interfaces in this file.
package core

import (
	"context"
	"encoding/json"

	"github.com/stagecast/stagecast/internal/domain"
)

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts one client's outbound signaling endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Directory verifies bearer tokens and stores stage records.
type Directory interface {
	VerifyToken(ctx context.Context, token string) (domain.Identity, error)
	GetStageRecord(ctx context.Context, id domain.StageID) (*domain.StageRecord, error)
	CreateStageRecord(ctx context.Context, name string, kind domain.StageKind, secret string, owner domain.Identity) (*domain.StageRecord, error)
}

// Direction tells which way a media transport carries streams,
// from the client's point of view.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// MediaParams carries a client's opaque stream description into Produce.
type MediaParams struct {
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
}

// RouterHandle is a media routing context scoped to one stage.
type RouterHandle interface {
	ID() string
	// Capabilities is the descriptor clients need before negotiating.
	Capabilities() json.RawMessage
}

// TransportHandle is one negotiated media endpoint of one participant.
type TransportHandle interface {
	ID() string
	// ConnectParams is the payload the client needs to finish the transport.
	ConnectParams() json.RawMessage
	// Connect applies the client's connect payload (DTLS/answer).
	Connect(params json.RawMessage) error
	// OnClose registers fn to run once when the transport dies.
	// Multiple registrations are allowed.
	OnClose(fn func())
	Close() error
}

// ProducerHandle is an inbound media stream of one participant.
type ProducerHandle interface {
	ID() string
	Kind() string
	Close() error
}

// ConsumerHandle is an outbound media stream towards one participant.
// Consumers start paused and must be resumed explicitly.
type ConsumerHandle interface {
	ID() string
	Params() json.RawMessage
	Resume() error
	Close() error
}

// Engine is the media-routing collaborator (SFU). Calls may be slow;
// callers bound them with a context deadline and never invoke them while
// holding a stage's membership lock.
type Engine interface {
	CreateRouter(ctx context.Context, stageID domain.StageID) (RouterHandle, error)
	CreateTransport(ctx context.Context, router RouterHandle, dir Direction, clientParams json.RawMessage) (TransportHandle, error)
	Produce(ctx context.Context, transport TransportHandle, params MediaParams) (ProducerHandle, error)
	Consume(ctx context.Context, transport TransportHandle, producerID string, capabilities json.RawMessage) (ConsumerHandle, error)
}
