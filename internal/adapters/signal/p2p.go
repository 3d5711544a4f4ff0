package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/domain"
)

// p2pPayload is relayed verbatim: the gateway only routes it, the SDP and
// candidate blobs are opaque.
type p2pPayload struct {
	TargetConnectionID string          `json:"targetConnectionId" validate:"required"`
	Offer              json.RawMessage `json:"offer,omitempty"`
	Answer             json.RawMessage `json:"answer,omitempty"`
	Candidate          json.RawMessage `json:"candidate,omitempty"`
}

type p2pRelayed struct {
	Type         string              `json:"type"`
	UserID       string              `json:"userId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Offer        json.RawMessage     `json:"offer,omitempty"`
	Answer       json.RawMessage     `json:"answer,omitempty"`
	Candidate    json.RawMessage     `json:"candidate,omitempty"`
}

var errUnknownPeer = errors.New("unknown peer connection")

// handleP2PRelay forwards offer/answer/candidate payloads to one peer in
// the same stage. The relayed event name mirrors the inbound one.
func (g *Gateway) handleP2PRelay(cl *client, env envelope) {
	session, stage, ok := g.joined(cl, env)
	if !ok {
		return
	}
	var p p2pPayload
	if err := env.payload(&p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.replyErr(cl, env, errBadPayload)
		return
	}

	var relayedType string
	switch env.Type {
	case "p2p/make-offer":
		relayedType = "p2p/offer-made"
	case "p2p/make-answer":
		relayedType = "p2p/answer-made"
	case "p2p/send-candidate":
		relayedType = "p2p/candidate-sent"
	}

	err := g.Events.SendTo(stage.ID(), domain.ConnectionID(p.TargetConnectionID), p2pRelayed{
		Type:         relayedType,
		UserID:       session.Identity().ID,
		ConnectionID: cl.id,
		Offer:        p.Offer,
		Answer:       p.Answer,
		Candidate:    p.Candidate,
	})
	if err != nil {
		log.Debug().Err(err).
			Str("module", "signal").
			Str("conn", string(cl.id)).
			Str("target", p.TargetConnectionID).
			Msg("p2p relay failed")
		g.replyErr(cl, env, errUnknownPeer)
	}
}
