package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/core"
	"github.com/stagecast/stagecast/internal/domain"
)

type createPayload struct {
	Token     string           `json:"token" validate:"required"`
	StageName string           `json:"stageName" validate:"required,max=64"`
	Type      domain.StageKind `json:"type" validate:"required,oneof=theater music conference"`
	Password  string           `json:"password"`
}

type joinPayload struct {
	Token    string `json:"token" validate:"required"`
	StageID  string `json:"stageId" validate:"required"`
	Password string `json:"password"`
}

// joinResponse answers both stage/create and stage/join: the record, the
// full roster including the caller, and the producer roster.
type joinResponse struct {
	StageID      domain.StageID                   `json:"stageId"`
	Stage        *domain.StageRecord              `json:"stage"`
	Participants []domain.ParticipantAnnouncement `json:"participants"`
	Producers    []domain.ProducerAnnouncement    `json:"producers"`
}

var (
	errBadPayload     = errors.New("bad_payload")
	errAlreadyInStage = errors.New("already in a stage")
	errTooManyJoins   = errors.New("too many join attempts")
)

func (g *Gateway) handleCreate(cl *client, env envelope) {
	var p createPayload
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

	identity, err := g.Directory.VerifyToken(ctx, p.Token)
	if err != nil {
		g.replyErr(cl, env, err)
		return
	}
	record, err := g.Directory.CreateStageRecord(ctx, p.StageName, p.Type, p.Password, identity)
	if err != nil {
		g.replyErr(cl, env, err)
		return
	}
	log.Info().
		Str("module", "signal").
		Str("conn", string(cl.id)).
		Str("stage", string(record.ID)).
		Str("owner", identity.ID).
		Msg("stage created")

	g.completeJoin(cl, env, record, identity)
}

func (g *Gateway) handleJoin(cl *client, env envelope) {
	var p joinPayload
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

	identity, err := g.Directory.VerifyToken(ctx, p.Token)
	if err != nil {
		g.replyErr(cl, env, err)
		return
	}
	if !g.limiter.Allow(identity.ID) {
		log.Warn().Str("module", "signal").Str("user", identity.ID).Msg("join rate limited")
		g.replyErr(cl, env, errTooManyJoins)
		return
	}
	record, err := g.Directory.GetStageRecord(ctx, domain.StageID(p.StageID))
	if err != nil {
		log.Warn().Str("module", "signal").Str("stage", p.StageID).Msg("join to unavailable stage")
		g.replyErr(cl, env, err)
		return
	}
	if !record.CheckSecret(p.Password) {
		log.Warn().Str("module", "signal").Str("user", identity.ID).Msg("wrong stage password")
		g.replyErr(cl, env, core.ErrWrongSecret)
		return
	}

	g.completeJoin(cl, env, record, identity)
}

// completeJoin is the shared tail of create and join: register the
// participant on the stage and answer with record plus rosters.
func (g *Gateway) completeJoin(cl *client, env envelope, record *domain.StageRecord, identity domain.Identity) {
	cl.mu.Lock()
	if cl.phase == phaseJoined {
		cl.mu.Unlock()
		g.replyErr(cl, env, errAlreadyInStage)
		return
	}
	cl.phase = phaseJoining
	cl.mu.Unlock()

	stage := g.Registry.GetOrCreate(record.ID)
	session := core.NewParticipantSession(identity, cl.id, stage, cl.conn)
	if err := stage.AddParticipant(session); err != nil {
		// Double-join guard: logged, answered, never fatal.
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cl.id)).Msg("add participant")
		cl.mu.Lock()
		cl.phase = phaseUnauthenticated
		cl.mu.Unlock()
		g.replyErr(cl, env, err)
		return
	}

	cl.mu.Lock()
	cl.phase = phaseJoined
	cl.session = session
	cl.stage = stage
	cl.mu.Unlock()

	log.Info().
		Str("module", "signal").
		Str("conn", string(cl.id)).
		Str("user", identity.ID).
		Str("stage", string(record.ID)).
		Msg("joined stage")

	g.reply(cl, env, joinResponse{
		StageID:      record.ID,
		Stage:        record,
		Participants: stage.Participants(""),
		Producers:    stage.Producers(""),
	})
}

func (g *Gateway) handleParticipantsState(cl *client, env envelope) {
	_, stage, ok := g.joined(cl, env)
	if !ok {
		return
	}
	g.reply(cl, env, stage.Participants(cl.id))
}

func (g *Gateway) handleProducersState(cl *client, env envelope) {
	_, stage, ok := g.joined(cl, env)
	if !ok {
		return
	}
	g.reply(cl, env, stage.Producers(cl.id))
}
