package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/domain"
)

// Stage is the authoritative membership and producer-state view of one
// room. It lives from first join until process shutdown.
type Stage struct {
	id     domain.StageID
	engine Engine
	events *EventBroadcaster

	mu           sync.Mutex
	participants []*ParticipantSession

	// routerMu only guards lazy router creation so a slow engine call
	// never blocks joins and leaves.
	routerMu sync.Mutex
	router   RouterHandle
}

func NewStage(id domain.StageID, engine Engine, events *EventBroadcaster) *Stage {
	return &Stage{id: id, engine: engine, events: events}
}

func (s *Stage) ID() domain.StageID { return s.id }

// Router returns the stage's routing context, creating it on first call.
// Concurrent first callers observe exactly one creation; a failed creation
// leaves the slot empty so a later call may retry.
func (s *Stage) Router(ctx context.Context) (RouterHandle, error) {
	s.routerMu.Lock()
	defer s.routerMu.Unlock()
	if s.router != nil {
		return s.router, nil
	}
	router, err := s.engine.CreateRouter(ctx, s.id)
	if err != nil {
		return nil, err
	}
	s.router = router
	log.Info().Str("module", "core.stage").Str("stage", string(s.id)).Str("router", router.ID()).Msg("router created")
	return router, nil
}

// AddParticipant registers the session in the room, subscribes its
// connection to room events and announces it to the other participants.
// A second add with the same connection id fails with
// ErrDuplicateParticipant and changes nothing.
func (s *Stage) AddParticipant(p *ParticipantSession) error {
	s.mu.Lock()
	for _, existing := range s.participants {
		if existing.ConnectionID() == p.ConnectionID() {
			s.mu.Unlock()
			return ErrDuplicateParticipant
		}
	}
	s.participants = append(s.participants, p)
	count := len(s.participants)
	s.mu.Unlock()

	s.events.Subscribe(s.id, p.ConnectionID(), p.Signal())
	s.events.Publish(s.id, domain.ActionParticipantAdded, p.Announcement(), p.ConnectionID())
	log.Info().
		Str("module", "core.stage").
		Str("stage", string(s.id)).
		Str("user", p.Identity().ID).
		Str("conn", string(p.ConnectionID())).
		Int("participants", count).
		Msg("participant added")
	return nil
}

// RemoveParticipant drops the matching session, releases all its media
// handles and announces the removal. Removing an absent connection id is
// a no-op: disconnects and explicit leaves are expected to race.
func (s *Stage) RemoveParticipant(connID domain.ConnectionID) {
	s.mu.Lock()
	var removed *ParticipantSession
	for i, p := range s.participants {
		if p.ConnectionID() == connID {
			removed = p
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if removed == nil {
		return
	}
	s.events.Unsubscribe(s.id, connID)
	removed.Resources().ReleaseAll()
	s.events.Publish(s.id, domain.ActionParticipantRemoved, removed.Announcement(), "")
	log.Info().
		Str("module", "core.stage").
		Str("stage", string(s.id)).
		Str("user", removed.Identity().ID).
		Str("conn", string(connID)).
		Msg("participant removed")
}

// Participants returns a point-in-time roster snapshot, optionally
// filtering out one connection. Later stage mutation never changes an
// already returned snapshot.
func (s *Stage) Participants(exclude domain.ConnectionID) []domain.ParticipantAnnouncement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ParticipantAnnouncement, 0, len(s.participants))
	for _, p := range s.participants {
		if exclude != "" && p.ConnectionID() == exclude {
			continue
		}
		out = append(out, p.Announcement())
	}
	return out
}

// Producers returns the current producer roster, recomputed from live
// sessions on every call.
func (s *Stage) Producers(exclude domain.ConnectionID) []domain.ProducerAnnouncement {
	s.mu.Lock()
	sessions := make([]*ParticipantSession, 0, len(s.participants))
	for _, p := range s.participants {
		if exclude != "" && p.ConnectionID() == exclude {
			continue
		}
		sessions = append(sessions, p)
	}
	s.mu.Unlock()

	out := make([]domain.ProducerAnnouncement, 0, len(sessions))
	for _, p := range sessions {
		out = append(out, domain.ProducerAnnouncement{
			UserID:      p.Identity().ID,
			ProducerIDs: p.Resources().ProducerIDs(),
		})
	}
	return out
}

func (s *Stage) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}
