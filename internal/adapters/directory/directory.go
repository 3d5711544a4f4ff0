// Package directory is the in-memory identity and stage-record
// collaborator: token verification and stage metadata storage behind the
// core.Directory port. A deployment backed by a real identity provider
// replaces this package without touching the core.
package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/core"
	"github.com/stagecast/stagecast/internal/domain"
)

type Directory struct {
	mu     sync.RWMutex
	tokens map[string]domain.Identity
	stages map[domain.StageID]domain.StageRecord
}

func New() *Directory {
	return &Directory{
		tokens: make(map[string]domain.Identity),
		stages: make(map[domain.StageID]domain.StageRecord),
	}
}

// RegisterToken binds a bearer token to an identity. Used at startup for
// configured tokens and by tests.
func (d *Directory) RegisterToken(token string, identity domain.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[token] = identity
}

func (d *Directory) VerifyToken(_ context.Context, token string) (domain.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	identity, ok := d.tokens[token]
	if !ok {
		return domain.Identity{}, core.ErrAuth
	}
	return identity, nil
}

func (d *Directory) CreateStageRecord(_ context.Context, name string, kind domain.StageKind, secret string, owner domain.Identity) (*domain.StageRecord, error) {
	record := domain.StageRecord{
		ID:           domain.StageID(uuid.NewString()),
		Name:         name,
		Kind:         kind,
		AccessSecret: secret,
		OwnerID:      owner.ID,
	}
	d.mu.Lock()
	d.stages[record.ID] = record
	d.mu.Unlock()
	log.Info().
		Str("module", "directory").
		Str("stage", string(record.ID)).
		Str("name", name).
		Str("kind", string(kind)).
		Msg("stage record created")
	return &record, nil
}

// GetStageRecord returns a copy so the stored record stays immutable.
func (d *Directory) GetStageRecord(_ context.Context, id domain.StageID) (*domain.StageRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	record, ok := d.stages[id]
	if !ok {
		return nil, core.ErrStageNotFound
	}
	return &record, nil
}
