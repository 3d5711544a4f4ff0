package core

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/domain"
)

// ErrNotSubscribed means the target connection is not in the room.
var ErrNotSubscribed = errors.New("connection not subscribed")

// Event is the wire shape of a room-state broadcast.
type Event struct {
	Type domain.StageAction `json:"type"`
	Data any                `json:"data"`
}

// EventBroadcaster fans room events out to every connection currently
// subscribed to a stage. Delivery is fire-and-forget: a slow consumer's
// frame is dropped, never awaited.
type EventBroadcaster struct {
	mu    sync.RWMutex
	rooms map[domain.StageID]map[domain.ConnectionID]SignalConnection
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		rooms: make(map[domain.StageID]map[domain.ConnectionID]SignalConnection),
	}
}

func (b *EventBroadcaster) Subscribe(stageID domain.StageID, connID domain.ConnectionID, conn SignalConnection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.rooms[stageID]
	if !ok {
		room = make(map[domain.ConnectionID]SignalConnection)
		b.rooms[stageID] = room
	}
	room[connID] = conn
}

func (b *EventBroadcaster) Unsubscribe(stageID domain.StageID, connID domain.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room, ok := b.rooms[stageID]; ok {
		delete(room, connID)
	}
}

// Publish marshals the event once and hands it to every subscriber's send
// queue, skipping the excluded origin connection if given.
func (b *EventBroadcaster) Publish(stageID domain.StageID, action domain.StageAction, payload any, exclude domain.ConnectionID) {
	data, err := json.Marshal(Event{Type: action, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Str("action", string(action)).Msg("marshal event")
		return
	}

	b.mu.RLock()
	room := b.rooms[stageID]
	targets := make(map[domain.ConnectionID]SignalConnection, len(room))
	for id, conn := range room {
		if id == exclude {
			continue
		}
		targets[id] = conn
	}
	b.mu.RUnlock()

	for id, conn := range targets {
		if err := conn.TrySend(data); err != nil {
			log.Debug().Err(err).
				Str("module", "core.broadcast").
				Str("stage", string(stageID)).
				Str("conn", string(id)).
				Str("action", string(action)).
				Msg("dropped broadcast frame")
		}
	}
}

// SendTo delivers an arbitrary payload to one subscribed connection.
// Used for targeted relays such as peer-to-peer offer forwarding.
func (b *EventBroadcaster) SendTo(stageID domain.StageID, target domain.ConnectionID, payload any) error {
	b.mu.RLock()
	conn, ok := b.rooms[stageID][target]
	b.mu.RUnlock()
	if !ok {
		return ErrNotSubscribed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.TrySend(data)
}
