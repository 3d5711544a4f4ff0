package domain

// StageAction names a room-state-changed broadcast.
type StageAction string

const (
	ActionParticipantAdded   StageAction = "participant/added"
	ActionParticipantRemoved StageAction = "participant/removed"
	ActionProducerAdded      StageAction = "producer/added"
	ActionProducerRemoved    StageAction = "producer/removed"
	ActionProducersState     StageAction = "producers/state"
)

// ParticipantAnnouncement is the minimal participant shape sent to peers.
type ParticipantAnnouncement struct {
	UserID       string       `json:"userId"`
	Name         string       `json:"name"`
	ConnectionID ConnectionID `json:"connectionId"`
}

// ProducerAnnouncement lists one participant's active producer ids.
// ProducerIDs is never nil.
type ProducerAnnouncement struct {
	UserID      string   `json:"userId"`
	ProducerIDs []string `json:"producerIds"`
}

// ProducerChange announces a single producer appearing or disappearing.
type ProducerChange struct {
	UserID     string `json:"userId"`
	ProducerID string `json:"producerId"`
}
