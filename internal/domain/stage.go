package domain

type StageKind string

const (
	StageTheater    StageKind = "theater"
	StageMusic      StageKind = "music"
	StageConference StageKind = "conference"
)

func (k StageKind) Valid() bool {
	switch k {
	case StageTheater, StageMusic, StageConference:
		return true
	}
	return false
}

// StageRecord is the persisted description of a stage. The orchestrator
// never mutates a record after creation.
type StageRecord struct {
	ID           StageID   `json:"id"`
	Name         string    `json:"name"`
	Kind         StageKind `json:"type"`
	AccessSecret string    `json:"-"`
	OwnerID      string    `json:"ownerId"`
}

// CheckSecret is the single access-policy point for stage secrets.
// Comparison is plain equality, matching the stored plaintext secret.
func (r *StageRecord) CheckSecret(supplied string) bool {
	return r.AccessSecret == supplied
}
