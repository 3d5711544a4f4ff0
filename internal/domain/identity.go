// Package domain contains entities without logic, just meta-data.
package domain

type (
	// ConnectionID identifies one live signaling connection.
	ConnectionID string
	// StageID identifies a stage record and its in-memory stage.
	StageID string
)

// Identity is the resolved user behind a verified token.
type Identity struct {
	ID          string `json:"userId"`
	DisplayName string `json:"name"`
}
