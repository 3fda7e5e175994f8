package models

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/myid/internal/cryptox"
)

// ActionType is the kind of a queued sync action.
type ActionType string

const (
	ActionUpsert ActionType = "UPSERT"
	ActionDelete ActionType = "DELETE"
)

// MaxSyncAttempts is the number of failed deliveries after which an action is
// abandoned.
const MaxSyncAttempts = 5

// SyncAction is one pending change waiting for the remote endpoint.
//
// When protection is enabled an UPSERT keeps only {"id"} in Payload and the
// full record in EncryptedPayload.
type SyncAction struct {
	ID               string
	Type             ActionType
	Payload          json.RawMessage
	EncryptedPayload *cryptox.Sealed
	CreatedAt        time.Time
	Attempts         int
}

// RemoteProfile is the record sent to the remote endpoint.
type RemoteProfile struct {
	ID        string            `json:"id"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// RecordID is the clear part of every payload.
type RecordID struct {
	ID string `json:"id"`
}
