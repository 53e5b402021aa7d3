package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
)

// MoveRequest is a queued token movement.
type MoveRequest struct {
	RequestID string           `json:"request_id"`
	TokenID   uuid.UUID        `json:"token_id"`
	Patch     actor.TokenPatch `json:"patch"`

	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts,omitempty"` // Times the request was re-queued because its token was locked
}

// NewMoveRequest creates a request with a fresh ID.
func NewMoveRequest(tokenID uuid.UUID, patch actor.TokenPatch) *MoveRequest {
	return &MoveRequest{
		RequestID:  uuid.NewString(),
		TokenID:    tokenID,
		Patch:      patch,
		EnqueuedAt: time.Now(),
	}
}

// ToJSON converts the request to JSON bytes for Redis
func (r *MoveRequest) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*MoveRequest, error) {
	var req MoveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
