package dto

// Event types published to NATS and broadcast over WebSocket.
const (
	EventIdentityEnrolled = "identity.enrolled"
	EventIdentityDeleted  = "identity.deleted"
	EventAuthMatched      = "auth.matched"
	EventAuthUnmatched    = "auth.unmatched"
)

// FaceEvent describes one enrollment or authentication outcome.
// Distance is present only for authentication events.
type FaceEvent struct {
	Type       string   `json:"type"`
	IdentityID int64    `json:"identity_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Level      int      `json:"level,omitempty"`
	Distance   *float64 `json:"distance,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Timestamp  string   `json:"timestamp"`
}
