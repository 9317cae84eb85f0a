package dto

// EnrollRequest registers a new identity from a face image.
// Image is a data-URL or raw base64 encoded still. Email and Password
// are optional and only feed the secondary credential login.
type EnrollRequest struct {
	Name     string `json:"name"`
	Level    int    `json:"level"`
	Image    string `json:"image"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

type EnrollResponse struct {
	OK    bool   `json:"ok"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

type AuthRequest struct {
	Image string `json:"image"`
}

// AuthResponse is always HTTP 200 when the request itself was valid;
// a non-match is a normal negative result, not an error.
//
// Confidence is historically named: it carries the classifier's
// distance, so a LOWER value means a MORE confident match. Kept for
// compatibility with existing consumers.
type AuthResponse struct {
	Matched    bool     `json:"matched"`
	Name       string   `json:"name,omitempty"`
	Level      int      `json:"level,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Registered int    `json:"registered"`
	Users      int    `json:"users"`
}
