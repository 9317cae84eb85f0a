package dto

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK   bool         `json:"ok"`
	User UserResponse `json:"user"`
}

type UserResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Level       int    `json:"level"`
	SampleCount int    `json:"sample_count,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}
