package models

import "time"

// Identity is an enrolled user. ID doubles as the classifier label and
// never changes once assigned.
type Identity struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        *string   `json:"email,omitempty" db:"email"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	Level        int       `json:"level" db:"level"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// FaceSample associates one stored face crop with an identity.
// BlobKey addresses the crop in the blob store.
type FaceSample struct {
	ID         int64     `json:"id" db:"id"`
	IdentityID int64     `json:"identity_id" db:"identity_id"`
	BlobKey    string    `json:"blob_key" db:"blob_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
