package storage

import (
	"context"
	"errors"

	"github.com/your-org/faceauth/internal/models"
)

var (
	// ErrNotFound means the record or blob does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint was violated.
	ErrConflict = errors.New("conflict")
)

// CreateIdentityParams carries the fields set at enrollment time.
// Email and PasswordHash are optional.
type CreateIdentityParams struct {
	Name         string
	Email        *string
	PasswordHash *string
	Level        int
}

// Store persists identity and face sample metadata. Two implementations
// exist: PostgresStore (relational, append-mode samples) and
// SnapshotStore (in-memory map snapshotted to disk, one sample per
// identity). The workflow layer is backend-agnostic.
type Store interface {
	CreateIdentity(ctx context.Context, p CreateIdentityParams) (*models.Identity, error)
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	// FindIdentityByLogin matches email or name equality, email first.
	FindIdentityByLogin(ctx context.Context, login string) (*models.Identity, error)
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	// DeleteIdentity cascades to the identity's sample records and
	// returns the blob keys that backed them.
	DeleteIdentity(ctx context.Context, id int64) ([]string, error)

	// SampleKey derives the blob key for a new sample of the given
	// identity. The snapshot backend returns a stable per-identity key
	// so re-enrollment overwrites; the relational backend returns a
	// fresh key so history accumulates.
	SampleKey(identityID int64) string
	AddFaceSample(ctx context.Context, identityID int64, blobKey string) (*models.FaceSample, error)
	ListFaceSamples(ctx context.Context) ([]models.FaceSample, error)
	CountFaceSamples(ctx context.Context) (int, error)
	CountSamplesFor(ctx context.Context, identityID int64) (int, error)
	CountIdentities(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close()
}
