package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/your-org/faceauth/internal/models"
)

// SnapshotStore is the process-local backend: everything lives in maps
// and is rewritten to one JSON file after each mutation. It keeps at
// most one sample per identity; re-enrolling an identity replaces the
// previous record (the blob key is stable, so the crop file is
// overwritten too).
type SnapshotStore struct {
	mu    sync.Mutex
	path  string
	state snapshotState
}

type snapshotState struct {
	NextIdentityID int64                    `json:"next_identity_id"`
	NextSampleID   int64                    `json:"next_sample_id"`
	Identities     map[int64]identityRecord `json:"identities"`
	Samples        map[int64]sampleRecord   `json:"samples"`
}

// identityRecord mirrors models.Identity with every field exported to
// JSON; the model itself hides password_hash from API marshalling.
type identityRecord struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        *string   `json:"email"`
	PasswordHash *string   `json:"password_hash"`
	Level        int       `json:"level"`
	CreatedAt    time.Time `json:"created_at"`
}

type sampleRecord struct {
	ID         int64     `json:"id"`
	IdentityID int64     `json:"identity_id"`
	BlobKey    string    `json:"blob_key"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewSnapshotStore(path string) (*SnapshotStore, error) {
	s := &SnapshotStore{
		path: path,
		state: snapshotState{
			NextIdentityID: 1,
			NextSampleID:   1,
			Identities:     make(map[int64]identityRecord),
			Samples:        make(map[int64]sampleRecord),
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if s.state.Identities == nil {
		s.state.Identities = make(map[int64]identityRecord)
	}
	if s.state.Samples == nil {
		s.state.Samples = make(map[int64]sampleRecord)
	}
	return s, nil
}

// persist writes the whole state through a temp file and rename so a
// crash never leaves a half-written snapshot. Caller holds mu.
func (s *SnapshotStore) persist() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Close() {}

func (s *SnapshotStore) Ping(ctx context.Context) error {
	return nil
}

func toIdentity(r identityRecord) *models.Identity {
	return &models.Identity{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Level:        r.Level,
		CreatedAt:    r.CreatedAt,
	}
}

// --- Identities ---

func (s *SnapshotStore) CreateIdentity(ctx context.Context, p CreateIdentityParams) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Email != nil {
		for _, r := range s.state.Identities {
			if r.Email != nil && *r.Email == *p.Email {
				return nil, fmt.Errorf("create identity: %w", ErrConflict)
			}
		}
	}

	// The counter only moves forward, so ids stay unique even after
	// identities are deleted.
	rec := identityRecord{
		ID:           s.state.NextIdentityID,
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Level:        p.Level,
		CreatedAt:    time.Now().UTC(),
	}
	s.state.NextIdentityID++
	s.state.Identities[rec.ID] = rec

	if err := s.persist(); err != nil {
		delete(s.state.Identities, rec.ID)
		return nil, err
	}
	return toIdentity(rec), nil
}

func (s *SnapshotStore) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Identities[id]
	if !ok {
		return nil, nil
	}
	return toIdentity(rec), nil
}

func (s *SnapshotStore) FindIdentityByLogin(ctx context.Context, login string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var byName *identityRecord
	for _, id := range s.sortedIdentityIDs() {
		rec := s.state.Identities[id]
		if rec.Email != nil && *rec.Email == login {
			return toIdentity(rec), nil
		}
		if byName == nil && rec.Name == login {
			r := rec
			byName = &r
		}
	}
	if byName != nil {
		return toIdentity(*byName), nil
	}
	return nil, nil
}

func (s *SnapshotStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idents := make([]models.Identity, 0, len(s.state.Identities))
	for _, id := range s.sortedIdentityIDs() {
		idents = append(idents, *toIdentity(s.state.Identities[id]))
	}
	return idents, nil
}

func (s *SnapshotStore) DeleteIdentity(ctx context.Context, id int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Identities[id]; !ok {
		return nil, ErrNotFound
	}

	var keys []string
	for sid, sample := range s.state.Samples {
		if sample.IdentityID == id {
			keys = append(keys, sample.BlobKey)
			delete(s.state.Samples, sid)
		}
	}
	delete(s.state.Identities, id)

	if err := s.persist(); err != nil {
		return nil, err
	}
	return keys, nil
}

// sortedIdentityIDs keeps iteration deterministic. Caller holds mu.
func (s *SnapshotStore) sortedIdentityIDs() []int64 {
	ids := make([]int64, 0, len(s.state.Identities))
	for id := range s.state.Identities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// --- Face samples ---

// SampleKey is stable per identity: one crop file per user, overwritten
// on re-enrollment.
func (s *SnapshotStore) SampleKey(identityID int64) string {
	return fmt.Sprintf("user_%d.png", identityID)
}

func (s *SnapshotStore) AddFaceSample(ctx context.Context, identityID int64, blobKey string) (*models.FaceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Identities[identityID]; !ok {
		return nil, fmt.Errorf("add face sample: identity %d: %w", identityID, ErrNotFound)
	}

	// Drop the previous record for this identity, if any.
	for sid, sample := range s.state.Samples {
		if sample.IdentityID == identityID {
			delete(s.state.Samples, sid)
		}
	}

	rec := sampleRecord{
		ID:         s.state.NextSampleID,
		IdentityID: identityID,
		BlobKey:    blobKey,
		CreatedAt:  time.Now().UTC(),
	}
	s.state.NextSampleID++
	s.state.Samples[rec.ID] = rec

	if err := s.persist(); err != nil {
		return nil, err
	}
	return &models.FaceSample{
		ID:         rec.ID,
		IdentityID: rec.IdentityID,
		BlobKey:    rec.BlobKey,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func (s *SnapshotStore) ListFaceSamples(ctx context.Context) ([]models.FaceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.state.Samples))
	for id := range s.state.Samples {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	samples := make([]models.FaceSample, 0, len(ids))
	for _, id := range ids {
		rec := s.state.Samples[id]
		samples = append(samples, models.FaceSample{
			ID:         rec.ID,
			IdentityID: rec.IdentityID,
			BlobKey:    rec.BlobKey,
			CreatedAt:  rec.CreatedAt,
		})
	}
	return samples, nil
}

func (s *SnapshotStore) CountFaceSamples(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Samples), nil
}

func (s *SnapshotStore) CountSamplesFor(ctx context.Context, identityID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sample := range s.state.Samples {
		if sample.IdentityID == identityID {
			count++
		}
	}
	return count, nil
}

func (s *SnapshotStore) CountIdentities(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Identities), nil
}
