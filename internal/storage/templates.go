package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/your-org/faceauth/internal/observability"
	"github.com/your-org/faceauth/internal/vision"
)

// LabeledSample is one training example: a stored face crop and the
// identity id that serves as its classifier label.
type LabeledSample struct {
	Image *image.Gray
	Label int64
}

// TemplateStore persists face crops: metadata rows in a Store, crop
// content in a BlobStore. Which Store decides whether samples append
// or overwrite; TemplateStore is indifferent.
type TemplateStore struct {
	meta  Store
	blobs BlobStore
}

func NewTemplateStore(meta Store, blobs BlobStore) *TemplateStore {
	return &TemplateStore{meta: meta, blobs: blobs}
}

// AddSample writes the crop and records the association. The identity
// row must already exist; its id names the blob.
func (t *TemplateStore) AddSample(ctx context.Context, identityID int64, crop *image.Gray) (string, error) {
	data, err := vision.EncodeGrayPNG(crop)
	if err != nil {
		return "", err
	}

	key := t.meta.SampleKey(identityID)
	if err := t.blobs.Put(ctx, key, data); err != nil {
		return "", err
	}
	if _, err := t.meta.AddFaceSample(ctx, identityID, key); err != nil {
		return "", err
	}
	return key, nil
}

// Samples loads every stored crop with its label, for retraining.
// Records whose backing blob has vanished are skipped, counted, and
// logged; a registry that references deleted files is degraded state,
// not an error.
func (t *TemplateStore) Samples(ctx context.Context) ([]LabeledSample, error) {
	records, err := t.meta.ListFaceSamples(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]LabeledSample, 0, len(records))
	for _, rec := range records {
		data, err := t.blobs.Get(ctx, rec.BlobKey)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				observability.StaleSamplesSkipped.Inc()
				slog.Warn("skipping sample with missing crop file",
					"identity_id", rec.IdentityID, "blob_key", rec.BlobKey)
				continue
			}
			return nil, err
		}

		crop, err := vision.DecodeGrayPNG(data)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", rec.ID, err)
		}
		samples = append(samples, LabeledSample{Image: crop, Label: rec.IdentityID})
	}
	return samples, nil
}

// RemoveIdentity cascades: sample records go with the identity row,
// then the crop blobs are cleaned up. A blob that is already gone is
// not an error.
func (t *TemplateStore) RemoveIdentity(ctx context.Context, identityID int64) error {
	keys, err := t.meta.DeleteIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := t.blobs.Delete(ctx, key); err != nil {
			slog.Warn("delete crop blob", "blob_key", key, "error", err)
		}
	}
	return nil
}
