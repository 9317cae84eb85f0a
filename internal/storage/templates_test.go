package storage

import (
	"context"
	"image"
	"path/filepath"
	"testing"
)

func grayBlock(size int, shade uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for i := range g.Pix {
		g.Pix[i] = shade
	}
	return g
}

func newTestTemplates(t *testing.T) (*TemplateStore, *SnapshotStore, *FSBlobStore) {
	t.Helper()
	meta, err := NewSnapshotStore(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	blobs, err := NewFSBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBlobStore: %v", err)
	}
	return NewTemplateStore(meta, blobs), meta, blobs
}

func TestTemplateStoreRoundTrip(t *testing.T) {
	templates, meta, _ := newTestTemplates(t)
	ctx := context.Background()

	alice, _ := meta.CreateIdentity(ctx, CreateIdentityParams{Name: "Alice", Level: 1})
	bob, _ := meta.CreateIdentity(ctx, CreateIdentityParams{Name: "Bob", Level: 1})

	if _, err := templates.AddSample(ctx, alice.ID, grayBlock(64, 40)); err != nil {
		t.Fatalf("add Alice sample: %v", err)
	}
	if _, err := templates.AddSample(ctx, bob.ID, grayBlock(64, 200)); err != nil {
		t.Fatalf("add Bob sample: %v", err)
	}

	samples, err := templates.Samples(ctx)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("samples = %d; want 2", len(samples))
	}

	byLabel := map[int64]uint8{}
	for _, s := range samples {
		byLabel[s.Label] = s.Image.Pix[0]
	}
	if byLabel[alice.ID] != 40 || byLabel[bob.ID] != 200 {
		t.Errorf("sample content by label = %v", byLabel)
	}
}

func TestTemplateStoreReenrollReplacesCrop(t *testing.T) {
	templates, meta, _ := newTestTemplates(t)
	ctx := context.Background()

	alice, _ := meta.CreateIdentity(ctx, CreateIdentityParams{Name: "Alice", Level: 1})

	if _, err := templates.AddSample(ctx, alice.ID, grayBlock(64, 10)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := templates.AddSample(ctx, alice.ID, grayBlock(64, 99)); err != nil {
		t.Fatalf("second add: %v", err)
	}

	samples, err := templates.Samples(ctx)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %d; want 1 (snapshot backend keeps one crop per identity)", len(samples))
	}
	if samples[0].Image.Pix[0] != 99 {
		t.Errorf("retrain would use shade %d; want the latest crop (99)", samples[0].Image.Pix[0])
	}
}

func TestTemplateStoreSkipsMissingBlobs(t *testing.T) {
	templates, meta, blobs := newTestTemplates(t)
	ctx := context.Background()

	alice, _ := meta.CreateIdentity(ctx, CreateIdentityParams{Name: "Alice", Level: 1})
	bob, _ := meta.CreateIdentity(ctx, CreateIdentityParams{Name: "Bob", Level: 1})

	aliceKey, err := templates.AddSample(ctx, alice.ID, grayBlock(64, 40))
	if err != nil {
		t.Fatalf("add Alice sample: %v", err)
	}
	if _, err := templates.AddSample(ctx, bob.ID, grayBlock(64, 200)); err != nil {
		t.Fatalf("add Bob sample: %v", err)
	}

	// Simulate a crop file deleted out from under the registry.
	if err := blobs.Delete(ctx, aliceKey); err != nil {
		t.Fatalf("delete blob: %v", err)
	}

	samples, err := templates.Samples(ctx)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %d; want 1 (stale record skipped, not an error)", len(samples))
	}
	if samples[0].Label != bob.ID {
		t.Errorf("surviving sample label = %d; want %d", samples[0].Label, bob.ID)
	}
}

func TestTemplateStoreRemoveIdentity(t *testing.T) {
	templates, meta, blobs := newTestTemplates(t)
	ctx := context.Background()

	alice, _ := meta.CreateIdentity(ctx, CreateIdentityParams{Name: "Alice", Level: 1})
	key, err := templates.AddSample(ctx, alice.ID, grayBlock(64, 40))
	if err != nil {
		t.Fatalf("add sample: %v", err)
	}

	if err := templates.RemoveIdentity(ctx, alice.ID); err != nil {
		t.Fatalf("RemoveIdentity: %v", err)
	}

	if _, err := blobs.Get(ctx, key); err == nil {
		t.Error("crop blob should be gone after RemoveIdentity")
	}
	count, _ := meta.CountIdentities(ctx)
	if count != 0 {
		t.Errorf("identities = %d; want 0", count)
	}
}
