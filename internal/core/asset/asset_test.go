package asset_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipworks/reframe/internal/core/asset"
	"github.com/clipworks/reframe/internal/core/asset/store/assetdb"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type seqID struct{ n int }

func (s *seqID) UniqueID(prefix string) string {
	s.n++
	return fmt.Sprintf("%s_%d", prefix, s.n)
}

func newCore(t *testing.T) *asset.Core {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	store := assetdb.NewDB(db).AutoMigrate(true)
	return asset.NewCore(store, &seqID{}, t.TempDir())
}

func TestStoreDedupIdempotence(t *testing.T) {
	core := newCore(t)
	ctx := context.Background()
	content := []byte("fake mp4 payload for dedup")

	first, err := core.Store(ctx, bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if first.Deduplicated {
		t.Fatal("first store reported deduplicated")
	}
	if first.Asset.RefCount != 1 {
		t.Fatalf("refcount = %d, want 1", first.Asset.RefCount)
	}
	if !core.Exists(first.Asset) {
		t.Fatal("bytes not persisted")
	}

	second, err := core.Store(ctx, bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Deduplicated {
		t.Fatal("second store of identical bytes should deduplicate")
	}
	if second.Asset.ID != first.Asset.ID {
		t.Fatalf("asset id changed: %s != %s", second.Asset.ID, first.Asset.ID)
	}
	if second.Asset.RefCount != 2 {
		t.Fatalf("refcount = %d, want 2", second.Asset.RefCount)
	}
}

func TestStoreDistinctContent(t *testing.T) {
	core := newCore(t)
	ctx := context.Background()

	a, err := core.Store(ctx, bytes.NewReader([]byte("content a")))
	if err != nil {
		t.Fatal(err)
	}
	b, err := core.Store(ctx, bytes.NewReader([]byte("content b")))
	if err != nil {
		t.Fatal(err)
	}
	if a.Asset.ID == b.Asset.ID || a.Asset.Hash == b.Asset.Hash {
		t.Fatal("distinct content should produce distinct assets")
	}
}

func TestReleaseReclaimsAtZero(t *testing.T) {
	core := newCore(t)
	ctx := context.Background()
	content := []byte("shared upload")

	first, _ := core.Store(ctx, bytes.NewReader(content))
	_, _ = core.Store(ctx, bytes.NewReader(content))
	full := core.FullPath(first.Asset)

	if err := core.Release(ctx, first.Asset.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(full); err != nil {
		t.Fatal("bytes reclaimed while refcount > 0")
	}
	got, err := core.GetAsset(ctx, first.Asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RefCount != 1 {
		t.Fatalf("refcount = %d, want 1", got.RefCount)
	}

	if err := core.Release(ctx, first.Asset.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Fatal("bytes should be reclaimed at refcount zero")
	}
	if _, err := core.GetAsset(ctx, first.Asset.ID); err == nil {
		t.Fatal("asset record should be gone")
	}
}

func TestStorePathDerivedFromHash(t *testing.T) {
	core := newCore(t)
	res, err := core.Store(context.Background(), bytes.NewReader([]byte("payload")))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(res.Asset.Hash[:2], res.Asset.Hash)
	if res.Asset.Path != want {
		t.Fatalf("path = %s, want %s", res.Asset.Path, want)
	}
}
