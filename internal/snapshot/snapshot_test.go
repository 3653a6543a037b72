package snapshot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

func storeCfg() *config.Cache {
	cfg := &config.Cache{Store: config.StoreCfg{SizeBytes: 1 << 20}}
	cfg.Adjust()
	return cfg
}

func snapCfg(dir string, gz bool) *config.SnapshotCfg {
	return &config.SnapshotCfg{
		Dir:         dir,
		Name:        "test",
		Gzip:        gz,
		CRCControl:  true,
		MaxVersions: 2,
	}
}

// TestManager_DumpLoad_RoundTrip persists a cache and restores it into a
// fresh one, dirty flags included.
func TestManager_DumpLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := cache.New(ctx, storeCfg(), slog.Default())
	_, _ = src.Put("clean", []byte("v1"), false)
	_, _ = src.Put("dirty", []byte("v2"), true)

	require.NoError(t, NewManager(snapCfg(dir, false), src).Dump(ctx))

	dst := cache.New(ctx, storeCfg(), slog.Default())
	require.NoError(t, NewManager(snapCfg(dir, false), dst).Load(ctx))

	require.Equal(t, int64(2), dst.Len())

	entry, ok := dst.Entry(model.NewKey("dirty").Value())
	require.True(t, ok)
	require.Equal(t, []byte("v2"), entry.PayloadBytes())
	require.True(t, entry.IsDirty(), "dirty flag must survive the restart")

	clean, ok := dst.Entry(model.NewKey("clean").Value())
	require.True(t, ok)
	require.Equal(t, []byte("v1"), clean.PayloadBytes())
	require.False(t, clean.IsDirty())
}

// TestManager_DumpLoad_Gzip round-trips through compressed shard files.
func TestManager_DumpLoad_Gzip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := cache.New(ctx, storeCfg(), slog.Default())
	_, _ = src.Put("k", []byte("payload"), false)

	require.NoError(t, NewManager(snapCfg(dir, true), src).Dump(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "v1", "*.snap.gz"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "gzip mode must produce .snap.gz files")

	dst := cache.New(ctx, storeCfg(), slog.Default())
	require.NoError(t, NewManager(snapCfg(dir, true), dst).Load(ctx))
	require.Equal(t, int64(1), dst.Len())
}

// TestManager_Load_DropsExpired entries past their ttl do not come back.
func TestManager_Load_DropsExpired(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := cache.New(ctx, storeCfg(), slog.Default())
	_, _ = src.Put("fresh", []byte("v"), false)
	hash, _ := src.Put("stale", []byte("v"), false)

	entry, ok := src.Entry(hash)
	require.True(t, ok)
	entry.SetTTL(time.Minute)
	entry.ForceExpire()

	require.NoError(t, NewManager(snapCfg(dir, false), src).Dump(ctx))

	dst := cache.New(ctx, storeCfg(), slog.Default())
	require.NoError(t, NewManager(snapCfg(dir, false), dst).Load(ctx))

	require.Equal(t, int64(1), dst.Len(), "the stale entry must not be restored")
}

// TestManager_Rotation keeps only MaxVersions version dirs.
func TestManager_Rotation(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := cache.New(ctx, storeCfg(), slog.Default())
	_, _ = src.Put("k", []byte("v"), false)
	m := NewManager(snapCfg(dir, false), src)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.Dump(ctx))
		time.Sleep(10 * time.Millisecond) // distinct mod times for rotation order
	}

	dirs, err := filepath.Glob(filepath.Join(dir, "v*"))
	require.NoError(t, err)
	require.Len(t, dirs, 2)
}

// TestManager_Load_NoSnapshots reports an error when nothing was dumped.
func TestManager_Load_NoSnapshots(t *testing.T) {
	dir := t.TempDir()
	dst := cache.New(context.Background(), storeCfg(), slog.Default())
	require.Error(t, NewManager(snapCfg(dir, false), dst).Load(context.Background()))
}

// TestManager_Disabled both directions refuse to run without a config.
func TestManager_Disabled(t *testing.T) {
	dst := cache.New(context.Background(), storeCfg(), slog.Default())
	m := NewManager(nil, dst)
	require.ErrorIs(t, m.Dump(context.Background()), ErrDisabled)
	require.ErrorIs(t, m.Load(context.Background()), ErrDisabled)
}

// TestManager_Load_RejectsCorruptRecord CRC control skips a flipped byte.
func TestManager_Load_RejectsCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := cache.New(ctx, storeCfg(), slog.Default())
	_, _ = src.Put("k", []byte("payload-to-corrupt"), false)
	require.NoError(t, NewManager(snapCfg(dir, false), src).Dump(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "v1", "*.snap"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(files[0], data, 0o644))

	dst := cache.New(ctx, storeCfg(), slog.Default())
	require.Error(t, NewManager(snapCfg(dir, false), dst).Load(ctx))
	require.Equal(t, int64(0), dst.Len())
}
