package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestStoreSetAndGet(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir, DefaultOptions())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "b", "1234", 0))
	got, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "1234", got)

	cold := newTestStore(t, dir, DefaultOptions())
	got, err = cold.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "1234", got)
}

func TestStoreNeverExpiresUsesEpochMtime(t *testing.T) {
	store := newTestStore(t, t.TempDir(), DefaultOptions())
	require.NoError(t, store.Set(context.Background(), "b", "1234", 0))

	info, err := os.Stat(store.Path("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.ModTime().UnixMilli())
}

func TestStoreAlreadyExpiredEntry(t *testing.T) {
	opts := DefaultOptions()
	opts.Namer = RawNamer
	dir := t.TempDir()
	store := newTestStore(t, dir, opts)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", "1234", -day))

	filePath := filepath.Join(dir, "a.json")
	assert.FileExists(t, filePath)

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, filePath)
}

func TestStoreExpiredEntryRemovedByColdReader(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	writer := newTestStore(t, dir, DefaultOptions())
	require.NoError(t, writer.Set(ctx, "a", "1234", -day))

	reader := newTestStore(t, dir, DefaultOptions())
	assert.False(t, reader.Has(ctx, "a"))
	assert.NoFileExists(t, reader.Path("a"))
}

func TestStoreLiveTTLSurvivesColdInstance(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := newTestStore(t, dir, DefaultOptions())
	require.NoError(t, store.Set(ctx, "c", "b", day))

	got, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	cold := newTestStore(t, dir, DefaultOptions())
	got, err = cold.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestStoreDiskExpiryFollowsClock(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	base := time.Now()

	opts := DefaultOptions()
	opts.Clock = func() time.Time { return base }
	writer := newTestStore(t, dir, opts)
	require.NoError(t, writer.Set(ctx, "k", "v", time.Hour))

	later := DefaultOptions()
	later.Clock = func() time.Time { return base.Add(2 * time.Hour) }
	reader := newTestStore(t, dir, later)
	_, err := reader.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, writer.Path("k"))
}

func TestStoreOverlayExpiryIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	opts := DefaultOptions()
	opts.Clock = func() time.Time { return now }
	store := newTestStore(t, t.TempDir(), opts)
	require.NoError(t, store.Set(ctx, "k", "v", time.Second))

	now = now.Add(2 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, store.Path("k"))
	assert.Equal(t, 0, store.Stats().OverlayEntries)
}

func TestStoreOverlayServesWithoutDisk(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir(), DefaultOptions())
	require.NoError(t, store.Set(ctx, "k", "v", 0))

	// 内存层命中时不读盘
	require.NoError(t, os.Remove(store.Path("k")))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestStoreSharedOverlay(t *testing.T) {
	ctx := context.Background()
	overlay := NewOverlay()

	opts := DefaultOptions()
	opts.Overlay = overlay
	first := newTestStore(t, t.TempDir(), opts)
	second := newTestStore(t, t.TempDir(), opts)

	require.NoError(t, first.Set(ctx, "shared", "x", 0))
	got, err := second.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Equal(t, 1, overlay.Len())
}

func TestStoreWithoutOverlayReadsDisk(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.DisableOverlay = true
	store := newTestStore(t, t.TempDir(), opts)

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	require.NoError(t, os.Remove(store.Path("k")))
	assert.False(t, store.Has(ctx, "k"))
	assert.False(t, store.Stats().OverlayEnabled)
}

func TestStoreEmptyValueDeletes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir(), DefaultOptions())

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	require.NoError(t, store.Set(ctx, "k", "", 0))
	assert.False(t, store.Has(ctx, "k"))
	assert.NoFileExists(t, store.Path("k"))
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir(), DefaultOptions())

	require.NoError(t, store.Delete(ctx, "missing"))
	require.NoError(t, store.Set(ctx, "k", "v", 0))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, store.Has(ctx, "k"))
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.Prefix = "data/nested/"
	store := newTestStore(t, dir, opts)

	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		require.NoError(t, store.Set(ctx, k, "v-"+k, 0))
	}
	require.NoError(t, store.Clear(ctx))

	for _, k := range keys {
		assert.False(t, store.Has(ctx, k), k)
	}
	assert.DirExists(t, dir)
	assert.Equal(t, 0, store.Stats().OverlayEntries)

	require.NoError(t, store.Set(ctx, "a", "again", 0))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "again", got)
}

func TestStoreCollidingReadablePrefixes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newTestStore(t, dir, DefaultOptions())

	require.NoError(t, store.Set(ctx, "a/b", "slash", 0))
	require.NoError(t, store.Set(ctx, "ab", "plain", 0))
	assert.NotEqual(t, store.Path("a/b"), store.Path("ab"))

	cold := newTestStore(t, dir, DefaultOptions())
	got, err := cold.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "slash", got)
	got, err = cold.Get(ctx, "ab")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestStoreNestedPrefixMirrorsRawPaths(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newTestStore(t, dir, Options{
		Namer:      RawNamer,
		Prefix:     "data/",
		Suffix:     ".json",
		MtimeAsTTL: true,
	})

	require.NoError(t, store.Set(ctx, "foo", `{"a":1}`, 0))
	body, err := os.ReadFile(filepath.Join(dir, "data", "foo.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t, t.TempDir(), DefaultOptions())
	require.NoError(t, os.MkdirAll(store.Path("dir"), 0o755))

	_, err := store.Get(context.Background(), "dir")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreWithoutMtimeTTL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MtimeAsTTL = false
	store := newTestStore(t, dir, opts)

	require.NoError(t, store.Set(ctx, "k", "v", -day))
	info, err := os.Stat(store.Path("k"))
	require.NoError(t, err)
	assert.NotEqual(t, int64(0), info.ModTime().UnixMilli())

	// 仅内存层知道过期
	cold := newTestStore(t, dir, opts)
	got, err := cold.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	assert.False(t, store.Has(ctx, "k"))
	assert.False(t, store.Stats().MtimeAsTTL)
}

func TestStoreStampFailureDropsOverlay(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Expiry = failingCodec{}
	store := newTestStore(t, t.TempDir(), opts)

	err := store.Set(ctx, "k", "v", time.Hour)
	require.Error(t, err)
	assert.Equal(t, 0, store.Stats().OverlayEntries)
}

func TestStoreHonoursCanceledContext(t *testing.T) {
	store := newTestStore(t, t.TempDir(), DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Set(ctx, "k", "v", 0), context.Canceled)
	assert.ErrorIs(t, store.Delete(ctx, "k"), context.Canceled)
	assert.ErrorIs(t, store.Clear(ctx), context.Canceled)
}

func TestStoreStatFailureIsAbsent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger, hook := logtest.NewNullLogger()

	opts := DefaultOptions()
	opts.Prefix = "blocker/"
	opts.Logger = logger
	store := newTestStore(t, dir, opts)

	// 以普通文件占住前缀目录，stat 返回 ENOTDIR 而不是 ENOENT
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocker"), []byte("x"), 0o644))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, store.Has(ctx, "k"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "cache_get", entry.Data["action"])
	assert.Equal(t, store.Path("k"), entry.Data["path"])

	// 写入同一路径是真实的 I/O 错误，需要返回
	assert.Error(t, store.Set(ctx, "k", "v", 0))
	assert.Equal(t, 0, store.Stats().OverlayEntries)
}

func TestStoreReadFailureIsAbsent(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 不受文件权限限制")
	}
	ctx := context.Background()
	dir := t.TempDir()
	logger, hook := logtest.NewNullLogger()

	opts := DefaultOptions()
	opts.Logger = logger
	writer := newTestStore(t, dir, opts)
	require.NoError(t, writer.Set(ctx, "k", "v", 0))

	path := writer.Path("k")
	require.NoError(t, os.Chmod(path, 0o000))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	reader := newTestStore(t, dir, opts)
	_, err := reader.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.FileExists(t, path)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "cache_get", entry.Data["action"])
}

func TestRemoveAllRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := removeAllWithRetry(context.Background(), "/cache", func(dir string) error {
		calls++
		assert.Equal(t, "/cache", dir)
		if calls < 3 {
			return &os.PathError{Op: "unlinkat", Path: dir, Err: syscall.ENOTEMPTY}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRemoveAllStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := removeAllWithRetry(context.Background(), "/cache", func(dir string) error {
		calls++
		return &os.PathError{Op: "unlinkat", Path: dir, Err: syscall.EACCES}
	})
	assert.ErrorIs(t, err, syscall.EACCES)
	assert.Equal(t, 1, calls)
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore("", DefaultOptions())
	assert.ErrorIs(t, err, ErrDirectoryRequired)

	opts := DefaultOptions()
	opts.Prefix = "../outside/"
	_, err = NewStore(t.TempDir(), opts)
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "fresh", "cache")
	_, err = NewStore(dir, DefaultOptions())
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

type failingCodec struct{}

func (failingCodec) Stamp(string, Deadline, time.Time) error {
	return errors.New("stamp failed")
}

func (failingCodec) Load(string, fs.FileInfo) (Deadline, error) {
	return NeverExpires, nil
}

// newTestStore returns a Store rooted at dir with a private overlay.
func newTestStore(t *testing.T, dir string, opts Options) Store {
	t.Helper()
	store, err := NewStore(dir, opts)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
