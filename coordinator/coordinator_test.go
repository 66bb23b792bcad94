package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardfs/metastore"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	store, err := metastore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	c, err := New(cfg, store, nil, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		_ = store.Close()
	})
	return c
}

func TestRootExists(t *testing.T) {
	c := newTestCoordinator(t)
	exists, err := c.PathExists("/")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMkdirThenExists(t *testing.T) {
	c := newTestCoordinator(t)
	ok, msg := c.Mkdir("", "/a")
	require.True(t, ok, msg)

	exists, err := c.PathExists("/a")
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := c.Ls("/")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["a"])
}

func TestMkdirRejectsDuplicateAndMissingParent(t *testing.T) {
	c := newTestCoordinator(t)
	ok, _ := c.Mkdir("", "/a")
	require.True(t, ok)

	ok, msg := c.Mkdir("", "/a")
	assert.False(t, ok)
	assert.Equal(t, "Directory already exists", msg)

	ok, msg = c.Mkdir("", "/missing/child")
	assert.False(t, ok)
	assert.Equal(t, "Parent directory does not exist", msg)
}

func TestRegisterHeartbeatAndDataNodes(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("127.0.0.1:9001")
	assert.Contains(t, c.GetDataNodes(), "127.0.0.1:9001")

	addr, err := c.GetDataNode()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", addr)
}

func TestGetDataNodeNoneAvailable(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.GetDataNode()
	assert.ErrorIs(t, err, ErrNoDataNode)
}

func TestHeartbeatExpiry(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("node-a")
	time.Sleep(100 * time.Millisecond)
	assert.NotContains(t, c.GetDataNodes(), "node-a")
}

func TestStoreAndGetMetadataSimpleUpload(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("n1")
	c.Register("n2")
	c.Register("n3")

	err := c.StoreMetadata(StoreMetadataRequest{
		Name: "a.txt", NBlocks: 1, BlockSize: 65536, TotalSize: 150, Cwd: "/",
	})
	require.NoError(t, err)

	meta, err := c.GetMetadata("a.txt", "/")
	require.NoError(t, err)
	assert.Equal(t, int64(150), meta.TotalSize)
	require.Len(t, meta.Blocks, 1)
	assert.Equal(t, int64(150), meta.Blocks[0].Size)
	assert.Len(t, meta.Blocks[0].Locations, 3)

	entries, err := c.Ls("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, int64(150), entries[0].Size)
}

func TestStoreMetadataLastBlockSizeFix(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("n1")

	// 150000 bytes over 65536-byte blocks: 3 blocks, last one short.
	err := c.StoreMetadata(StoreMetadataRequest{
		Name: "b.bin", NBlocks: 3, BlockSize: 65536, TotalSize: 150000, Cwd: "/",
	})
	require.NoError(t, err)

	meta, err := c.GetMetadata("b.bin", "/")
	require.NoError(t, err)
	require.Len(t, meta.Blocks, 3)
	assert.Equal(t, int64(65536), meta.Blocks[0].Size)
	assert.Equal(t, int64(65536), meta.Blocks[1].Size)
	assert.Equal(t, int64(150000-2*65536), meta.Blocks[2].Size)
}

func TestGetMetadataFailsWhenAllReplicasDead(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("only-node")
	require.NoError(t, c.StoreMetadata(StoreMetadataRequest{
		Name: "c.txt", NBlocks: 1, BlockSize: 65536, TotalSize: 10, Cwd: "/",
	}))

	time.Sleep(100 * time.Millisecond) // let the heartbeat expire

	_, err := c.GetMetadata("c.txt", "/")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFileRemovesFromNamespace(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("n1")
	require.NoError(t, c.StoreMetadata(StoreMetadataRequest{
		Name: "d.txt", NBlocks: 2, BlockSize: 65536, TotalSize: 70000, Cwd: "/",
	}))

	plan, err := c.DeleteFile("", "d.txt", "/")
	require.NoError(t, err)
	assert.Len(t, plan, 2)

	_, err = c.GetMetadata("d.txt", "/")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := c.Ls("/")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "d.txt", e.Name)
	}
}

func TestDeleteDirectoryCascade(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("n1")
	c.Register("n2")
	c.Register("n3")

	ok, msg := c.Mkdir("", "/x")
	require.True(t, ok, msg)
	ok, msg = c.Mkdir("", "/x/y")
	require.True(t, ok, msg)

	require.NoError(t, c.StoreMetadata(StoreMetadataRequest{
		Name: "a.txt", NBlocks: 4, BlockSize: 65536, TotalSize: 200 * 1024, Cwd: "/x",
	}))
	require.NoError(t, c.StoreMetadata(StoreMetadataRequest{
		Name: "b.txt", NBlocks: 2, BlockSize: 65536, TotalSize: 100 * 1024, Cwd: "/x/y",
	}))

	result, err := c.DeleteDirectory("", "/x")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesDeleted)
	assert.Equal(t, 2, result.DirsDeleted)
	assert.Len(t, result.Blocks, 6)

	exists, err := c.PathExists("/x")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = c.PathExists("/x/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteDirectoryRejectsRoot(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.DeleteDirectory("", "/")
	assert.ErrorIs(t, err, ErrRootUndeletable)
}

func TestNameResolution(t *testing.T) {
	c := newTestCoordinator(t)
	ok, msg := c.Mkdir("", "/p")
	require.True(t, ok, msg)
	c.Register("n1")
	require.NoError(t, c.StoreMetadata(StoreMetadataRequest{
		Name: "q.txt", NBlocks: 1, BlockSize: 65536, TotalSize: 5, Cwd: "/p",
	}))

	relPath, exists, err := c.ResolveName("q.txt", "/p")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/p/q.txt", relPath)

	absPath, exists, err := c.ResolveName("/p/q.txt", "/")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, relPath, absPath)
}

func TestMetrics(t *testing.T) {
	c := newTestCoordinator(t)
	c.Register("n1")
	require.NoError(t, c.StoreMetadata(StoreMetadataRequest{
		Name: "a.txt", NBlocks: 2, BlockSize: 65536, TotalSize: 70000, Cwd: "/",
	}))

	m, err := c.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 1, m.FileCount)
	assert.Equal(t, 2, m.BlockCount)
	assert.Equal(t, 1, m.LiveNodeCount)
}

func TestEmptyFileUpload(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.StoreMetadata(StoreMetadataRequest{
		Name: "empty.txt", NBlocks: 0, BlockSize: 65536, TotalSize: 0, Cwd: "/",
	}))

	meta, err := c.GetMetadata("empty.txt", "/")
	require.NoError(t, err)
	assert.Empty(t, meta.Blocks)
	assert.Equal(t, int64(0), meta.TotalSize)
}
