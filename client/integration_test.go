package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardfs/blockserver"
	"shardfs/coordinator"
	"shardfs/metastore"
)

// testCluster wires one coordinator and n block servers over real TCP, the
// same topology the transfer engine talks to in production.
type testCluster struct {
	coordAddr string
}

func newTestCluster(t *testing.T, nodeCount int) *testCluster {
	t.Helper()

	store, err := metastore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	coord, err := coordinator.New(coordinator.DefaultConfig(), store, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })

	coordSrv, err := coordinator.Listen(coord, "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = coordSrv.Serve() }()
	t.Cleanup(func() { _ = coordSrv.Close() })

	coordAddr := coordSrv.Addr().String()

	for i := 0; i < nodeCount; i++ {
		cfg := blockserver.DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.CoordinatorAddr = coordAddr

		bs, err := blockserver.New(cfg, blockserver.NewCoordinatorClient(coordAddr), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = bs.Close() })

		bsSrv, err := blockserver.Listen(bs, "127.0.0.1:0")
		require.NoError(t, err)
		go func() { _ = bsSrv.Serve() }()
		t.Cleanup(func() { _ = bsSrv.Close() })

		bs.SetSelfAddr(bsSrv.Addr().String())
		bs.Start()
	}

	return &testCluster{coordAddr: coordAddr}
}

// A single-node cluster makes the primary write the block's only recorded
// location, so these round trips don't depend on async replication having
// caught up by the time the download runs.
func TestUploadDownloadRoundTrip(t *testing.T) {
	cluster := newTestCluster(t, 1)
	c := New(Config{CoordinatorAddr: cluster.coordAddr, Cwd: "/"}, nil)

	content := make([]byte, 150)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	srcPath := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	require.NoError(t, c.UploadFile(srcPath, "a.bin"))

	dstPath := filepath.Join(t.TempDir(), "dest.bin")
	require.NoError(t, c.DownloadFile("a.bin", dstPath))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUploadDownloadMultiBlockFile(t *testing.T) {
	cluster := newTestCluster(t, 1)
	c := New(Config{CoordinatorAddr: cluster.coordAddr, Cwd: "/"}, nil)

	content := make([]byte, BlockSize*2+100)
	for i := range content {
		content[i] = byte(i % 256)
	}
	srcPath := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	require.NoError(t, c.UploadFile(srcPath, "big.bin"))

	dstPath := filepath.Join(t.TempDir(), "big-dest.bin")
	require.NoError(t, c.DownloadFile("big.bin", dstPath))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

// TestUploadDownloadAcrossReplicas uses 3 live nodes, so the coordinator
// records all 3 as candidate locations for every block even though the
// upload only wrote the primary copy to one of them; the other copies only
// exist once async replication lands them. The download is retried for a
// short window to tolerate that lag rather than assert on a race.
func TestUploadDownloadAcrossReplicas(t *testing.T) {
	cluster := newTestCluster(t, 3)
	c := New(Config{CoordinatorAddr: cluster.coordAddr, Cwd: "/"}, nil)

	content := make([]byte, 10)
	for i := range content {
		content[i] = byte('x' + i)
	}
	srcPath := filepath.Join(t.TempDir(), "r.bin")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	require.NoError(t, c.UploadFile(srcPath, "r.bin"))

	dstPath := filepath.Join(t.TempDir(), "r-dest.bin")
	require.Eventually(t, func() bool {
		return c.DownloadFile("r.bin", dstPath) == nil
	}, 5*time.Second, 50*time.Millisecond)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUploadEmptyFile(t *testing.T) {
	cluster := newTestCluster(t, 1)
	c := New(Config{CoordinatorAddr: cluster.coordAddr, Cwd: "/"}, nil)

	srcPath := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(srcPath, nil, 0o644))

	require.NoError(t, c.UploadFile(srcPath, "empty.bin"))

	dstPath := filepath.Join(t.TempDir(), "empty-dest.bin")
	require.NoError(t, c.DownloadFile("empty.bin", dstPath))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Empty(t, got)
}
