// Package coordinator implements the namespace, membership, placement, and
// delete-planning authority for the cluster: one per deployment.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"shardfs/metastore"
	"shardfs/pathkey"
)

// Sentinel errors surfaced by coordinator operations.
var (
	ErrNotFound        = errors.New("coordinator: not found")
	ErrAlreadyExists   = errors.New("coordinator: already exists")
	ErrNoParent        = errors.New("coordinator: parent directory does not exist")
	ErrRootUndeletable = errors.New("coordinator: root directory cannot be deleted")
	ErrNoDataNode      = errors.New("coordinator: no datanode available")
)

// Config holds the coordinator's tunables.
type Config struct {
	ReplicationFactor      int
	HeartbeatTimeout       time.Duration
	CacheCapacity          int
	LivenessScanInterval   time.Duration
	LivenessStatusInterval time.Duration
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		ReplicationFactor:      3,
		HeartbeatTimeout:       30 * time.Second,
		CacheCapacity:          1000,
		LivenessScanInterval:   5 * time.Second,
		LivenessStatusInterval: 10 * time.Second,
	}
}

// Coordinator is the namespace + membership + placement authority.
type Coordinator struct {
	cfg   Config
	store metastore.Store
	audit *AuditLog
	log   *log.Logger

	// dirMu guards the directory tree and the file registry together so the
	// cross-structure invariants in the data model hold; it is always taken
	// before the MetadataCache's internal mutex (never the other order).
	dirMu sync.Mutex

	membership *Membership
	load       *LoadCounters
	cache      *MetadataCache

	startTime time.Time
	stop      chan struct{}
}

// New constructs a Coordinator over store, ensuring the root directory exists.
func New(cfg Config, store metastore.Store, audit *AuditLog, logger *log.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[coordinator] ", log.LstdFlags)
	}
	c := &Coordinator{
		cfg:        cfg,
		store:      store,
		audit:      audit,
		log:        logger,
		membership: NewMembership(cfg.HeartbeatTimeout),
		load:       NewLoadCounters(),
		cache:      NewMetadataCache(cfg.CacheCapacity),
		startTime:  time.Now(),
		stop:       make(chan struct{}),
	}
	if err := c.ensureRoot(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Start launches the liveness monitor background loop.
func (c *Coordinator) Start() {
	go c.membership.RunLivenessMonitor(
		c.stop,
		c.cfg.LivenessScanInterval,
		c.cfg.LivenessStatusInterval,
		func(addr string) { c.log.Printf("node %s marked stale, removed from membership", addr) },
		func(live int) { c.log.Printf("status: %d live node(s)", live) },
	)
}

// Close stops background loops and releases resources.
func (c *Coordinator) Close() error {
	close(c.stop)
	if c.audit != nil {
		return c.audit.Close()
	}
	return nil
}

func (c *Coordinator) ensureRoot(ctx context.Context) error {
	exists, err := c.store.HExists(ctx, "directories", "/")
	if err != nil {
		return fmt.Errorf("check root directory: %w", err)
	}
	if exists {
		return nil
	}
	root := newDirEntry(nowEpoch())
	if err := c.saveDirData(ctx, "/", root); err != nil {
		return err
	}
	c.log.Printf("initialized root directory structure")
	return nil
}

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// --- metastore helpers (JSON encode/decode over directories/files namespaces) ---

func (c *Coordinator) getDirData(ctx context.Context, path string) (*DirEntry, bool, error) {
	raw, ok, err := c.store.HGet(ctx, "directories", path)
	if err != nil || !ok {
		return nil, ok, err
	}
	var d DirEntry
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, false, fmt.Errorf("decode directory %s: %w", path, err)
	}
	return &d, true, nil
}

func (c *Coordinator) saveDirData(ctx context.Context, path string, d *DirEntry) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode directory %s: %w", path, err)
	}
	return c.store.HSet(ctx, "directories", path, string(raw))
}

func (c *Coordinator) getFileData(ctx context.Context, storageKey string) (*FileMetadata, bool, error) {
	raw, ok, err := c.store.HGet(ctx, "files", storageKey)
	if err != nil || !ok {
		return nil, ok, err
	}
	var f FileMetadata
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, false, fmt.Errorf("decode file %s: %w", storageKey, err)
	}
	return &f, true, nil
}

func (c *Coordinator) saveFileData(ctx context.Context, storageKey string, f *FileMetadata) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode file %s: %w", storageKey, err)
	}
	return c.store.HSet(ctx, "files", storageKey, string(raw))
}

func (c *Coordinator) pathExistsLocked(ctx context.Context, path string) (bool, error) {
	dirExists, err := c.store.HExists(ctx, "directories", path)
	if err != nil {
		return false, err
	}
	if dirExists {
		return true, nil
	}
	return c.store.HExists(ctx, "files", pathkey.ToStorageKey(path))
}

// PathExists reports whether a canonical path names a directory or a file.
func (c *Coordinator) PathExists(path string) (bool, error) {
	ctx := context.Background()
	path = pathkey.Canonicalize(path)
	c.dirMu.Lock()
	defer c.dirMu.Unlock()
	return c.pathExistsLocked(ctx, path)
}

// ResolveName resolves a request-supplied name against cwd (spec 4.1.1) and
// reports whether the resulting canonical path exists.
func (c *Coordinator) ResolveName(name, cwd string) (string, bool, error) {
	candidate := pathkey.Join(cwd, name)
	ctx := context.Background()
	c.dirMu.Lock()
	defer c.dirMu.Unlock()
	exists, err := c.pathExistsLocked(ctx, candidate)
	if err != nil {
		return "", false, err
	}
	return candidate, exists, nil
}

// --- membership / placement surface (PlacementOracle + PeerDirectory) ---

// Register adds addr to the live set, idempotently.
func (c *Coordinator) Register(addr string) {
	c.membership.Register(addr)
}

// Heartbeat refreshes addr's liveness, auto-registering if unknown.
func (c *Coordinator) Heartbeat(addr string) {
	c.membership.Heartbeat(addr)
}

// GetDataNodes lists the currently live nodes.
func (c *Coordinator) GetDataNodes() []string {
	return c.membership.Live()
}

// GetDataNode returns one live node uniformly at random.
func (c *Coordinator) GetDataNode() (string, error) {
	addr, ok := c.membership.RandomLive()
	if !ok {
		return "", ErrNoDataNode
	}
	return addr, nil
}

// Mkdir creates one directory; the parent must already exist and the path
// must not already be occupied.
func (c *Coordinator) Mkdir(requestID, path string) (bool, string) {
	ctx := context.Background()
	path = pathkey.Canonicalize(path)

	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	if exists, err := c.pathExistsLocked(ctx, path); err != nil {
		return false, err.Error()
	} else if exists {
		return false, "Directory already exists"
	}

	parent := pathkey.Parent(path)
	if parent != "" {
		parentExists, err := c.pathExistsLocked(ctx, parent)
		if err != nil {
			return false, err.Error()
		}
		if !parentExists {
			return false, "Parent directory does not exist"
		}
	}

	entry := newDirEntry(nowEpoch())
	if err := c.saveDirData(ctx, path, entry); err != nil {
		return false, err.Error()
	}

	if parent != "" {
		parentData, ok, err := c.getDirData(ctx, parent)
		if err == nil && ok {
			parentData.Children[pathkey.Base(path)] = ChildInfo{Type: "directory", Created: entry.Created}
			_ = c.saveDirData(ctx, parent, parentData)
		}
	}

	c.log.Printf("created directory %s", path)
	if c.audit != nil {
		c.audit.Record(requestID, "mkdir", path, "")
	}
	return true, "Directory created successfully"
}

// Ls lists a directory's merged children+files entries.
func (c *Coordinator) Ls(path string) ([]DirEntryView, error) {
	ctx := context.Background()
	path = pathkey.Canonicalize(path)

	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	dirData, ok, err := c.getDirData(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: directory '%s' does not exist", ErrNotFound, path)
	}

	entries := make([]DirEntryView, 0, len(dirData.Children)+len(dirData.Files))
	for name, info := range dirData.Children {
		entries = append(entries, DirEntryView{Name: name, Type: info.Type, Created: info.Created})
	}
	for name, info := range dirData.Files {
		entries = append(entries, DirEntryView{Name: name, Type: "file", Created: info.Created, Size: info.Size})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (c *Coordinator) registerFileInDirectory(ctx context.Context, fullPath string, size int64, createdAt float64) error {
	parent := pathkey.Parent(fullPath)
	if parent == "" {
		parent = "/"
	}
	parentData, ok, err := c.getDirData(ctx, parent)
	if err != nil {
		return err
	}
	if !ok {
		parentData = newDirEntry(createdAt)
	}
	parentData.Files[pathkey.Base(fullPath)] = ChildInfo{Type: "file", Created: createdAt, Size: size}
	return c.saveDirData(ctx, parent, parentData)
}

func (c *Coordinator) unregisterFileFromDirectory(ctx context.Context, fullPath string) error {
	parent := pathkey.Parent(fullPath)
	if parent == "" {
		parent = "/"
	}
	parentData, ok, err := c.getDirData(ctx, parent)
	if err != nil || !ok {
		return err
	}
	delete(parentData.Files, pathkey.Base(fullPath))
	return c.saveDirData(ctx, parent, parentData)
}

// StoreMetadataRequest carries the wire-level parameters of store_metadata.
// TotalSize is a deliberate extension of the as-observed 4-argument wire
// request (see DESIGN.md): the original protocol cannot carry enough
// information to compute a correct last-block size, so shardfs's control
// protocol adds it as an explicit field rather than reproducing the
// block_size/2 heuristic the spec identifies as a bug.
type StoreMetadataRequest struct {
	RequestID string
	Name      string
	NBlocks   int
	BlockSize int64
	TotalSize int64
	Cwd       string
}

// StoreMetadata constructs placement for each block, persists the file, and
// links it into its parent directory.
func (c *Coordinator) StoreMetadata(req StoreMetadataRequest) error {
	ctx := context.Background()
	fullPath := pathkey.Join(req.Cwd, req.Name)
	storageKey := pathkey.ToStorageKey(fullPath)

	live := c.membership.Live()
	if req.NBlocks > 0 && len(live) == 0 {
		return ErrNoDataNode
	}

	blocks := make([]BlockRef, req.NBlocks)
	now := nowEpoch()
	for i := 0; i < req.NBlocks; i++ {
		locations := c.load.PickLeastLoaded(live, c.cfg.ReplicationFactor)
		size := req.BlockSize
		if i == req.NBlocks-1 {
			size = req.TotalSize - int64(req.NBlocks-1)*req.BlockSize
		}
		blocks[i] = BlockRef{
			BlockID:   fmt.Sprintf("block_%d", i),
			Size:      size,
			Locations: locations,
			Timestamp: now,
		}
	}

	meta := &FileMetadata{
		Filename:     pathkey.Base(fullPath),
		FullPath:     fullPath,
		StorageKey:   storageKey,
		Blocks:       blocks,
		TotalSize:    req.TotalSize,
		CreationTime: now,
	}

	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	if err := c.saveFileData(ctx, storageKey, meta); err != nil {
		return err
	}
	c.cache.Put(storageKey, *meta)
	if err := c.registerFileInDirectory(ctx, fullPath, req.TotalSize, now); err != nil {
		return err
	}

	c.log.Printf("stored metadata for %s at %s (%d blocks)", meta.Filename, fullPath, req.NBlocks)
	if c.audit != nil {
		c.audit.Record(req.RequestID, "store_metadata", fullPath, fmt.Sprintf("blocks=%d size=%d", req.NBlocks, req.TotalSize))
	}
	return nil
}

// GetMetadata resolves name against cwd, filters each block's locations to
// the current live set, and primes the cache on a metastore hit. A block
// whose filtered locations are empty fails the whole lookup.
func (c *Coordinator) GetMetadata(name, cwd string) (FileMetadata, error) {
	ctx := context.Background()
	fullPath := pathkey.Join(cwd, name)
	storageKey := pathkey.ToStorageKey(fullPath)

	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	if !c.pathExistsAsFileLocked(ctx, fullPath) {
		return FileMetadata{}, ErrNotFound
	}

	if cached, ok := c.cache.Get(storageKey); ok {
		return c.filterLiveLocations(cached)
	}

	meta, ok, err := c.getFileData(ctx, storageKey)
	if err != nil {
		return FileMetadata{}, err
	}
	if !ok {
		return FileMetadata{}, ErrNotFound
	}
	c.cache.Put(storageKey, *meta)
	return c.filterLiveLocations(*meta)
}

func (c *Coordinator) pathExistsAsFileLocked(ctx context.Context, fullPath string) bool {
	ok, _ := c.store.HExists(ctx, "files", pathkey.ToStorageKey(fullPath))
	return ok
}

func (c *Coordinator) filterLiveLocations(meta FileMetadata) (FileMetadata, error) {
	live := make(map[string]bool)
	for _, addr := range c.membership.Live() {
		live[addr] = true
	}
	out := meta
	out.Blocks = make([]BlockRef, len(meta.Blocks))
	for i, b := range meta.Blocks {
		filtered := b.Locations[:0:0]
		for _, loc := range b.Locations {
			if live[loc] {
				filtered = append(filtered, loc)
			}
		}
		if len(filtered) == 0 {
			return FileMetadata{}, ErrNotFound
		}
		out.Blocks[i] = BlockRef{BlockID: b.BlockID, Size: b.Size, Locations: filtered, Timestamp: b.Timestamp}
	}
	return out, nil
}

// DeleteFile removes a file's metadata and its directory entry, returning
// the deletion plan for the caller to execute against block servers.
func (c *Coordinator) DeleteFile(requestID, name, cwd string) ([]DeleteBlockPlan, error) {
	ctx := context.Background()
	fullPath := pathkey.Join(cwd, name)
	storageKey := pathkey.ToStorageKey(fullPath)

	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	meta, ok, err := c.getFileData(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: file '%s' not found", ErrNotFound, fullPath)
	}

	if err := c.unregisterFileFromDirectory(ctx, fullPath); err != nil {
		return nil, err
	}
	if err := c.store.HDel(ctx, "files", storageKey); err != nil {
		return nil, err
	}
	c.cache.Remove(storageKey)

	plan := make([]DeleteBlockPlan, len(meta.Blocks))
	for i, b := range meta.Blocks {
		plan[i] = DeleteBlockPlan{BlockID: b.BlockID, StorageName: storageKey, Locations: b.Locations}
	}

	c.log.Printf("deleted file %s (%d blocks)", fullPath, len(plan))
	if c.audit != nil {
		c.audit.Record(requestID, "delete_file", fullPath, fmt.Sprintf("blocks=%d", len(plan)))
	}
	return plan, nil
}

// DeleteDirectoryResult is the aggregated outcome of a recursive directory delete.
type DeleteDirectoryResult struct {
	Blocks       []DeleteBlockPlan
	FilesDeleted int
	DirsDeleted  int
}

// DeleteDirectory recursively gathers all contained files, removes their
// metadata, removes all subdirectory entries deepest-first, unlinks from the
// parent, and returns the aggregated block deletion plan. Root is rejected.
func (c *Coordinator) DeleteDirectory(requestID, path string) (DeleteDirectoryResult, error) {
	ctx := context.Background()
	path = pathkey.Canonicalize(path)
	if path == "/" {
		return DeleteDirectoryResult{}, ErrRootUndeletable
	}

	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	if exists, err := c.pathExistsLocked(ctx, path); err != nil {
		return DeleteDirectoryResult{}, err
	} else if !exists {
		return DeleteDirectoryResult{}, fmt.Errorf("%w: directory '%s' does not exist", ErrNotFound, path)
	}

	var dirsDeepestFirst []string
	var plan []DeleteBlockPlan
	filesDeleted := 0

	var walk func(dir string) error
	walk = func(dir string) error {
		data, ok, err := c.getDirData(ctx, dir)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: get_directory_data returned nothing for %s mid-recursion", ErrNotFound, dir)
		}
		for name := range data.Children {
			if err := walk(pathkey.Join(dir, name)); err != nil {
				return err
			}
		}
		for name := range data.Files {
			filePath := pathkey.Join(dir, name)
			storageKey := pathkey.ToStorageKey(filePath)
			meta, ok, err := c.getFileData(ctx, storageKey)
			if err != nil {
				return err
			}
			if ok {
				for _, b := range meta.Blocks {
					plan = append(plan, DeleteBlockPlan{BlockID: b.BlockID, StorageName: storageKey, Locations: b.Locations})
				}
				_ = c.store.HDel(ctx, "files", storageKey)
				c.cache.Remove(storageKey)
				filesDeleted++
			}
		}
		dirsDeepestFirst = append(dirsDeepestFirst, dir)
		return nil
	}

	if err := walk(path); err != nil {
		return DeleteDirectoryResult{}, err
	}

	for _, dir := range dirsDeepestFirst {
		_ = c.store.HDel(ctx, "directories", dir)
	}

	parent := pathkey.Parent(path)
	if parent != "" {
		parentData, ok, err := c.getDirData(ctx, parent)
		if err == nil && ok {
			delete(parentData.Children, pathkey.Base(path))
			_ = c.saveDirData(ctx, parent, parentData)
		}
	}

	c.log.Printf("deleted directory %s (%d dirs, %d files, %d blocks)", path, len(dirsDeepestFirst), filesDeleted, len(plan))
	if c.audit != nil {
		c.audit.Record(requestID, "delete_directory", path, fmt.Sprintf("dirs=%d files=%d blocks=%d", len(dirsDeepestFirst), filesDeleted, len(plan)))
	}

	return DeleteDirectoryResult{Blocks: plan, FilesDeleted: filesDeleted, DirsDeleted: len(dirsDeepestFirst)}, nil
}

// Metrics returns a snapshot of uptime, file/block counts, and live node count.
func (c *Coordinator) Metrics() (Metrics, error) {
	ctx := context.Background()
	c.dirMu.Lock()
	fileKeys, err := c.store.HKeys(ctx, "files")
	c.dirMu.Unlock()
	if err != nil {
		return Metrics{}, err
	}

	blockCount := 0
	for _, key := range fileKeys {
		meta, ok, err := c.getFileData(ctx, key)
		if err != nil {
			return Metrics{}, err
		}
		if ok {
			blockCount += len(meta.Blocks)
		}
	}

	return Metrics{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		FileCount:     len(fileKeys),
		BlockCount:    blockCount,
		LiveNodeCount: len(c.membership.Live()),
	}, nil
}
