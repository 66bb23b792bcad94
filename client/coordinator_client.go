// Package client implements the block-parallel upload/download transfer
// engine: adaptive worker pools, per-block retry with node exclusion, and
// rotated-replica-order downloads.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"shardfs/wire"
)

const coordinatorCallTimeout = 5 * time.Second

// CoordinatorClient is the transfer engine's view of the coordinator: get a
// placement target, fetch/store metadata, and the handful of namespace
// operations a CLI built on top of this package would need.
type CoordinatorClient struct {
	addr string
}

func NewCoordinatorClient(addr string) *CoordinatorClient {
	return &CoordinatorClient{addr: addr}
}

func (c *CoordinatorClient) call(line string) (string, error) {
	conn, err := net.DialTimeout("tcp", c.addr, coordinatorCallTimeout)
	if err != nil {
		return "", fmt.Errorf("dial coordinator: %w", err)
	}
	defer conn.Close()

	if err := wire.WriteLine(conn, line, coordinatorCallTimeout); err != nil {
		return "", fmt.Errorf("send to coordinator: %w", err)
	}
	resp, err := wire.ReadLine(conn, wire.MaxControlResponse, coordinatorCallTimeout)
	if err != nil {
		return "", fmt.Errorf("read coordinator response: %w", err)
	}
	return resp, nil
}

// GetDataNode asks for one live node, skipping any address in excluded. The
// coordinator itself is exclusion-unaware (get_datanode takes no argument on
// the wire); exclusion is applied client-side the same way the original
// retries get_datanode until it returns a node outside the caller's set.
func (c *CoordinatorClient) GetDataNode(excluded map[string]bool) (string, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.call("get_datanode")
		if err != nil {
			return "", err
		}
		fields := wire.Fields(resp)
		if len(fields) == 2 && fields[0] == "datanode" {
			if !excluded[fields[1]] {
				return fields[1], nil
			}
			continue
		}
		if resp == "no_datanode_available" {
			return "", fmt.Errorf("no datanode available")
		}
	}
	return "", fmt.Errorf("no unexcluded datanode available after %d attempts", maxAttempts)
}

// BlockInfo mirrors one element of a coordinator FileMetadata.Blocks entry,
// parsed independently rather than importing the coordinator package (the
// wire contract, not the Go type, is what's shared).
type BlockInfo struct {
	BlockID   string   `json:"block_id"`
	Size      int64    `json:"size"`
	Locations []string `json:"locations"`
}

// FileMetadata mirrors the coordinator's metadata JSON body.
type FileMetadata struct {
	Filename     string      `json:"filename"`
	FullPath     string      `json:"full_path"`
	StorageName  string      `json:"storage_key"`
	Blocks       []BlockInfo `json:"blocks"`
	TotalSize    int64       `json:"total_size"`
	CreationTime float64     `json:"creation_time"`
}

// GetMetadata fetches and parses a file's metadata.
func (c *CoordinatorClient) GetMetadata(name, cwd string) (FileMetadata, error) {
	resp, err := c.call(fmt.Sprintf("get_metadata %s %s", name, cwd))
	if err != nil {
		return FileMetadata{}, err
	}
	if resp == "file_not_found" {
		return FileMetadata{}, fmt.Errorf("file not found: %s", name)
	}
	body := strings.TrimPrefix(resp, "metadata ")
	var meta FileMetadata
	if err := json.Unmarshal([]byte(body), &meta); err != nil {
		return FileMetadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	return meta, nil
}

// StoreMetadata registers a completed upload's block layout with the
// coordinator. totalSize is passed explicitly (see DESIGN.md on the
// store_metadata wire extension).
func (c *CoordinatorClient) StoreMetadata(name string, nblocks int, blockSize, totalSize int64, cwd string) error {
	line := fmt.Sprintf("store_metadata %s %d %d %d %s", name, nblocks, blockSize, totalSize, cwd)
	resp, err := c.call(line)
	if err != nil {
		return err
	}
	if resp != "success" {
		return fmt.Errorf("store_metadata failed: %s", resp)
	}
	return nil
}

// DeleteFile asks the coordinator to unlink a file and returns the block
// delete plan the client must execute against each block server.
func (c *CoordinatorClient) DeleteFile(name, cwd string) (json.RawMessage, error) {
	resp, err := c.call(fmt.Sprintf("delete_file %s %s", name, cwd))
	if err != nil {
		return nil, err
	}
	parts := wire.SplitPrefix(resp, 3)
	if len(parts) < 2 || parts[0] != "delete_file_result" {
		return nil, fmt.Errorf("unexpected delete_file response: %q", resp)
	}
	if parts[1] != "success" {
		msg := ""
		if len(parts) > 2 {
			msg = parts[2]
		}
		return nil, fmt.Errorf("delete_file failed: %s", msg)
	}
	return json.RawMessage(parts[2]), nil
}

// Mkdir creates a directory and reports whether it succeeded.
func (c *CoordinatorClient) Mkdir(path string) (bool, string, error) {
	resp, err := c.call("mkdir " + path)
	if err != nil {
		return false, "", err
	}
	parts := wire.SplitPrefix(resp, 3)
	if len(parts) < 3 || parts[0] != "mkdir_result" {
		return false, "", fmt.Errorf("unexpected mkdir response: %q", resp)
	}
	return parts[1] == "true", parts[2], nil
}

// Exists reports whether a path exists in the namespace.
func (c *CoordinatorClient) Exists(path string) (bool, error) {
	resp, err := c.call("exists " + path)
	if err != nil {
		return false, err
	}
	return resp == "exists_result true", nil
}
