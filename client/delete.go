package client

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"shardfs/wire"
)

// deleteBlockPlanEntry mirrors one entry of the coordinator's delete plan;
// kept local rather than imported since the client only ever sees it as
// JSON over the wire.
type deleteBlockPlanEntry struct {
	BlockID     string   `json:"block_id"`
	StorageName string   `json:"storage_name"`
	Locations   []string `json:"locations"`
}

// DeleteFile removes name from the namespace and then carries out the
// returned delete plan against every block replica — deletion is the
// caller's responsibility, not the coordinator's, since the coordinator
// never talks to block servers directly.
func (c *Client) DeleteFile(name string) error {
	raw, err := c.coord.DeleteFile(name, c.cwd)
	if err != nil {
		return err
	}

	var plan []deleteBlockPlanEntry
	if err := json.Unmarshal(raw, &plan); err != nil {
		return fmt.Errorf("parse delete plan: %w", err)
	}

	for _, entry := range plan {
		for _, addr := range entry.Locations {
			if err := deleteBlockAt(addr, entry.StorageName, entry.BlockID); err != nil {
				c.log.Printf("delete %s %s at %s: %v (continuing, block may already be gone)",
					entry.StorageName, entry.BlockID, addr, err)
			}
		}
	}
	return nil
}

// deleteBlockAt sends one delete_block request. The reply is unframed (see
// DESIGN.md), so it's read as a bare byte slice rather than through
// wire.ReadFrame.
func deleteBlockAt(addr, storageName, blockID string) error {
	const deleteTimeout = 10 * time.Second
	conn, err := net.DialTimeout("tcp", addr, deleteTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(deleteTimeout))

	metadata := fmt.Sprintf("delete_block %s %s", storageName, blockID)
	if err := wire.WriteFrame(conn, []byte(metadata)); err != nil {
		return fmt.Errorf("send delete request: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("read delete response: %w", err)
	}
	resp := string(buf[:n])
	if resp != "success" && resp != "block_not_found" {
		return fmt.Errorf("delete rejected: %s", resp)
	}
	return nil
}
