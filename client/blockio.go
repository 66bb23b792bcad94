package client

import (
	"fmt"
	"net"
	"time"

	"shardfs/wire"
)

// transferTimeout scales with payload size: bigger blocks get more time,
// but every transfer gets at least 10s.
func transferTimeout(size int) time.Duration {
	d := time.Duration(size/(512*1024)+5) * time.Second
	if d < 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// sendBlock writes one block to a data node and returns its reply.
func sendBlock(addr, storageName string, blockID, totalBlocks int, data []byte) (string, error) {
	timeout := transferTimeout(len(data))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	metadata := fmt.Sprintf("write_block %s %d %d", storageName, blockID, totalBlocks)
	if err := wire.WriteFrame(conn, []byte(metadata)); err != nil {
		return "", fmt.Errorf("send write header: %w", err)
	}
	if err := wire.WriteFrame(conn, data); err != nil {
		return "", fmt.Errorf("send block data: %w", err)
	}
	resp, err := wire.ReadFrame(conn)
	if err != nil {
		return "", fmt.Errorf("read write response: %w", err)
	}
	return string(resp), nil
}

// readBlock requests one block from a data node. A nil, nil result means
// the node had no data for that block (original behavior: no reply frame
// at all rather than an error payload).
func readBlock(addr, storageName, blockID string) ([]byte, error) {
	const readTimeout = 15 * time.Second
	conn, err := net.DialTimeout("tcp", addr, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(readTimeout))

	metadata := fmt.Sprintf("read_block %s %s", storageName, blockID)
	if err := wire.WriteFrame(conn, []byte(metadata)); err != nil {
		return nil, fmt.Errorf("send read header: %w", err)
	}
	data, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, nil
	}
	return data, nil
}
