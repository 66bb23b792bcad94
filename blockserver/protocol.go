package blockserver

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"shardfs/wire"
)

const connIdleTimeout = 30 * time.Second

func parseBlockID(token string) (int, error) {
	token = strings.TrimPrefix(token, "block_")
	return strconv.Atoi(token)
}

// handleConn dispatches one connection's single command. Every command's
// request line is read through the same length-prefixed frame; only
// delete_block's reply departs from framing (see DESIGN.md).
func (b *BlockServer) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connIdleTimeout))

	cmdBytes, err := wire.ReadFrame(conn)
	if err != nil {
		b.log.Printf("read command frame: %v", err)
		return
	}
	fields := wire.Fields(string(cmdBytes))
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "write_block":
		b.handleWriteBlock(conn, fields)
	case "replicate_block":
		b.handleReplicateBlock(conn, fields)
	case "read_block":
		b.handleReadBlock(conn, fields)
	case "delete_block":
		b.handleDeleteBlock(conn, fields)
	default:
		b.log.Printf("unknown command: %s", fields[0])
	}
}

func (b *BlockServer) handleWriteBlock(conn net.Conn, fields []string) {
	if len(fields) < 3 {
		wire.WriteFrame(conn, []byte("error: insufficient parameters"))
		return
	}
	storageName := fields[1]
	blockID, err := parseBlockID(fields[2])
	if err != nil {
		wire.WriteFrame(conn, []byte("error: bad block id"))
		return
	}

	data, err := wire.ReadFrame(conn)
	if err != nil {
		b.log.Printf("no data received for block %d: %v", blockID, err)
		wire.WriteFrame(conn, []byte("error: no data"))
		return
	}

	if err := b.AtomicWriteBlock(storageName, blockID, data); err != nil {
		b.log.Printf("failed to write block %d: %v", blockID, err)
		wire.WriteFrame(conn, []byte("error: write failed - "+err.Error()))
		return
	}
	b.incBlocksWritten()
	wire.WriteFrame(conn, []byte("success"))

	b.replicateBlockOnWrite(storageName, blockID, data)
}

func (b *BlockServer) handleReplicateBlock(conn net.Conn, fields []string) {
	if len(fields) < 3 {
		wire.WriteFrame(conn, []byte("error: insufficient parameters"))
		return
	}
	storageName := fields[1]
	blockID, err := parseBlockID(fields[2])
	if err != nil {
		wire.WriteFrame(conn, []byte("error: bad block id"))
		return
	}

	data, err := wire.ReadFrame(conn)
	if err != nil {
		wire.WriteFrame(conn, []byte("error: no data"))
		return
	}

	// A received replica is stored as-is; it is not itself re-replicated,
	// which is what keeps replication fan-out from propagating forever.
	if err := b.AtomicWriteBlock(storageName, blockID, data); err != nil {
		wire.WriteFrame(conn, []byte("error: "+err.Error()))
		return
	}
	wire.WriteFrame(conn, []byte("success"))
}

func (b *BlockServer) handleReadBlock(conn net.Conn, fields []string) {
	if len(fields) < 3 {
		return
	}
	storageName := fields[1]
	blockID, err := parseBlockID(fields[2])
	if err != nil {
		return
	}

	data, err := b.ReadBlock(storageName, blockID)
	if err != nil {
		if errors.Is(err, ErrChecksumMismatch) {
			b.log.Printf("checksum mismatch, treating as missing: %s block %d", storageName, blockID)
		} else {
			b.log.Printf("block not found: %s block %d", storageName, blockID)
		}
		return
	}
	if err := wire.WriteFrame(conn, data); err != nil {
		b.log.Printf("failed to send block %d: %v", blockID, err)
		return
	}
	b.incBlocksRead()
}

// handleDeleteBlock replies with an unframed payload, matching the one
// documented irregularity in the block protocol.
func (b *BlockServer) handleDeleteBlock(conn net.Conn, fields []string) {
	if len(fields) < 3 {
		conn.Write([]byte("error: insufficient parameters"))
		return
	}
	storageName := fields[1]
	blockID, err := parseBlockID(fields[2])
	if err != nil {
		conn.Write([]byte("error: bad block id"))
		return
	}

	found, err := b.DeleteBlock(storageName, blockID)
	if err != nil {
		conn.Write([]byte("error: " + err.Error()))
		return
	}
	if !found {
		conn.Write([]byte("block_not_found"))
		return
	}
	conn.Write([]byte("success"))
}
