package blockserver

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"shardfs/internal/retry"
	"shardfs/wire"
)

type replicationTask struct {
	StorageName string
	BlockID     int
	Data        []byte
}

// enqueueReplication hands a task to the worker pool without blocking the
// caller; a full queue drops the task rather than stall the write path that
// already told the client it succeeded.
func (b *BlockServer) enqueueReplication(t replicationTask) {
	select {
	case b.replicationQueue <- t:
	default:
		b.log.Printf("replication queue full, dropping replication of %s block %d", t.StorageName, t.BlockID)
	}
}

func (b *BlockServer) startReplicationWorkers() {
	for i := 0; i < b.cfg.ReplicationWorkers; i++ {
		b.workersWG.Add(1)
		go b.replicationWorker()
	}
}

func (b *BlockServer) replicationWorker() {
	defer b.workersWG.Done()
	for {
		select {
		case <-b.stop:
			return
		case task := <-b.replicationQueue:
			b.replicateTask(task)
		}
	}
}

func (b *BlockServer) replicateTask(task replicationTask) {
	peers, err := retryGetPeers(b.coord, b.cfg.SelfAddr)
	if err != nil || len(peers) == 0 {
		b.log.Printf("no peers available to replicate %s block %d: %v", task.StorageName, task.BlockID, err)
		return
	}

	targets := pickReplicationTargets(peers, b.cfg.ReplicationFactor-1)

	succeeded := 0
	for _, peer := range targets {
		err := retry.Do(2, 500*time.Millisecond, 5*time.Second, func(attempt int) error {
			return sendReplica(peer, task.StorageName, task.BlockID, task.Data)
		})
		if err != nil {
			b.log.Printf("failed to replicate %s block %d to %s: %v", task.StorageName, task.BlockID, peer, err)
			continue
		}
		succeeded++
	}
	b.log.Printf("replicated %s block %d to %d/%d nodes", task.StorageName, task.BlockID, succeeded, len(targets))
}

func retryGetPeers(coord Coordinator, selfAddr string) ([]string, error) {
	var peers []string
	err := retry.Do(3, 500*time.Millisecond, 5*time.Second, func(attempt int) error {
		p, err := coord.Peers(selfAddr)
		if err != nil {
			return err
		}
		if len(p) == 0 {
			return fmt.Errorf("no peer data nodes available")
		}
		peers = p
		return nil
	})
	return peers, err
}

// pickReplicationTargets chooses up to n distinct peers, in random order,
// without mutating the caller's slice.
func pickReplicationTargets(peers []string, n int) []string {
	if n <= 0 {
		return nil
	}
	shuffled := make([]string, len(peers))
	copy(shuffled, peers)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

func sendReplica(peer, storageName string, blockID int, data []byte) error {
	conn, err := net.DialTimeout("tcp", peer, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", peer, err)
	}
	defer conn.Close()

	metadata := fmt.Sprintf("replicate_block %s %d", storageName, blockID)
	if err := wire.WriteFrame(conn, []byte(metadata)); err != nil {
		return fmt.Errorf("send replicate header: %w", err)
	}
	if err := wire.WriteFrame(conn, data); err != nil {
		return fmt.Errorf("send replicate payload: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := wire.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("read replicate response: %w", err)
	}
	if string(resp) != "success" {
		return fmt.Errorf("replica rejected: %s", resp)
	}
	return nil
}
