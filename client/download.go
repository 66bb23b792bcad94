package client

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"shardfs/pathkey"
)

// DownloadFile fetches name's metadata, pulls every block with bounded,
// size-adaptive concurrency, and writes outputPath in strict ordinal order
// once every block has arrived. A single block that exhausts its replica
// list fails the whole download; the output file is not created on
// failure.
func (c *Client) DownloadFile(name, outputPath string) error {
	resolved := pathkey.Join(c.cwd, name)
	meta, err := c.coord.GetMetadata(resolved, "/")
	if err != nil {
		return fmt.Errorf("get metadata for %s: %w", name, err)
	}

	requestID := uuid.NewString()
	c.log.Printf("[%s] downloading %s (%d blocks) to %s", requestID, name, len(meta.Blocks), outputPath)

	results, failed := c.downloadBlocks(requestID, meta)
	if failed >= 0 {
		return fmt.Errorf("download failed: block %d unavailable from any replica", failed)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	for i := 0; i < len(meta.Blocks); i++ {
		if _, err := out.Write(results[i]); err != nil {
			return fmt.Errorf("write block %d to output: %w", i, err)
		}
	}
	return nil
}

// downloadBlocks fetches every block concurrently. failed is -1 on full
// success, or the index of the first block that could not be fetched from
// any of its replicas.
func (c *Client) downloadBlocks(requestID string, meta FileMetadata) (results [][]byte, failed int) {
	n := len(meta.Blocks)
	results = make([][]byte, n)
	workers := workerCount(meta.TotalSize)

	type job struct {
		index int
		block BlockInfo
	}
	jobs := make(chan job, workers*2)

	var mu sync.Mutex
	failed = -1

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				data, err := c.readBlockRotated(requestID, meta.StorageName, j.block, j.index)
				if err != nil {
					mu.Lock()
					if failed == -1 || j.index < failed {
						failed = j.index
					}
					mu.Unlock()
					continue
				}
				results[j.index] = data
			}
		}()
	}
	for i, block := range meta.Blocks {
		jobs <- job{index: i, block: block}
	}
	close(jobs)
	wg.Wait()

	return results, failed
}

// readBlockRotated tries a block's replicas starting at index mod
// len(locations), so that across many blocks reads spread evenly over the
// replica set rather than hammering the first location every time.
func (c *Client) readBlockRotated(requestID, storageName string, block BlockInfo, blockIndex int) ([]byte, error) {
	locations := block.Locations
	if len(locations) == 0 {
		return nil, fmt.Errorf("no locations for block %s", block.BlockID)
	}
	start := blockIndex % len(locations)
	order := append(append([]string{}, locations[start:]...), locations[:start]...)

	for _, addr := range order {
		data, err := readBlock(addr, storageName, block.BlockID)
		if err == nil && data != nil {
			return data, nil
		}
		if err != nil {
			c.log.Printf("[%s] failed to read block %s from %s: %v", requestID, block.BlockID, addr, err)
		}
	}
	return nil, fmt.Errorf("block %s unavailable on all %d replicas", block.BlockID, len(locations))
}
