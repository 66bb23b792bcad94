package client

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shardfs/pathkey"
)

// UploadFile streams sourcePath into the cluster under targetName (the
// source's base name if empty), splitting it into fixed-size blocks and
// writing them with bounded, size-adaptive concurrency. store_metadata is
// only called once every block's primary write has succeeded; a single
// permanently-failed block aborts the whole upload and the file never
// becomes visible in the namespace.
func (c *Client) UploadFile(sourcePath, targetName string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourcePath, err)
	}
	size := info.Size()
	nblocks := blockCount(size)

	if targetName == "" {
		targetName = filepath.Base(sourcePath)
	}
	fullPath := pathkey.Join(c.cwd, targetName)
	storageName := pathkey.ToStorageKey(fullPath)

	requestID := uuid.NewString()
	c.log.Printf("[%s] uploading %s (%d bytes) into %d blocks as %s", requestID, sourcePath, size, nblocks, storageName)

	failed := c.uploadBlocks(requestID, sourcePath, storageName, nblocks)
	if len(failed) > 0 {
		sort.Ints(failed)
		return fmt.Errorf("upload failed, blocks not written: %v", failed)
	}

	return c.coord.StoreMetadata(targetName, nblocks, BlockSize, size, c.cwd)
}

func (c *Client) uploadBlocks(requestID, sourcePath, storageName string, nblocks int) []int {
	workers := workerCount(int64(nblocks) * BlockSize)
	jobs := make(chan int, workers*2)

	var mu sync.Mutex
	var failed []int

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for blockID := range jobs {
				if err := c.uploadBlockWithRetry(sourcePath, storageName, blockID, nblocks); err != nil {
					c.log.Printf("[%s] block %d failed permanently: %v", requestID, blockID, err)
					mu.Lock()
					failed = append(failed, blockID)
					mu.Unlock()
				}
			}
		}()
	}
	for i := 0; i < nblocks; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return failed
}

// uploadBlockWithRetry tries up to three nodes, excluding each one that
// rejects or fails the transfer, with exponential backoff and jitter
// between attempts.
func (c *Client) uploadBlockWithRetry(sourcePath, storageName string, blockID, totalBlocks int) error {
	const maxAttempts = 3
	excluded := map[string]bool{}

	data, err := readFileBlock(sourcePath, blockID)
	if err != nil {
		return fmt.Errorf("read local block %d: %w", blockID, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		addr, err := c.coord.GetDataNode(excluded)
		if err != nil {
			lastErr = err
		} else {
			resp, sendErr := sendBlock(addr, storageName, blockID, totalBlocks, data)
			if sendErr == nil && resp == "success" {
				return nil
			}
			excluded[addr] = true
			if sendErr != nil {
				lastErr = sendErr
			} else {
				lastErr = fmt.Errorf("node %s rejected block: %s", addr, resp)
			}
		}

		if attempt < maxAttempts-1 {
			time.Sleep(uploadBackoff(attempt))
		}
	}
	return fmt.Errorf("block %d: %w", blockID, lastErr)
}

func uploadBackoff(attempt int) time.Duration {
	base := 0.5 * float64(uint(1)<<uint(attempt))
	jitter := rand.Float64() * 0.5
	return time.Duration((base + jitter) * float64(time.Second))
}

func readFileBlock(path string, blockID int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	offset := int64(blockID) * BlockSize
	if _, err := f.Seek(offset, 0); err != nil {
		return nil, err
	}
	buf := make([]byte, BlockSize)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}
