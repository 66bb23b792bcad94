package client

import "runtime"

// BlockSize is the fixed per-block size the transfer engine splits files
// into; only the final block of a file may be shorter.
const BlockSize = 64 * 1024

const (
	smallFileThreshold  = 10 * 1024 * 1024
	mediumFileThreshold = 100 * 1024 * 1024
)

// workerCount returns the adaptive worker pool size for a transfer of the
// given size: smaller files get more parallelism headroom per block since
// there's less of them, larger files back off to avoid oversubscribing the
// block servers.
func workerCount(totalSize int64) int {
	cpu := runtime.NumCPU()
	switch {
	case totalSize < smallFileThreshold:
		return min(6, max(2, cpu))
	case totalSize < mediumFileThreshold:
		return min(4, max(2, cpu/2))
	default:
		return min(3, max(1, cpu/3))
	}
}

func blockCount(totalSize int64) int {
	if totalSize == 0 {
		return 0
	}
	return int((totalSize + BlockSize - 1) / BlockSize)
}
