package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockCount(t *testing.T) {
	assert.Equal(t, 0, blockCount(0))
	assert.Equal(t, 1, blockCount(1))
	assert.Equal(t, 1, blockCount(BlockSize))
	assert.Equal(t, 2, blockCount(BlockSize+1))
	assert.Equal(t, 3, blockCount(150000))
}

func TestWorkerCountBounds(t *testing.T) {
	assert.GreaterOrEqual(t, workerCount(1024), 2)
	assert.LessOrEqual(t, workerCount(1024), 6)

	assert.LessOrEqual(t, workerCount(50*1024*1024), 4)

	assert.LessOrEqual(t, workerCount(200*1024*1024), 3)
	assert.GreaterOrEqual(t, workerCount(200*1024*1024), 1)
}
