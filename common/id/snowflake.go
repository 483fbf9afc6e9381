package id

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init sets the snowflake node for this process. Each concurrently running
// server or worker needs a distinct node id, otherwise row ids can collide.
func Init(nodeID int64) error {
	if nodeID < 0 || nodeID > maxNode() {
		return fmt.Errorf("snowflake node id %d out of range [0, %d]", nodeID, maxNode())
	}

	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}

	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// NodeFromName maps an instance name (usually the hostname) onto the node id range.
func NodeFromName(name string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum32()) % (maxNode() + 1)
}

// New returns a time-ordered int64 id. Without Init it falls back to node 0,
// which is only safe for single-instance use and tests.
func New() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(0)
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}

func maxNode() int64 {
	return -1 ^ (-1 << snowflake.NodeBits)
}
