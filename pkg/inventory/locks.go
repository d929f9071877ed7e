package inventory

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// lockTable serializes mutations per hardware id. Ids hash onto a fixed set
// of shards, bounding memory while keeping unrelated pushes parallel.
type lockTable struct {
	shards [lockShards]sync.Mutex
}

// lock acquires the shard for id and returns the matching unlock func.
func (t *lockTable) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	shard := &t.shards[h.Sum32()%lockShards]
	shard.Lock()

	return shard.Unlock
}
