package global

import (
	"hash/crc32"
)

// HashPartition maps a key onto one of numPartitions buckets. Used to pin all
// events of one workspace to the same worker / Kafka partition.
func HashPartition(key string, numPartitions int) int32 {
	if numPartitions <= 0 {
		return 0
	}
	checksum := crc32.ChecksumIEEE([]byte(key))
	return int32(checksum % uint32(numPartitions))
}

// PresenceKey is the Redis key of a workspace's live session entry.
func PresenceKey(workspaceID string) string {
	return "notepad:presence:" + workspaceID
}

// PresenceIndexKey is the Redis set of live workspace ids.
func PresenceIndexKey() string {
	return "notepad:presence:index"
}
