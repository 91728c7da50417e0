package utils

import (
	"hash/crc32"
	"strings"
)

// GetHashBucket 同一个 key 总是落在同一个 worker
func GetHashBucket(key string, bucketSize uint32) uint32 {
	if bucketSize == 0 {
		return 0
	}
	return crc32.ChecksumIEEE([]byte(strings.ToLower(key))) % bucketSize
}
