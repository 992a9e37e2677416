package util

import (
	"fmt"
	"hash/crc32"
)

// Fingerprint returns the CRC32 (IEEE) of data as 8 hex digits. Snapshot metadata records it so a
// reader can detect a blob that was truncated or replaced behind the index's back.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}
