package protocol

import "hash/crc32"

// Checksum is the packet CRC: reflected CRC-32 with polynomial 0xEDB88320
// and seed 0xFFFFFFFF, without the final XOR of the IEEE checksum.
func Checksum(b []byte) uint32 {
	return ^crc32.ChecksumIEEE(b)
}
