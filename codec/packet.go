// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package codec

import "hash/crc32"

// CRC32 computes the packet-payload checksum spec.md §3 mandates: the
// standard IEEE 802.3 CRC-32 (polynomial 0xEDB88320 reflected, initial seed
// 0xFFFFFFFF, final XOR 0xFFFFFFFF). hash/crc32.ChecksumIEEE implements
// exactly this table/seed/XOR combination.
func CRC32(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// Packet is an immutable, caller-constructed capture record: a timestamp and
// an opaque payload. The wire checksum is computed from Payload at encode
// time, never stored independently.
type Packet struct {
	TSSeconds uint32
	TSNanos   uint32
	Payload   []byte
}

// TimestampNanos returns the packet's capture time as nanoseconds since the
// Unix epoch.
func (p Packet) TimestampNanos() uint64 {
	return uint64(p.TSSeconds)*1_000_000_000 + uint64(p.TSNanos)
}

// Header builds the on-disk PacketHeader for p, including its CRC32.
func (p Packet) Header() PacketHeader {
	return PacketHeader{
		TSSeconds: p.TSSeconds,
		TSNanos:   p.TSNanos,
		Length:    uint32(len(p.Payload)),
		Checksum:  CRC32(p.Payload),
	}
}

// ValidatedPacket pairs a decoded Packet with the result of re-verifying its
// stored checksum at read time. A checksum mismatch is surfaced as data
// (IsValid = false), never as an error; see spec.md §3 and §7.
type ValidatedPacket struct {
	Packet  Packet
	IsValid bool
}

// StructurallyValid reports whether h is structurally well-formed on its
// own: nanos within range and length not exceeding the bytes remaining in
// the file. It does not touch the checksum.
func StructurallyValid(h PacketHeader, remainingBytes uint64) bool {
	return h.TSNanos < MaxNanos && uint64(h.Length) <= remainingBytes
}
