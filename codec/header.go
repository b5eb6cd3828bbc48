// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package codec implements the pcapfile-io binary container format: fixed
// 16-byte file and packet headers, little-endian throughout, plus the CRC32
// discipline applied to packet payloads.
//
// Every function in this package is pure: no file or network I/O. Encoding
// goes through github.com/lunixbochs/struc against the caller-supplied
// buffers, the same struct-tag-driven codec the pixelpusher protocol uses
// for its own fixed-width little-endian headers.
package codec

import (
	"bytes"

	"github.com/lunixbochs/struc"

	"github.com/Zoranner/pcapfile-io/pcaperr"
)

const (
	// FileHeaderSize is the on-disk size, in bytes, of a FileHeader.
	FileHeaderSize = 16

	// PacketHeaderSize is the on-disk size, in bytes, of a PacketHeader.
	PacketHeaderSize = 16

	// Magic is the fixed file magic number. It deliberately reuses libpcap's
	// numeric value without adopting libpcap's layout or semantics; see
	// spec.md §1 Non-goals.
	Magic uint32 = 0xD4C3B2A1

	// MajorVersion and MinorVersion are the fixed format version fields.
	MajorVersion uint16 = 0x0002
	MinorVersion uint16 = 0x0004

	// MaxNanos is the exclusive upper bound for a valid ts_nanos field.
	MaxNanos uint32 = 1_000_000_000
)

// FileHeader is the 16-byte header written once at offset 0 of every data
// file.
type FileHeader struct {
	Magic      uint32 `struc:",little"`
	Major      uint16 `struc:",little"`
	Minor      uint16 `struc:",little"`
	TZOffset   int32  `struc:",little"`
	TSAccuracy uint32 `struc:",little"`
}

// NewFileHeader builds a FileHeader with the fixed Magic/Major/Minor fields
// and the caller-supplied timezone offset and declared timestamp accuracy.
func NewFileHeader(tzOffsetSeconds int32, tsAccuracyNanos uint32) FileHeader {
	return FileHeader{
		Magic:      Magic,
		Major:      MajorVersion,
		Minor:      MinorVersion,
		TZOffset:   tzOffsetSeconds,
		TSAccuracy: tsAccuracyNanos,
	}
}

// EncodeFileHeader writes h to buf[:FileHeaderSize]. buf must be at least
// FileHeaderSize bytes.
func EncodeFileHeader(buf []byte, h FileHeader) {
	var b bytes.Buffer
	if err := struc.Pack(&b, &h); err != nil {
		panic(err)
	}
	copy(buf, b.Bytes())
}

// DecodeFileHeader parses a FileHeader from buf.
//
// It returns a CorruptedHeader error if buf is shorter than FileHeaderSize,
// and an InvalidFormat error if the magic number does not match.
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, pcaperr.NewCorruptedHeader("file header truncated")
	}

	var h FileHeader
	if err := struc.Unpack(bytes.NewReader(buf[:FileHeaderSize]), &h); err != nil {
		return FileHeader{}, pcaperr.NewCorruptedHeader("file header truncated")
	}
	if h.Magic != Magic {
		return FileHeader{}, pcaperr.NewInvalidFormat("file magic mismatch")
	}
	return h, nil
}

// PacketHeader is the 16-byte header preceding every packet's payload.
type PacketHeader struct {
	TSSeconds uint32 `struc:",little"`
	TSNanos   uint32 `struc:",little"`
	Length    uint32 `struc:",little"`
	Checksum  uint32 `struc:",little"`
}

// TimestampNanos returns the packet's capture time as nanoseconds since the
// Unix epoch.
func (h PacketHeader) TimestampNanos() uint64 {
	return uint64(h.TSSeconds)*1_000_000_000 + uint64(h.TSNanos)
}

// EncodePacketHeader writes h to buf[:PacketHeaderSize]. buf must be at
// least PacketHeaderSize bytes.
func EncodePacketHeader(buf []byte, h PacketHeader) {
	var b bytes.Buffer
	if err := struc.Pack(&b, &h); err != nil {
		panic(err)
	}
	copy(buf, b.Bytes())
}

// DecodePacketHeader parses a PacketHeader from buf.
//
// It returns a CorruptedHeader error if buf is shorter than
// PacketHeaderSize, and a TimestampParseError if TSNanos is not less than
// 1e9.
func DecodePacketHeader(buf []byte) (PacketHeader, error) {
	if len(buf) < PacketHeaderSize {
		return PacketHeader{}, pcaperr.NewCorruptedHeader("packet header truncated")
	}

	var h PacketHeader
	if err := struc.Unpack(bytes.NewReader(buf[:PacketHeaderSize]), &h); err != nil {
		return PacketHeader{}, pcaperr.NewCorruptedHeader("packet header truncated")
	}
	if h.TSNanos >= MaxNanos {
		return PacketHeader{}, pcaperr.NewTimestampParseError(h.TSNanos, 0)
	}
	return h, nil
}
