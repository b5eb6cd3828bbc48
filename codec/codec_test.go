// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("File header", func() {
	It("round-trips through encode/decode", func() {
		h := NewFileHeader(-18000, 1000)

		buf := make([]byte, FileHeaderSize)
		EncodeFileHeader(buf, h)

		got, err := DecodeFileHeader(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(h))
	})

	It("rejects a truncated header", func() {
		_, err := DecodeFileHeader(make([]byte, FileHeaderSize-1))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a bad magic number", func() {
		buf := make([]byte, FileHeaderSize)
		EncodeFileHeader(buf, NewFileHeader(0, 0))
		buf[0] ^= 0xFF

		_, err := DecodeFileHeader(buf)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Packet header", func() {
	It("round-trips through encode/decode", func() {
		h := PacketHeader{TSSeconds: 1701432000, TSNanos: 500_000_000, Length: 3, Checksum: 0xDEADBEEF}

		buf := make([]byte, PacketHeaderSize)
		EncodePacketHeader(buf, h)

		got, err := DecodePacketHeader(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(h))
	})

	It("rejects nanos >= 1e9", func() {
		h := PacketHeader{TSSeconds: 0, TSNanos: MaxNanos, Length: 0, Checksum: 0}
		buf := make([]byte, PacketHeaderSize)
		EncodePacketHeader(buf, h)

		_, err := DecodePacketHeader(buf)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Packet checksum discipline", func() {
	It("is valid for an intact payload", func() {
		p := Packet{TSSeconds: 1, TSNanos: 2, Payload: []byte("hello")}
		h := p.Header()
		Expect(CRC32(p.Payload)).To(Equal(h.Checksum))
	})

	It("goes invalid when a single payload bit flips", func() {
		payload := []byte("hello, world")
		crc := CRC32(payload)

		corrupted := append([]byte(nil), payload...)
		corrupted[0] ^= 0x01

		Expect(CRC32(corrupted)).ToNot(Equal(crc))
	})
})

func TestCodec(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Test codec")
}
