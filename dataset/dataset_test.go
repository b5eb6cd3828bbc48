// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dataset

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/Zoranner/pcapfile-io/codec"
)

func tempDatasetDir() string {
	dir, err := os.MkdirTemp("", "dataset-test")
	Expect(err).ToNot(HaveOccurred())
	return dir
}

func packetsAt(baseSeconds uint32, n int) []codec.Packet {
	ps := make([]codec.Packet, n)
	for i := 0; i < n; i++ {
		ps[i] = codec.Packet{
			TSSeconds: baseSeconds + uint32(i),
			Payload:   []byte{byte(i)},
		}
	}
	return ps
}

var _ = Describe("Writer", func() {
	It("rotates into a new file once MaxPacketsPerFile is reached", func() {
		dir := tempDatasetDir()

		w, err := Create(dir, WriterConfig{MaxPacketsPerFile: 2})
		Expect(err).ToNot(HaveOccurred())
		Expect(w.WritePackets(packetsAt(1000, 5))).To(Succeed())

		idx, err := w.Finalize()
		Expect(err).ToNot(HaveOccurred())
		Expect(idx.Files()).To(HaveLen(3)) // 2 + 2 + 1
		Expect(idx.TotalPackets()).To(Equal(uint64(5)))
	})

	It("treats a second Finalize call as a no-op returning the same index", func() {
		dir := tempDatasetDir()

		w, err := Create(dir, WriterConfig{MaxPacketsPerFile: 10})
		Expect(err).ToNot(HaveOccurred())
		Expect(w.WritePackets(packetsAt(1000, 3))).To(Succeed())

		idx1, err := w.Finalize()
		Expect(err).ToNot(HaveOccurred())
		idx2, err := w.Finalize()
		Expect(err).ToNot(HaveOccurred())
		Expect(idx1).To(BeIdenticalTo(idx2))
	})

	It("rejects writes after Finalize", func() {
		dir := tempDatasetDir()
		w, err := Create(dir, WriterConfig{})
		Expect(err).ToNot(HaveOccurred())
		_, err = w.Finalize()
		Expect(err).ToNot(HaveOccurred())

		err = w.WritePacket(codec.Packet{TSSeconds: 1, Payload: []byte("x")})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Reader", func() {
	var dir string

	BeforeEach(func() {
		dir = tempDatasetDir()
		w, err := Create(dir, WriterConfig{MaxPacketsPerFile: 3})
		Expect(err).ToNot(HaveOccurred())
		Expect(w.WritePackets(packetsAt(1000, 7))).To(Succeed())
		_, err = w.Finalize()
		Expect(err).ToNot(HaveOccurred())
	})

	It("reads every packet across file boundaries, in capture order", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		for i := 0; i < 7; i++ {
			vp, err := r.ReadPacket()
			Expect(err).ToNot(HaveOccurred())
			Expect(vp).ToNot(BeNil())
			Expect(vp.Packet.TSSeconds).To(Equal(uint32(1000 + i)))
		}

		vp, err := r.ReadPacket()
		Expect(err).ToNot(HaveOccurred())
		Expect(vp).To(BeNil())
		Expect(r.IsEOF()).To(BeTrue())
	})

	It("seeks to a packet ordinal that lands in a later file", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		Expect(r.SeekToPacket(5)).To(Succeed())
		vp, err := r.ReadPacket()
		Expect(err).ToNot(HaveOccurred())
		Expect(vp.Packet.TSSeconds).To(Equal(uint32(1005)))
		Expect(r.CurrentPacketIndex()).To(Equal(uint64(6)))
	})

	It("rejects an out-of-range packet ordinal", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		err = r.SeekToPacket(100)
		Expect(err).To(HaveOccurred())
	})

	It("seeks to an exact capture timestamp", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		actual, err := r.SeekToTimestamp(1003 * 1_000_000_000)
		Expect(err).ToNot(HaveOccurred())
		Expect(actual).To(Equal(uint64(1003) * 1_000_000_000))

		vp, err := r.ReadPacket()
		Expect(err).ToNot(HaveOccurred())
		Expect(vp.Packet.TSSeconds).To(Equal(uint32(1003)))
	})

	It("falls back to the next later timestamp when the exact one is absent", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		actual, err := r.SeekToTimestamp(1003*1_000_000_000 + 500)
		Expect(err).ToNot(HaveOccurred())
		Expect(actual).To(Equal(uint64(1004) * 1_000_000_000))
	})

	It("fails to seek past the dataset's last timestamp", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		_, err = r.SeekToTimestamp(9999 * 1_000_000_000)
		Expect(err).To(HaveOccurred())
	})

	It("skips packets, saturating at the dataset's last packet", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		skipped, err := r.SkipPackets(100)
		Expect(err).ToNot(HaveOccurred())
		Expect(skipped).To(Equal(uint64(6))) // 7 packets, last index is 6

		vp, err := r.ReadPacket()
		Expect(err).ToNot(HaveOccurred())
		Expect(vp.Packet.TSSeconds).To(Equal(uint32(1006)))
	})

	It("resets to the beginning of the dataset", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		Expect(r.SeekToPacket(4)).To(Succeed())
		Expect(r.Reset()).To(Succeed())
		Expect(r.CurrentPacketIndex()).To(Equal(uint64(0)))

		vp, err := r.ReadPacket()
		Expect(err).ToNot(HaveOccurred())
		Expect(vp.Packet.TSSeconds).To(Equal(uint32(1000)))
	})

	It("reports nil progress for an empty dataset", func() {
		emptyDir := tempDatasetDir()
		w, err := Create(emptyDir, WriterConfig{})
		Expect(err).ToNot(HaveOccurred())
		_, err = w.Finalize()
		Expect(err).ToNot(HaveOccurred())

		r, err := Open(emptyDir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()
		Expect(r.Initialize()).To(Succeed())

		Expect(r.Progress()).To(BeNil())
	})

	It("reports fractional progress partway through the dataset", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		_, err = r.ReadPackets(3)
		Expect(err).ToNot(HaveOccurred())

		progress := r.Progress()
		Expect(progress).ToNot(BeNil())
		Expect(*progress).To(BeNumerically("~", 3.0/7.0, 0.0001))
	})

	It("lists per-file metadata", func() {
		r, err := Open(dir, ReaderConfig{})
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		files, err := r.FileInfoList()
		Expect(err).ToNot(HaveOccurred())
		Expect(files).To(HaveLen(3))
		Expect(files[0].PacketCount).To(Equal(uint64(3)))
	})

	It("fails to open a dataset directory that does not exist", func() {
		_, err := Open("/nonexistent/dataset/path", ReaderConfig{})
		Expect(err).To(HaveOccurred())
	})
})

func TestDataset(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Test dataset")
}
