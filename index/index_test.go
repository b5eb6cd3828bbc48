// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package index

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/Zoranner/pcapfile-io/codec"
	"github.com/Zoranner/pcapfile-io/pcapfile"
)

func writeDataset(dir string) {
	w1, err := pcapfile.Create(filepath.Join(dir, "data_20231201_120000_000000000.pcap"), pcapfile.WriterConfig{})
	Expect(err).ToNot(HaveOccurred())
	_, err = w1.WritePackets([]codec.Packet{
		{TSSeconds: 100, TSNanos: 0, Payload: []byte("a")},
		{TSSeconds: 100, TSNanos: 500, Payload: []byte("b")},
	})
	Expect(err).ToNot(HaveOccurred())
	Expect(w1.Close()).To(Succeed())

	w2, err := pcapfile.Create(filepath.Join(dir, "data_20231201_120010_000000000.pcap"), pcapfile.WriterConfig{})
	Expect(err).ToNot(HaveOccurred())
	_, err = w2.WritePackets([]codec.Packet{
		{TSSeconds: 110, TSNanos: 0, Payload: []byte("c")},
	})
	Expect(err).ToNot(HaveOccurred())
	Expect(w2.Close()).To(Succeed())
}

var _ = Describe("Manager", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "index-test")
		Expect(err).ToNot(HaveOccurred())
		writeDataset(dir)
	})

	It("builds a file table with packet counts and first/last timestamps", func() {
		m, err := BuildFromDirectory(dir)
		Expect(err).ToNot(HaveOccurred())

		files := m.Files()
		Expect(files).To(HaveLen(2))
		Expect(files[0].PacketCount).To(Equal(uint64(2)))
		Expect(files[0].FirstTSNs).To(Equal(uint64(100_000_000_000)))
		Expect(files[0].LastTSNs).To(Equal(uint64(100_000_000_500)))
		Expect(files[1].PacketCount).To(Equal(uint64(1)))
		Expect(m.TotalPackets()).To(Equal(uint64(3)))
	})

	It("resolves an exact timestamp lookup", func() {
		m, err := BuildFromDirectory(dir)
		Expect(err).ToNot(HaveOccurred())

		loc, ok := m.Lookup(100_000_000_500)
		Expect(ok).To(BeTrue())
		Expect(loc.FileIndex).To(Equal(0))
	})

	It("resolves a lower-bound lookup for a timestamp that doesn't exist", func() {
		m, err := BuildFromDirectory(dir)
		Expect(err).ToNot(HaveOccurred())

		loc, actual, ok := m.SeekTimestamp(100_000_000_100)
		Expect(ok).To(BeTrue())
		Expect(actual).To(Equal(uint64(100_000_000_500)))
		Expect(loc.FileIndex).To(Equal(0))
	})

	It("reports no lower bound past the dataset's last timestamp", func() {
		m, err := BuildFromDirectory(dir)
		Expect(err).ToNot(HaveOccurred())

		_, _, ok := m.SeekTimestamp(999_000_000_000)
		Expect(ok).To(BeFalse())
	})

	It("round-trips through Save and Load", func() {
		m, err := BuildFromDirectory(dir)
		Expect(err).ToNot(HaveOccurred())

		idxPath := filepath.Join(dir, "dataset.pidx")
		Expect(m.Save(idxPath)).To(Succeed())

		loaded, err := Load(idxPath, dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded.TotalPackets()).To(Equal(m.TotalPackets()))
	})

	It("fails Load when a data file changes after the index was saved", func() {
		m, err := BuildFromDirectory(dir)
		Expect(err).ToNot(HaveOccurred())

		idxPath := filepath.Join(dir, "dataset.pidx")
		Expect(m.Save(idxPath)).To(Succeed())

		// Append a stray byte to the first data file, invalidating its hash.
		files := m.Files()
		f, err := os.OpenFile(filepath.Join(dir, files[0].Name), os.O_APPEND|os.O_WRONLY, 0o644)
		Expect(err).ToNot(HaveOccurred())
		_, err = f.Write([]byte{0x00})
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		_, err = Load(idxPath, dir)
		Expect(err).To(HaveOccurred())
	})

	It("returns packets within a timestamp range in ascending order", func() {
		m, err := BuildFromDirectory(dir)
		Expect(err).ToNot(HaveOccurred())

		locs := m.PacketsInRange(100_000_000_500, 110_000_000_000)
		Expect(locs).To(HaveLen(2))
	})

	It("includes a zero-packet file in the file table", func() {
		emptyDir, err := os.MkdirTemp("", "index-test-empty-file")
		Expect(err).ToNot(HaveOccurred())

		w, err := pcapfile.Create(filepath.Join(emptyDir, "data_20231201_120000_000000000.pcap"), pcapfile.WriterConfig{})
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		m, err := BuildFromDirectory(emptyDir)
		Expect(err).ToNot(HaveOccurred())

		files := m.Files()
		Expect(files).To(HaveLen(1))
		Expect(files[0].PacketCount).To(Equal(uint64(0)))
		Expect(files[0].FirstTSNs).To(Equal(uint64(0)))
		Expect(files[0].LastTSNs).To(Equal(uint64(0)))
		Expect(files[0].Packets).To(BeEmpty())
	})

	It("keeps the first-encountered location when timestamps collide", func() {
		dupDir, err := os.MkdirTemp("", "index-test-dup")
		Expect(err).ToNot(HaveOccurred())

		w, err := pcapfile.Create(filepath.Join(dupDir, "data_20231201_120000_000000000.pcap"), pcapfile.WriterConfig{})
		Expect(err).ToNot(HaveOccurred())
		firstOffset, err := w.WritePacket(codec.Packet{TSSeconds: 5, Payload: []byte("first")})
		Expect(err).ToNot(HaveOccurred())
		_, err = w.WritePacket(codec.Packet{TSSeconds: 5, Payload: []byte("second-same-ts")})
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		m, err := BuildFromDirectory(dupDir)
		Expect(err).ToNot(HaveOccurred())

		loc, ok := m.Lookup(5_000_000_000)
		Expect(ok).To(BeTrue())
		Expect(loc.ByteOffset).To(Equal(firstOffset))
	})
})

func TestIndex(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Test index")
}
