// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ReaderConfig", func() {
	It("applies documented defaults on Reset", func() {
		var r ReaderConfig
		r.Reset()
		Expect(r.BufferSize).To(Equal(defaultBufferSize))
		Expect(r.IndexCacheSize).To(Equal(defaultIndexCacheSize))
		Expect(r.MaxPacketSize).To(Equal(uint32(defaultMaxPacketSize)))
	})

	It("rejects a buffer size below the minimum", func() {
		r := ReaderConfig{BufferSize: 1024}
		Expect(r.Validate()).To(HaveOccurred())
	})

	It("fills in a zero buffer size with the default", func() {
		var r ReaderConfig
		Expect(r.Validate()).ToNot(HaveOccurred())
		Expect(r.BufferSize).To(Equal(defaultBufferSize))
	})
})

var _ = Describe("WriterConfig", func() {
	It("clamps an unset rotation threshold to the default", func() {
		var w WriterConfig
		Expect(w.Validate()).ToNot(HaveOccurred())
		Expect(w.MaxPacketsPerFile).To(Equal(defaultMaxPacketsPerFile))
	})

	It("defaults the file name prefix to \"data\"", func() {
		var w WriterConfig
		Expect(w.Validate()).ToNot(HaveOccurred())
		Expect(w.FileNamePrefix).To(Equal("data"))
	})
})

var _ = Describe("Load", func() {
	It("loads a YAML file, applying defaults for unset fields", func() {
		dir, err := os.MkdirTemp("", "config-test")
		Expect(err).ToNot(HaveOccurred())

		yamlPath := filepath.Join(dir, "pcapfile.yaml")
		Expect(os.WriteFile(yamlPath, []byte(`
writer:
  max_packets_per_file: 500
  file_name_prefix: capture
`), 0o644)).To(Succeed())

		cfg, err := Load(yamlPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Writer.MaxPacketsPerFile).To(Equal(500))
		Expect(cfg.Writer.FileNamePrefix).To(Equal("capture"))
		Expect(cfg.Reader.BufferSize).To(Equal(defaultBufferSize))
	})

	It("overlays an environment variable over the file value", func() {
		dir, err := os.MkdirTemp("", "config-test")
		Expect(err).ToNot(HaveOccurred())

		yamlPath := filepath.Join(dir, "pcapfile.yaml")
		Expect(os.WriteFile(yamlPath, []byte(`
writer:
  file_name_prefix: capture
`), 0o644)).To(Succeed())

		os.Setenv("PCAPFILE_WRITER_FILE_NAME_PREFIX", "envwins")
		defer os.Unsetenv("PCAPFILE_WRITER_FILE_NAME_PREFIX")

		cfg, err := Load(yamlPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Writer.FileNamePrefix).To(Equal("envwins"))
	})
})

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Test config")
}
