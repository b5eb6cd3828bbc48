// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package config loads the reader/writer-side knobs described in spec.md
// §6: buffer sizes, rotation policy, the packet-size ceiling, and the
// file-name prefix, from a YAML file overlaid with environment variables.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	minBufferSize     = 4 * 1024
	maxBufferSize     = 50 * 1024 * 1024
	defaultBufferSize = 32 * 1024

	defaultIndexCacheSize = 1000
	defaultMaxPacketSize  = 16 * 1024 * 1024

	minMaxPacketsPerFile     = 1
	defaultMaxPacketsPerFile = 1000

	envPrefix = "PCAPFILE"
)

// ReaderConfig controls a dataset.Reader's buffering, cache, and
// packet-size enforcement.
type ReaderConfig struct {
	// BufferSize is the internal read buffer size, in bytes. Must lie in
	// [4 KiB, 50 MiB]; zero means the default, 32 KiB.
	BufferSize int `mapstructure:"buffer_size"`

	// IndexCacheSize is the capacity of the file-info cache backing a
	// dataset.Reader. Defaults to 1000.
	IndexCacheSize int `mapstructure:"index_cache_size"`

	// MaxPacketSize caps a single packet's declared payload length.
	// Defaults to 16 MiB.
	MaxPacketSize uint32 `mapstructure:"max_packet_size"`

	// ReadTimeoutMS is a read timeout in milliseconds. Validate rejects a
	// negative value; no reader in this module applies the timeout.
	ReadTimeoutMS int `mapstructure:"read_timeout_ms"`
}

// WriterConfig controls a dataset.Writer's buffering, rotation policy, and
// flush behavior.
type WriterConfig struct {
	// BufferSize is the internal write buffer size, in bytes. Must lie in
	// [4 KiB, 50 MiB]; zero means the default, 32 KiB.
	BufferSize int `mapstructure:"buffer_size"`

	// MaxPacketsPerFile is the rotation threshold. Values below 1 are
	// replaced with the default, 1000.
	MaxPacketsPerFile int `mapstructure:"max_packets_per_file"`

	// FileNamePrefix is the literal prefix token in a data file's name
	// (the `<prefix>_YYYYMMDD_HHMMSS_NNNNNNNNN.pcap` scheme is otherwise
	// fixed). Defaults to "data".
	FileNamePrefix string `mapstructure:"file_name_prefix"`

	// AutoFlush, if true, flushes the OS write buffer after every packet
	// write. Defaults to false.
	AutoFlush bool `mapstructure:"auto_flush"`

	// WriteTimeoutMS is a write timeout in milliseconds. Validate rejects a
	// negative value; no writer in this module applies the timeout.
	WriteTimeoutMS int `mapstructure:"write_timeout_ms"`

	// IndexFlushIntervalPackets is a packet count between sidecar index
	// writes. Validate rejects a negative value; no writer in this module
	// reads it, and dataset.Writer writes the index only at Finalize.
	IndexFlushIntervalPackets int `mapstructure:"index_flush_interval_packets"`
}

// Config is the top-level configuration document: a reader side and a
// writer side, loaded together from one file.
type Config struct {
	Reader ReaderConfig `mapstructure:"reader"`
	Writer WriterConfig `mapstructure:"writer"`
}

// Reset restores r to its documented defaults.
func (r *ReaderConfig) Reset() {
	*r = ReaderConfig{
		BufferSize:     defaultBufferSize,
		IndexCacheSize: defaultIndexCacheSize,
		MaxPacketSize:  defaultMaxPacketSize,
	}
}

// Validate checks r's fields against their documented ranges, filling in
// zero-valued BufferSize, IndexCacheSize and MaxPacketSize with their
// defaults in place and returning an error for anything out of range.
func (r *ReaderConfig) Validate() error {
	if r.BufferSize == 0 {
		r.BufferSize = defaultBufferSize
	}
	if r.BufferSize < minBufferSize || r.BufferSize > maxBufferSize {
		return errors.Errorf("reader buffer_size %d outside [%d, %d]", r.BufferSize, minBufferSize, maxBufferSize)
	}
	if r.IndexCacheSize <= 0 {
		r.IndexCacheSize = defaultIndexCacheSize
	}
	if r.MaxPacketSize == 0 {
		r.MaxPacketSize = defaultMaxPacketSize
	}
	if r.ReadTimeoutMS < 0 {
		return errors.New("reader read_timeout_ms must not be negative")
	}
	return nil
}

// Reset restores w to its documented defaults.
func (w *WriterConfig) Reset() {
	*w = WriterConfig{
		BufferSize:        defaultBufferSize,
		MaxPacketsPerFile: defaultMaxPacketsPerFile,
		FileNamePrefix:    "data",
	}
}

// Validate checks w's fields against their documented ranges, filling in
// a zero BufferSize, a MaxPacketsPerFile below 1 and an empty
// FileNamePrefix with their defaults in place and returning an error for
// anything out of range.
func (w *WriterConfig) Validate() error {
	if w.BufferSize == 0 {
		w.BufferSize = defaultBufferSize
	}
	if w.BufferSize < minBufferSize || w.BufferSize > maxBufferSize {
		return errors.Errorf("writer buffer_size %d outside [%d, %d]", w.BufferSize, minBufferSize, maxBufferSize)
	}
	if w.MaxPacketsPerFile < minMaxPacketsPerFile {
		w.MaxPacketsPerFile = defaultMaxPacketsPerFile
	}
	if w.FileNamePrefix == "" {
		w.FileNamePrefix = "data"
	}
	if w.WriteTimeoutMS < 0 {
		return errors.New("writer write_timeout_ms must not be negative")
	}
	if w.IndexFlushIntervalPackets < 0 {
		return errors.New("writer index_flush_interval_packets must not be negative")
	}
	return nil
}

// Load reads path as YAML, overlays environment variables prefixed
// PCAPFILE_ (e.g. PCAPFILE_READER_BUFFER_SIZE), applies defaults for any
// unset field, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %q", path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	if err := cfg.Reader.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating reader config")
	}
	if err := cfg.Writer.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating writer config")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reader.buffer_size", defaultBufferSize)
	v.SetDefault("reader.index_cache_size", defaultIndexCacheSize)
	v.SetDefault("reader.max_packet_size", defaultMaxPacketSize)
	v.SetDefault("reader.read_timeout_ms", 0)

	v.SetDefault("writer.buffer_size", defaultBufferSize)
	v.SetDefault("writer.max_packets_per_file", defaultMaxPacketsPerFile)
	v.SetDefault("writer.file_name_prefix", "data")
	v.SetDefault("writer.auto_flush", false)
	v.SetDefault("writer.write_timeout_ms", 0)
	v.SetDefault("writer.index_flush_interval_packets", 0)
}
