// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package monitoring exposes the Prometheus metrics that dataset writers,
// readers, and the index file-info cache report.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WriterPacketsWritten counts packets successfully written, across all
	// dataset writers in this process.
	WriterPacketsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_writer_packets_written",
		Help: "Count of packets written by dataset writers.",
	})

	// WriterBytesWritten counts payload bytes written, excluding headers.
	WriterBytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_writer_bytes_written",
		Help: "Count of packet payload bytes written by dataset writers.",
	})

	// WriterRotations counts data-file rotations triggered by the
	// max_packets_per_file policy.
	WriterRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_writer_rotations",
		Help: "Count of data file rotations performed by dataset writers.",
	})

	// ReaderPacketsRead counts packets successfully decoded, valid or not.
	ReaderPacketsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_reader_packets_read",
		Help: "Count of packets decoded by dataset readers.",
	})

	// ReaderChecksumFailures counts packets decoded with a checksum
	// mismatch.
	ReaderChecksumFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_reader_checksum_failures",
		Help: "Count of packets whose stored checksum did not match their payload.",
	})

	// IndexCacheHits counts file-info cache hits.
	IndexCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_index_cache_hits",
		Help: "Count of file-info cache hits in the dataset reader.",
	})

	// IndexCacheMisses counts file-info cache misses.
	IndexCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_index_cache_misses",
		Help: "Count of file-info cache misses in the dataset reader.",
	})

	// IndexCacheEvictions counts file-info cache evictions, whether by LRU
	// capacity pressure or staleness.
	IndexCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pcapfile_index_cache_evictions",
		Help: "Count of file-info cache evictions in the dataset reader.",
	})
)

// RegisterMonitoring registers all of this package's metrics with reg.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		WriterPacketsWritten,
		WriterBytesWritten,
		WriterRotations,
		ReaderPacketsRead,
		ReaderChecksumFailures,
		IndexCacheHits,
		IndexCacheMisses,
		IndexCacheEvictions,
	)
}
