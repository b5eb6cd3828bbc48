// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dataset

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Zoranner/pcapfile-io/cache"
	"github.com/Zoranner/pcapfile-io/codec"
	"github.com/Zoranner/pcapfile-io/index"
	"github.com/Zoranner/pcapfile-io/layout"
	"github.com/Zoranner/pcapfile-io/monitoring"
	"github.com/Zoranner/pcapfile-io/pcaperr"
	"github.com/Zoranner/pcapfile-io/pcapfile"
	"github.com/Zoranner/pcapfile-io/support/logging"
)

// ReaderConfig controls a Reader's buffering, packet-size ceiling, and
// file-info cache size.
type ReaderConfig struct {
	BufferSize     int
	MaxPacketSize  uint32
	IndexCacheSize int
	Logger         logging.L
}

func (c *ReaderConfig) applyDefaults() {
	if c.IndexCacheSize <= 0 {
		c.IndexCacheSize = 1000
	}
}

// Reader reads a dataset directory's data files in capture order, as one
// logical packet stream, using the sidecar index for random access by
// packet ordinal or capture timestamp.
type Reader struct {
	dir  string
	name string
	cfg  ReaderConfig

	idx   *index.Manager
	cache *cache.FileInfoCache

	current          *pcapfile.Reader
	currentFileIndex int
	currentPosition  uint64

	initialized bool
	logger      logging.L
}

// Open prepares a Reader for dir without yet touching the index or opening
// any data file; call Initialize (or any read/seek method, which calls it
// implicitly) before use.
func Open(dir string, cfg ReaderConfig) (*Reader, error) {
	cfg.applyDefaults()

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pcaperr.NewDirectoryNotFound(dir)
		}
		return nil, errors.Wrapf(err, "stat-ing dataset directory %q", dir)
	}
	if !info.IsDir() {
		return nil, pcaperr.NewInvalidArgument("dataset path is not a directory: " + dir)
	}

	return &Reader{
		dir:    dir,
		name:   filepath.Base(dir),
		cfg:    cfg,
		cache:  cache.NewFileInfoCache(cfg.IndexCacheSize, monitoring.IndexCacheHits, monitoring.IndexCacheMisses, monitoring.IndexCacheEvictions),
		logger: logging.Must(cfg.Logger),
	}, nil
}

// Initialize loads the sidecar index, rebuilding and re-persisting it if it
// is missing or no longer matches the data files on disk, then opens the
// first data file, if any exist. Initialize is idempotent.
func (r *Reader) Initialize() error {
	if r.initialized {
		return nil
	}

	idxPath := layout.IndexPath(r.dir, r.name)
	idx, err := index.Load(idxPath, r.dir)
	if err != nil {
		r.logger.Debugf("index unavailable for %q (%v), rebuilding", r.dir, err)
		idx, err = index.Rebuild(r.dir)
		if err != nil {
			return err
		}
		if err := idx.Save(idxPath); err != nil {
			return errors.Wrap(err, "persisting rebuilt index")
		}
	}

	r.idx = idx
	r.initialized = true

	if len(idx.Files()) > 0 {
		if err := r.openFile(0); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) filePath(fileIndex int) string {
	return filepath.Join(r.dir, r.idx.Files()[fileIndex].Name)
}

func (r *Reader) openFile(fileIndex int) error {
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			return errors.Wrap(err, "closing previous data file")
		}
		r.current = nil
	}

	path := r.filePath(fileIndex)
	reader, err := pcapfile.Open(path, pcapfile.ReaderConfig{
		BufferSize:    r.cfg.BufferSize,
		MaxPacketSize: r.cfg.MaxPacketSize,
		Logger:        r.cfg.Logger,
	})
	if err != nil {
		return err
	}

	r.current = reader
	r.currentFileIndex = fileIndex
	return nil
}

func (r *Reader) switchToNextFile() (bool, error) {
	if r.currentFileIndex+1 >= len(r.idx.Files()) {
		return false, nil
	}
	if err := r.openFile(r.currentFileIndex + 1); err != nil {
		return false, err
	}
	return true, nil
}

// ReadPacket returns the next packet in capture order, transparently
// switching to the next data file when the active one is exhausted.
// Returns (nil, nil) once the whole dataset has been read.
func (r *Reader) ReadPacket() (*codec.ValidatedPacket, error) {
	if err := r.Initialize(); err != nil {
		return nil, err
	}

	for {
		if r.current == nil {
			return nil, nil
		}

		vp, err := r.current.ReadPacket()
		if err != nil {
			return nil, err
		}
		if vp != nil {
			r.currentPosition++
			monitoring.ReaderPacketsRead.Inc()
			if !vp.IsValid {
				monitoring.ReaderChecksumFailures.Inc()
			}
			return vp, nil
		}

		switched, err := r.switchToNextFile()
		if err != nil {
			return nil, err
		}
		if !switched {
			return nil, nil
		}
	}
}

// ReadPackets reads up to count packets, stopping early at the end of the
// dataset.
func (r *Reader) ReadPackets(count int) ([]*codec.ValidatedPacket, error) {
	out := make([]*codec.ValidatedPacket, 0, count)
	for i := 0; i < count; i++ {
		vp, err := r.ReadPacket()
		if err != nil {
			return out, err
		}
		if vp == nil {
			break
		}
		out = append(out, vp)
	}
	return out, nil
}

// locateOrdinal finds the (fileIndex, offsetWithinFile) pair for the k-th
// packet (0-based) in capture order, via a prefix sum over the index's
// per-file packet counts.
func (r *Reader) locateOrdinal(k uint64) (fileIndex int, offsetInFile uint64) {
	var accumulated uint64
	for i, f := range r.idx.Files() {
		next := accumulated + f.PacketCount
		if k < next {
			return i, k - accumulated
		}
		accumulated = next
	}
	return len(r.idx.Files()) - 1, 0
}

// SeekToPacket repositions the reader so the next ReadPacket call returns
// the k-th packet (0-based) in capture order.
func (r *Reader) SeekToPacket(k uint64) error {
	if err := r.Initialize(); err != nil {
		return err
	}

	total := r.idx.TotalPackets()
	if k >= total {
		return pcaperr.NewInvalidArgument("packet index out of range")
	}

	fileIndex, offsetInFile := r.locateOrdinal(k)
	if err := r.openFile(fileIndex); err != nil {
		return err
	}

	for i := uint64(0); i < offsetInFile; i++ {
		if _, _, err := r.current.NextHeader(); err != nil {
			return err
		}
	}

	r.currentPosition = k
	return nil
}

// countPacketsBefore counts how many full packets precede byteOffset in the
// file at fileIndex, by scanning headers from the start of the file. It is
// used to recover a global packet ordinal after a byte-offset-based seek.
func (r *Reader) countPacketsBefore(fileIndex int, byteOffset uint64) (uint64, error) {
	reader, err := pcapfile.Open(r.filePath(fileIndex), pcapfile.ReaderConfig{
		BufferSize:    r.cfg.BufferSize,
		MaxPacketSize: r.cfg.MaxPacketSize,
	})
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	var count uint64
	for reader.Position() < byteOffset {
		if _, _, err := reader.NextHeader(); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// SeekToTimestamp repositions the reader at the earliest packet with
// capture timestamp tsNs, or, if no such packet exists, the earliest packet
// captured after tsNs. It returns the actual timestamp landed on, and fails
// with InvalidArgument if every packet in the dataset precedes tsNs.
func (r *Reader) SeekToTimestamp(tsNs uint64) (uint64, error) {
	if err := r.Initialize(); err != nil {
		return 0, err
	}

	loc, actualTS, ok := r.resolveTimestamp(tsNs)
	if !ok {
		return 0, pcaperr.NewInvalidArgument("no packet at or after the requested timestamp")
	}

	if err := r.openFile(loc.FileIndex); err != nil {
		return 0, err
	}
	if err := r.current.SeekToByteOffset(loc.ByteOffset); err != nil {
		return 0, err
	}

	before, err := r.countPacketsBefore(loc.FileIndex, loc.ByteOffset)
	if err != nil {
		return 0, err
	}

	var filesBefore uint64
	for i := 0; i < loc.FileIndex; i++ {
		filesBefore += r.idx.Files()[i].PacketCount
	}

	r.currentPosition = filesBefore + before
	return actualTS, nil
}

// resolveTimestamp extracts a plain (Location, timestamp, ok) triple from
// the index before any reader state is mutated, so that a seek can never
// leave the reader half-switched if the lookup itself fails.
func (r *Reader) resolveTimestamp(tsNs uint64) (index.Location, uint64, bool) {
	if loc, ok := r.idx.Lookup(tsNs); ok {
		return loc, tsNs, true
	}
	return r.idx.SeekTimestamp(tsNs)
}

// SkipPackets advances the reader by up to count packets, stopping at the
// dataset's last packet, and returns the number of packets actually
// skipped.
func (r *Reader) SkipPackets(count uint64) (uint64, error) {
	if err := r.Initialize(); err != nil {
		return 0, err
	}

	total := r.idx.TotalPackets()
	if total == 0 {
		return 0, nil
	}

	target := r.currentPosition + count
	lastIndex := total - 1
	if target > lastIndex {
		target = lastIndex
	}

	skipped := target - r.currentPosition
	if skipped > 0 {
		if err := r.SeekToPacket(target); err != nil {
			return 0, err
		}
	}
	return skipped, nil
}

// Reset repositions the reader at the dataset's first packet.
func (r *Reader) Reset() error {
	if err := r.Initialize(); err != nil {
		return err
	}

	r.currentPosition = 0
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			return errors.Wrap(err, "closing current data file")
		}
		r.current = nil
	}

	if len(r.idx.Files()) > 0 {
		return r.openFile(0)
	}
	return nil
}

// IsEOF reports whether the reader has consumed every packet in the
// dataset.
func (r *Reader) IsEOF() bool {
	if !r.initialized {
		return false
	}
	return r.currentPosition >= r.idx.TotalPackets()
}

// TotalPackets returns the dataset's total packet count. It returns 0 until
// Initialize has run.
func (r *Reader) TotalPackets() uint64 {
	if r.idx == nil {
		return 0
	}
	return r.idx.TotalPackets()
}

// CurrentPacketIndex returns the global, 0-based ordinal of the next packet
// ReadPacket would return.
func (r *Reader) CurrentPacketIndex() uint64 { return r.currentPosition }

// Progress returns the fraction of the dataset consumed so far, in [0, 1],
// or nil if the dataset is empty (Total == 0), since a percentage is
// meaningless against zero packets.
func (r *Reader) Progress() *float64 {
	total := r.TotalPackets()
	if total == 0 {
		return nil
	}
	p := float64(r.currentPosition) / float64(total)
	if p > 1 {
		p = 1
	}
	return &p
}

// Close closes the currently open data file, if any.
func (r *Reader) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

// FileInfo describes one data file in the dataset, as reported to callers
// that want per-file detail (e.g. a CLI listing).
type FileInfo struct {
	Name        string
	Size        int64
	PacketCount uint64
	FirstTSNs   uint64
	LastTSNs    uint64
}

// FileInfoList returns per-file metadata for the dataset, consulting the
// file-info cache for each file's current on-disk size rather than trusting
// the size recorded in the index at build time.
func (r *Reader) FileInfoList() ([]FileInfo, error) {
	if err := r.Initialize(); err != nil {
		return nil, err
	}

	entries := r.idx.Files()
	out := make([]FileInfo, len(entries))
	for i, e := range entries {
		stat, err := r.cache.Stat(filepath.Join(r.dir, e.Name))
		if err != nil {
			return nil, errors.Wrapf(err, "stat-ing data file %q", e.Name)
		}
		out[i] = FileInfo{
			Name:        e.Name,
			Size:        stat.Size(),
			PacketCount: e.PacketCount,
			FirstTSNs:   e.FirstTSNs,
			LastTSNs:    e.LastTSNs,
		}
	}
	return out, nil
}

// TotalSize returns the dataset's total on-disk size in bytes, summed from
// the file-info cache.
func (r *Reader) TotalSize() (uint64, error) {
	files, err := r.FileInfoList()
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, f := range files {
		total += uint64(f.Size)
	}
	return total, nil
}
