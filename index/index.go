// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package index implements the dataset sidecar index described in spec.md
// §4.5-4.7: a persisted file table (name, hash, size, packet count, first
// and last timestamp) used to validate a dataset without re-scanning it,
// plus an in-memory timestamp table giving O(1) exact and O(log n)
// lower-bound lookup from a capture time to its (file, byte offset).
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/INLOpen/skiplist"
	"github.com/pkg/errors"

	"github.com/Zoranner/pcapfile-io/layout"
	"github.com/Zoranner/pcapfile-io/pcaperr"
	"github.com/Zoranner/pcapfile-io/pcapfile"
)

// PacketEntry is one row of a file's persisted per-packet table: the
// capture timestamp, byte offset, and payload size needed to resolve a
// timestamp to a location without re-scanning the data file.
type PacketEntry struct {
	TimestampNs uint64 `xml:"timestamp_ns"`
	ByteOffset  uint64 `xml:"byte_offset"`
	PacketSize  uint32 `xml:"packet_size"`
}

// FileEntry is one row of the persisted file table.
type FileEntry struct {
	Name        string        `xml:"file_name"`
	SHA256      string        `xml:"file_hash"`
	Size        int64         `xml:"file_size"`
	PacketCount uint64        `xml:"packet_count"`
	FirstTSNs   uint64        `xml:"start_timestamp"`
	LastTSNs    uint64        `xml:"end_timestamp"`
	Packets     []PacketEntry `xml:"packets>packet"`
}

// document is the root element of the persisted .pidx sidecar, matching the
// <pidx_index> schema laid out in spec.md §6.
type document struct {
	XMLName        xml.Name    `xml:"pidx_index"`
	Version        string      `xml:"version"`
	Description    string      `xml:"description"`
	CreatedTime    string      `xml:"created_time"`
	StartTimestamp uint64      `xml:"start_timestamp"`
	EndTimestamp   uint64      `xml:"end_timestamp"`
	TotalPackets   uint64      `xml:"total_packets"`
	TotalDuration  uint64      `xml:"total_duration"`
	Files          []FileEntry `xml:"files>file"`
}

const documentVersion = "1.0"

// Location pinpoints a single packet's position within a dataset.
type Location struct {
	FileIndex  int
	ByteOffset uint64
	Size       uint32
}

// Manager owns a dataset's file table, its per-packet table, and an
// in-memory timestamp table derived from the latter. Both tables are
// persisted to the .pidx sidecar; BuildFromDirectory populates them with a
// header-only scan of each data file, while Load reconstructs the
// in-memory timestamp table directly from the sidecar's per-packet rows,
// without touching the data files beyond the cheap checks validate does.
type Manager struct {
	dir   string
	files []FileEntry

	exact  map[uint64]Location
	byTime *skiplist.SkipList[uint64, Location]
}

func tsComparator(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func newEmptyManager(dir string) *Manager {
	return &Manager{
		dir:    dir,
		exact:  make(map[uint64]Location),
		byTime: skiplist.NewWithComparator[uint64, Location](tsComparator),
	}
}

// BuildFromDirectory scans dir's data files from scratch, in lexicographic
// (== capture-time) order, and returns a fully populated Manager. It does
// not write the sidecar file; call Save to persist it.
func BuildFromDirectory(dir string) (*Manager, error) {
	paths, err := layout.ScanDataFiles(dir)
	if err != nil {
		return nil, err
	}

	m := newEmptyManager(dir)
	for fileIndex, path := range paths {
		entry, err := indexOneFile(m, fileIndex, path)
		if err != nil {
			return nil, errors.Wrapf(err, "indexing data file %q", path)
		}
		m.files = append(m.files, entry)
	}
	return m, nil
}

// indexOneFile scans path header-by-header, registering every packet's
// location in m's timestamp table, and returns its file-table row.
func indexOneFile(m *Manager, fileIndex int, path string) (FileEntry, error) {
	hash, size, err := hashFile(path)
	if err != nil {
		return FileEntry{}, err
	}

	r, err := pcapfile.Open(path, pcapfile.ReaderConfig{})
	if err != nil {
		return FileEntry{}, err
	}
	defer r.Close()

	entry := FileEntry{
		Name:   filepath.Base(path),
		SHA256: hash,
		Size:   size,
	}

	first := true
	for {
		header, offset, err := r.NextHeader()
		if err != nil {
			return FileEntry{}, err
		}
		if header == nil {
			break
		}

		ts := header.TimestampNanos()
		loc := Location{FileIndex: fileIndex, ByteOffset: offset, Size: header.Length}

		// First-encountered wins on a duplicate timestamp.
		if _, exists := m.exact[ts]; !exists {
			m.exact[ts] = loc
			m.byTime.Insert(ts, loc)
		}

		if first {
			entry.FirstTSNs = ts
			first = false
		}
		entry.LastTSNs = ts
		entry.PacketCount++
		entry.Packets = append(entry.Packets, PacketEntry{
			TimestampNs: ts,
			ByteOffset:  offset,
			PacketSize:  header.Length,
		})
	}

	return entry, nil
}

// hashFile returns path's content hash in the "sha256:hex" form spec.md §6
// stores in a file table entry's file_hash element, along with the file's
// size in bytes.
func hashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.Wrapf(err, "opening %q for hashing", path)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, errors.Wrapf(err, "hashing %q", path)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), n, nil
}

// aggregateTimestamps returns the earliest FirstTSNs and latest LastTSNs
// across every file in m.files that carries at least one packet. Files with
// PacketCount == 0 carry degenerate, meaningless timestamps and are
// excluded. Both return values are zero if no file has any packets.
func aggregateTimestamps(files []FileEntry) (start, end uint64) {
	haveOne := false
	for _, f := range files {
		if f.PacketCount == 0 {
			continue
		}
		if !haveOne || f.FirstTSNs < start {
			start = f.FirstTSNs
		}
		if !haveOne || f.LastTSNs > end {
			end = f.LastTSNs
		}
		haveOne = true
	}
	return start, end
}

// Save persists the file table to path as XML, atomically: it writes to a
// temporary file in the same directory, fsyncs it, then renames it into
// place, per the atomic-write-then-rename discipline used for durable
// metadata throughout this codebase.
func (m *Manager) Save(path string) error {
	start, end := aggregateTimestamps(m.files)
	var duration uint64
	if end > start {
		duration = end - start
	}

	doc := document{
		Version:        documentVersion,
		Description:    "pcapfile-io dataset index",
		CreatedTime:    time.Now().UTC().Format(time.RFC3339),
		StartTimestamp: start,
		EndTimestamp:   end,
		TotalPackets:   m.TotalPackets(),
		TotalDuration:  duration,
		Files:          m.files,
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "creating temporary index file %q", tmpPath)
	}

	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "encoding index")
	}
	if _, err := f.Write([]byte("\n")); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "finishing index file")
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "fsyncing index file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "closing index file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "renaming index file into place")
	}
	return nil
}

// Load reads path's file and per-packet tables, reconstructs the in-memory
// timestamp table directly from the persisted packet rows (no data-file
// rescan), and runs validate. If validation fails, Load returns the
// validation error; callers are expected to fall back to Rebuild.
func Load(path, dir string) (*Manager, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pcaperr.NewFileNotFound(path)
		}
		return nil, errors.Wrapf(err, "opening index file %q", path)
	}
	defer f.Close()

	var doc document
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, pcaperr.New(pcaperr.Serialization, "decoding index file: "+err.Error())
	}

	m := newEmptyManager(dir)
	m.files = doc.Files

	for fileIndex, entry := range doc.Files {
		for _, pkt := range entry.Packets {
			loc := Location{FileIndex: fileIndex, ByteOffset: pkt.ByteOffset, Size: pkt.PacketSize}

			// First-encountered wins on a duplicate timestamp, same rule as
			// indexOneFile.
			if _, exists := m.exact[pkt.TimestampNs]; !exists {
				m.exact[pkt.TimestampNs] = loc
				m.byTime.Insert(pkt.TimestampNs, loc)
			}
		}
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// validate confirms, for every file in m's table, that the file still
// exists on disk, its size matches, and its SHA-256 matches. It does not
// re-parse packet headers: per spec.md §4.7, that full rescan is reserved
// for build_from_directory/rebuild, not for the check a loaded index runs
// on every open.
func (m *Manager) validate() error {
	for _, want := range m.files {
		path := filepath.Join(m.dir, want.Name)

		info, err := os.Stat(path)
		if err != nil {
			return pcaperr.New(pcaperr.CorruptedData,
				"index entry for "+want.Name+" does not match the data directory")
		}
		if info.Size() != want.Size {
			return pcaperr.New(pcaperr.CorruptedData,
				"index entry for "+want.Name+" does not match the data directory")
		}

		hash, _, err := hashFile(path)
		if err != nil {
			return err
		}
		if hash != want.SHA256 {
			return pcaperr.New(pcaperr.CorruptedData,
				"index entry for "+want.Name+" does not match the data directory")
		}
	}
	return nil
}

// Rebuild builds a fresh Manager for dir from its data files, exactly as
// BuildFromDirectory does. It does not write the sidecar; call Save to
// persist it.
func Rebuild(dir string) (*Manager, error) { return BuildFromDirectory(dir) }

// Files returns the dataset's file table, in capture order.
func (m *Manager) Files() []FileEntry { return m.files }

// TotalPackets returns the dataset's total packet count across all files.
func (m *Manager) TotalPackets() uint64 {
	var total uint64
	for _, f := range m.files {
		total += f.PacketCount
	}
	return total
}

// Lookup returns the exact location of the packet captured at tsNs, if any.
func (m *Manager) Lookup(tsNs uint64) (Location, bool) {
	loc, ok := m.exact[tsNs]
	return loc, ok
}

// SeekTimestamp returns the location of the earliest packet whose timestamp
// is greater than or equal to tsNs, and that timestamp. ok is false if every
// packet in the dataset was captured before tsNs.
func (m *Manager) SeekTimestamp(tsNs uint64) (loc Location, actualTSNs uint64, ok bool) {
	node, found := m.byTime.Seek(tsNs)
	if !found {
		return Location{}, 0, false
	}
	return node.Value(), node.Key(), true
}

// PacketsInRange returns the locations of every packet with a timestamp in
// [startNs, endNs], in ascending timestamp order. It is a convenience for
// bulk extraction; single-point lookups should use Lookup or SeekTimestamp
// instead.
func (m *Manager) PacketsInRange(startNs, endNs uint64) []Location {
	var locs []Location
	iter := m.byTime.NewIterator()
	for iter.Next() {
		key := iter.Key()
		if key < startNs {
			continue
		}
		if key > endNs {
			break
		}
		locs = append(locs, iter.Value())
	}
	return locs
}
