// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package layout implements the dataset directory naming scheme and
// directory scan described in spec.md §4.4: data files are named so that
// lexicographic order equals capture-time order, and the sidecar index file
// is excluded from the data file listing.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DataFileExt is the extension used for data files.
const DataFileExt = ".pcap"

// IndexExt is the extension used for the sidecar index file.
const IndexExt = ".pidx"

// DefaultNamePrefix is the file-name prefix used when no prefix is
// configured, matching spec.md §4.4's "data_" examples.
const DefaultNamePrefix = "data"

// FileName builds a data file name from the given prefix and the first
// packet's capture time, per spec.md §4.4:
//
//	<prefix>_YYYYMMDD_HHMMSS_NNNNNNNNN.pcap
//
// where NNNNNNNNN is the first packet's nanosecond-of-second value,
// zero-padded to 9 digits.
func FileName(prefix string, firstPacketTime time.Time, firstPacketNanos uint32) string {
	if prefix == "" {
		prefix = DefaultNamePrefix
	}
	return fmt.Sprintf("%s_%s_%09d%s",
		prefix,
		firstPacketTime.UTC().Format("20060102_150405"),
		firstPacketNanos,
		DataFileExt)
}

// IndexFileName builds the sidecar index file name for a dataset named
// name: "<name>.pidx".
func IndexFileName(name string) string { return name + IndexExt }

// ScanDataFiles lists the dataset's data files, filtered by extension and
// sorted by name (lexicographic order, which §4.4 guarantees equals capture
// order). The sidecar index file is never included.
func ScanDataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "dataset directory %q does not exist", dir)
		}
		return nil, errors.Wrapf(err, "reading dataset directory %q", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), DataFileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// IndexPath returns the path to the dataset's sidecar index file.
func IndexPath(dir, name string) string {
	return filepath.Join(dir, IndexFileName(name))
}
