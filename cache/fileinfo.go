// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package cache

import (
	"os"
	"time"
)

// fileStamp is the (size, mtime) pair used to detect a stale FileInfo entry.
type fileStamp struct {
	size  int64
	mtime time.Time
}

type fileInfoEntry struct {
	info  os.FileInfo
	stamp fileStamp
}

// FileInfoCache caches os.Stat results for a single reader, keyed by path.
//
// Entries are automatically invalidated when the file's size or modification
// time no longer matches the stamp recorded at insertion time, per the
// "Shared-state policy" in spec.md §5: each reader owns its own cache, and
// eviction happens on size/mtime change in addition to plain LRU capacity
// pressure.
type FileInfoCache struct {
	lru    *LRU[fileInfoEntry]
	hits   Counter
	misses Counter
	evicts Counter
}

// Counter is the minimal interface FileInfoCache needs to report statistics.
// prometheus.Counter satisfies it; so does a no-op stub for callers that
// don't want metrics wired in.
type Counter interface {
	Inc()
}

type nopCounter struct{}

func (nopCounter) Inc() {}

// NopCounter is a Counter that discards increments.
var NopCounter Counter = nopCounter{}

// NewFileInfoCache returns a FileInfoCache with the given maximum entry
// count. Passing nil for any counter disables that statistic.
func NewFileInfoCache(capacity int, hits, misses, evicts Counter) *FileInfoCache {
	if hits == nil {
		hits = NopCounter
	}
	if misses == nil {
		misses = NopCounter
	}
	if evicts == nil {
		evicts = NopCounter
	}

	c := &FileInfoCache{hits: hits, misses: misses, evicts: evicts}
	c.lru = New[fileInfoEntry](capacity, func(string, fileInfoEntry) {
		c.evicts.Inc()
	})
	return c
}

// Stat returns the cached os.FileInfo for path if it is present and still
// fresh (matches the file's current size and mtime), otherwise it performs
// a real os.Stat, caches the result, and returns that.
func (c *FileInfoCache) Stat(path string) (os.FileInfo, error) {
	if entry, ok := c.lru.Get(path); ok {
		fresh, err := isStampFresh(path, entry.stamp)
		if err == nil && fresh {
			c.hits.Inc()
			return entry.info, nil
		}
		// Stale or unable to verify: fall through to a real stat, below.
		c.lru.Invalidate(path)
	}

	c.misses.Inc()
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	c.lru.Put(path, fileInfoEntry{
		info:  info,
		stamp: fileStamp{size: info.Size(), mtime: info.ModTime()},
	})
	return info, nil
}

// Invalidate explicitly evicts path from the cache.
func (c *FileInfoCache) Invalidate(path string) { c.lru.Invalidate(path) }

func isStampFresh(path string, want fileStamp) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Size() == want.size && info.ModTime().Equal(want.mtime), nil
}
