// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dataset implements the dataset-level writer and reader described
// in spec.md §4.5-4.6: a directory of rotating data files plus the sidecar
// index that makes the directory addressable by packet ordinal or capture
// timestamp.
package dataset

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/Zoranner/pcapfile-io/codec"
	"github.com/Zoranner/pcapfile-io/index"
	"github.com/Zoranner/pcapfile-io/layout"
	"github.com/Zoranner/pcapfile-io/monitoring"
	"github.com/Zoranner/pcapfile-io/pcaperr"
	"github.com/Zoranner/pcapfile-io/pcapfile"
	"github.com/Zoranner/pcapfile-io/support/logging"
	"github.com/Zoranner/pcapfile-io/support/stagingdir"
)

// WriterConfig controls a Writer's buffering, rotation policy, data file
// naming, and file header fields.
type WriterConfig struct {
	BufferSize        int
	MaxPacketsPerFile int
	FileNamePrefix    string
	AutoFlush         bool
	TZOffsetSeconds   int32
	TSAccuracyNanos   uint32
	Logger            logging.L
}

func (c *WriterConfig) applyDefaults() {
	if c.MaxPacketsPerFile <= 0 {
		c.MaxPacketsPerFile = 1000
	}
	if c.FileNamePrefix == "" {
		c.FileNamePrefix = layout.DefaultNamePrefix
	}
}

// Writer appends packets to a dataset, rotating into a new data file
// whenever the active file reaches MaxPacketsPerFile, and building the
// sidecar index once, at Finalize. Packets are written into a staging
// directory and only appear at destDir once Finalize commits it, so a
// reader never sees a partially written dataset at its destination path.
type Writer struct {
	destDir string
	name    string
	cfg     WriterConfig
	stage   *stagingdir.D

	active              *pcapfile.Writer
	packetsInActiveFile int
	totalPackets        uint64

	finalized     bool
	finalizeIndex *index.Manager

	logger logging.L
}

// Create opens a staging area for a new dataset that will ultimately be
// published at dir. Nothing appears at dir itself until Finalize commits.
func Create(dir string, cfg WriterConfig) (*Writer, error) {
	cfg.applyDefaults()

	name := filepath.Base(dir)
	stage, err := stagingdir.New(filepath.Dir(dir), name+"-staging-")
	if err != nil {
		return nil, errors.Wrapf(err, "staging dataset directory for %q", dir)
	}

	return &Writer{
		destDir: dir,
		name:    name,
		cfg:     cfg,
		stage:   stage,
		logger:  logging.Must(cfg.Logger),
	}, nil
}

// WritePacket appends a single packet, rotating into a new data file first
// if the active file is at capacity or none is open yet.
func (w *Writer) WritePacket(p codec.Packet) error {
	if w.finalized {
		return pcaperr.NewInvalidState("write to a finalized dataset")
	}

	if w.active == nil || w.packetsInActiveFile >= w.cfg.MaxPacketsPerFile {
		if err := w.rotate(p); err != nil {
			return err
		}
	}

	if _, err := w.active.WritePacket(p); err != nil {
		return errors.Wrap(err, "writing packet")
	}

	w.packetsInActiveFile++
	w.totalPackets++
	monitoring.WriterPacketsWritten.Inc()
	monitoring.WriterBytesWritten.Add(float64(len(p.Payload)))

	return nil
}

// WritePackets appends ps in order.
func (w *Writer) WritePackets(ps []codec.Packet) error {
	for i, p := range ps {
		if err := w.WritePacket(p); err != nil {
			return errors.Wrapf(err, "writing packet %d of %d", i, len(ps))
		}
	}
	return nil
}

// rotate closes the active file, if any, and opens a new one named from
// firstPacket's capture time.
func (w *Writer) rotate(firstPacket codec.Packet) error {
	if w.active != nil {
		if err := w.active.Close(); err != nil {
			return errors.Wrap(err, "closing rotated-out data file")
		}
		monitoring.WriterRotations.Inc()
	}

	t := time.Unix(int64(firstPacket.TSSeconds), 0).UTC()
	name := layout.FileName(w.cfg.FileNamePrefix, t, firstPacket.TSNanos)
	path := w.stage.Path(name)

	writer, err := pcapfile.Create(path, pcapfile.WriterConfig{
		BufferSize:      w.cfg.BufferSize,
		AutoFlush:       w.cfg.AutoFlush,
		TZOffsetSeconds: w.cfg.TZOffsetSeconds,
		TSAccuracyNanos: w.cfg.TSAccuracyNanos,
		Logger:          w.cfg.Logger,
	})
	if err != nil {
		return err
	}

	w.active = writer
	w.packetsInActiveFile = 0
	return nil
}

// Flush flushes the active file's write buffer, without fsyncing.
func (w *Writer) Flush() error {
	if w.active == nil {
		return nil
	}
	return w.active.Flush()
}

// TotalPackets returns the number of packets written so far.
func (w *Writer) TotalPackets() uint64 { return w.totalPackets }

// Finalize closes the active file, builds and persists the sidecar index
// alongside the data files in the staging directory, then atomically
// commits the whole directory to its destination path. Finalize is
// idempotent: a second call returns the same *index.Manager snapshot
// without rescanning or re-committing anything.
func (w *Writer) Finalize() (*index.Manager, error) {
	if w.finalized {
		return w.finalizeIndex, nil
	}

	if w.active != nil {
		if err := w.active.Close(); err != nil {
			return nil, errors.Wrap(err, "closing active data file")
		}
		w.active = nil
	}

	stagingRoot := w.stage.Root()

	idx, err := index.BuildFromDirectory(stagingRoot)
	if err != nil {
		return nil, errors.Wrap(err, "building dataset index")
	}

	if err := idx.Save(layout.IndexPath(stagingRoot, w.name)); err != nil {
		return nil, errors.Wrap(err, "saving dataset index")
	}

	if err := w.stage.Commit(w.destDir); err != nil {
		return nil, errors.Wrap(err, "publishing dataset directory")
	}

	w.finalized = true
	w.finalizeIndex = idx
	w.logger.Debugf("finalized dataset %q (%d packets)", w.destDir, idx.TotalPackets())

	return idx, nil
}
