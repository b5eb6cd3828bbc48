// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package pcapfile implements the single-file reader and writer state
// machines described in spec.md §4.2-4.3: streaming packet decode with
// recoverable validation errors, and buffered append with a once-only file
// header.
package pcapfile

import (
	"bufio"
	"os"

	"github.com/pkg/errors"

	"github.com/Zoranner/pcapfile-io/codec"
	"github.com/Zoranner/pcapfile-io/pcaperr"
	"github.com/Zoranner/pcapfile-io/support/logging"
)

// WriterConfig controls buffering and flush behavior for a Writer.
type WriterConfig struct {
	// BufferSize is the size of the internal bufio.Writer.
	BufferSize int

	// AutoFlush, if true, flushes the OS buffer (not fsync) after every
	// packet write. Default false for throughput.
	AutoFlush bool

	// TZOffsetSeconds and TSAccuracyNanos populate the file header.
	TZOffsetSeconds int32
	TSAccuracyNanos uint32

	// Logger receives diagnostic log lines. A nil Logger is a no-op.
	Logger logging.L
}

// Writer appends packets to a single data file, writing the file header on
// the first write and a PacketHeader+payload on every call after that. A
// Writer closed without any packet written still gets its file header at
// Close, so the file is a valid zero-packet data file.
type Writer struct {
	cfg  WriterConfig
	file *os.File
	bw   *bufio.Writer

	path        string
	firstWrite  bool
	packetCount uint64
	totalBytes  uint64
	closed      bool

	logger logging.L
}

// Create opens path for writing, truncating any existing contents. The file
// header is not written until the first call to WritePacket/WritePackets,
// or until Close if no packet is ever written.
func Create(path string, cfg WriterConfig) (*Writer, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating data file %q", path)
	}

	return &Writer{
		cfg:        cfg,
		file:       f,
		bw:         bufio.NewWriterSize(f, cfg.BufferSize),
		path:       path,
		firstWrite: true,
		logger:     logging.Must(cfg.Logger),
	}, nil
}

// Path returns the path of the file being written.
func (w *Writer) Path() string { return w.path }

// PacketCount returns the number of packets written so far, letting a
// dataset writer decide when this file is "full" per its rotation policy.
func (w *Writer) PacketCount() uint64 { return w.packetCount }

// TotalBytes returns the total number of bytes written so far, including
// the file header.
func (w *Writer) TotalBytes() uint64 { return w.totalBytes }

// WritePacket writes a single packet, emitting the file header first if
// this is the writer's first write. It returns the byte offset at which the
// packet's header begins.
func (w *Writer) WritePacket(p codec.Packet) (uint64, error) {
	if w.closed {
		return 0, pcaperr.NewInvalidState("write to a closed file")
	}

	if w.firstWrite {
		if err := w.writeFileHeader(); err != nil {
			return 0, err
		}
		w.firstWrite = false
	}

	offset := w.totalBytes

	header := p.Header()
	var buf [codec.PacketHeaderSize]byte
	codec.EncodePacketHeader(buf[:], header)

	if _, err := w.bw.Write(buf[:]); err != nil {
		return 0, errors.Wrap(err, "writing packet header")
	}
	if _, err := w.bw.Write(p.Payload); err != nil {
		return 0, errors.Wrap(err, "writing packet payload")
	}

	w.packetCount++
	w.totalBytes += uint64(codec.PacketHeaderSize) + uint64(len(p.Payload))

	if w.cfg.AutoFlush {
		if err := w.Flush(); err != nil {
			return 0, err
		}
	}

	return offset, nil
}

// WritePackets writes ps in order, in a single buffered loop, returning the
// byte offset of the first packet written.
func (w *Writer) WritePackets(ps []codec.Packet) (uint64, error) {
	var firstOffset uint64
	for i, p := range ps {
		offset, err := w.WritePacket(p)
		if err != nil {
			return 0, errors.Wrapf(err, "writing packet %d of %d", i, len(ps))
		}
		if i == 0 {
			firstOffset = offset
		}
	}
	return firstOffset, nil
}

func (w *Writer) writeFileHeader() error {
	header := codec.NewFileHeader(w.cfg.TZOffsetSeconds, w.cfg.TSAccuracyNanos)
	var buf [codec.FileHeaderSize]byte
	codec.EncodeFileHeader(buf[:], header)

	if _, err := w.bw.Write(buf[:]); err != nil {
		return errors.Wrap(err, "writing file header")
	}
	w.totalBytes += codec.FileHeaderSize
	return nil
}

// Flush drains the internal buffer to the OS, without fsyncing.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing write buffer")
	}
	return nil
}

// Close finalizes the writer: write the file header if no packet was
// written, flush buffers, fsync, and close the handle. Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.firstWrite {
		if err := w.writeFileHeader(); err != nil {
			_ = w.file.Close()
			return err
		}
		w.firstWrite = false
	}

	if err := w.bw.Flush(); err != nil {
		_ = w.file.Close()
		return errors.Wrap(err, "final flush")
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return errors.Wrap(err, "fsync")
	}
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "closing file")
	}

	w.logger.Debugf("closed data file %q (%d packets, %d bytes)", w.path, w.packetCount, w.totalBytes)
	return nil
}
