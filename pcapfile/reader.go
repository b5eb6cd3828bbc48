// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcapfile

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/Zoranner/pcapfile-io/codec"
	"github.com/Zoranner/pcapfile-io/pcaperr"
	"github.com/Zoranner/pcapfile-io/support/fmtutil"
	"github.com/Zoranner/pcapfile-io/support/logging"
)

// ReaderConfig controls buffering and the packet-size ceiling enforced by a
// Reader.
type ReaderConfig struct {
	// BufferSize is the size of the internal bufio.Reader.
	BufferSize int

	// MaxPacketSize caps the declared Length a packet header may claim. Zero
	// means "use the package default" (16 MiB, per spec.md §6).
	MaxPacketSize uint32

	// Logger receives diagnostic log lines. A nil Logger is a no-op.
	Logger logging.L
}

// DefaultMaxPacketSize is the default ceiling on a single packet's payload,
// matching spec.md §6's writer/reader default.
const DefaultMaxPacketSize = 16 * 1024 * 1024

// Reader streams packets out of a single data file in the order they were
// written, per the decode contract in spec.md §4.2.
type Reader struct {
	cfg  ReaderConfig
	file *os.File
	br   *bufio.Reader

	path     string
	header   codec.FileHeader
	fileSize uint64
	position uint64

	logger logging.L
}

// Open opens path for reading and decodes its file header immediately. It
// returns an InvalidFormat error if the magic number does not match, or a
// CorruptedHeader error if the file is shorter than a file header.
func Open(path string, cfg ReaderConfig) (*Reader, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = DefaultMaxPacketSize
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pcaperr.NewFileNotFound(path)
		}
		return nil, errors.Wrapf(err, "opening data file %q", path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat-ing data file %q", path)
	}

	br := bufio.NewReaderSize(f, cfg.BufferSize)
	var hbuf [codec.FileHeaderSize]byte
	if _, err := io.ReadFull(br, hbuf[:]); err != nil {
		_ = f.Close()
		return nil, pcaperr.NewCorruptedHeader("file shorter than file header")
	}

	header, err := codec.DecodeFileHeader(hbuf[:])
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Reader{
		cfg:      cfg,
		file:     f,
		br:       br,
		path:     path,
		header:   header,
		fileSize: uint64(info.Size()),
		position: codec.FileHeaderSize,
		logger:   logging.Must(cfg.Logger),
	}, nil
}

// Path returns the path of the file being read.
func (r *Reader) Path() string { return r.path }

// Header returns the file's decoded FileHeader.
func (r *Reader) Header() codec.FileHeader { return r.header }

// Position returns the current byte offset within the file.
func (r *Reader) Position() uint64 { return r.position }

// Size returns the total size of the file in bytes.
func (r *Reader) Size() uint64 { return r.fileSize }

// ReadPacket decodes and returns the next packet, per spec.md §4.2:
//
//   - EOF at a packet boundary returns (nil, nil).
//   - A truncated packet header or a payload shorter than its declared
//     length returns a PacketSizeExceedsRemainingBytes error.
//   - A declared length greater than the configured ceiling returns an
//     InvalidPacketSize error.
//   - A checksum mismatch is returned as data: IsValid is false, and the
//     read position still advances past the packet.
func (r *Reader) ReadPacket() (*codec.ValidatedPacket, error) {
	remaining := r.fileSize - r.position
	if remaining == 0 {
		return nil, nil
	}
	if remaining < codec.PacketHeaderSize {
		return nil, pcaperr.NewPacketSizeExceedsRemainingBytes(codec.PacketHeaderSize, remaining, r.position)
	}

	var hbuf [codec.PacketHeaderSize]byte
	if _, err := io.ReadFull(r.br, hbuf[:]); err != nil {
		return nil, errors.Wrapf(err, "reading packet header at position %d", r.position)
	}

	header, err := codec.DecodePacketHeader(hbuf[:])
	if err != nil {
		if pe, ok := err.(*pcaperr.Error); ok {
			pe.Position = &r.position
		}
		return nil, err
	}

	afterHeader := remaining - codec.PacketHeaderSize
	if uint64(header.Length) > afterHeader {
		return nil, pcaperr.NewPacketSizeExceedsRemainingBytes(
			uint64(header.Length), afterHeader, r.position+codec.PacketHeaderSize)
	}
	if header.Length > r.cfg.MaxPacketSize {
		return nil, pcaperr.NewInvalidPacketSize(header.Length, r.cfg.MaxPacketSize)
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, errors.Wrapf(err, "reading packet payload at position %d: %s",
			r.position, fmtutil.Hex(payload))
	}

	r.position += codec.PacketHeaderSize + uint64(header.Length)

	return &codec.ValidatedPacket{
		Packet: codec.Packet{
			TSSeconds: header.TSSeconds,
			TSNanos:   header.TSNanos,
			Payload:   payload,
		},
		IsValid: codec.CRC32(payload) == header.Checksum,
	}, nil
}

// ReadPacketDataOnly reads the next packet and discards the checksum
// verification bit, returning only the decoded Packet. It still computes
// the CRC32 (correctness over raw throughput is the chosen policy here; see
// DESIGN.md) so a caller that only wants the data pays no less for it than
// ReadPacket, but need not branch on IsValid. Returns (nil, nil) at EOF.
func (r *Reader) ReadPacketDataOnly() (*codec.Packet, error) {
	vp, err := r.ReadPacket()
	if err != nil || vp == nil {
		return nil, err
	}
	return &vp.Packet, nil
}

// SeekToByteOffset repositions the reader at the given absolute byte offset,
// which must point at a packet header boundary (offset FileHeaderSize or
// later). Offsets inside the file header are rejected.
func (r *Reader) SeekToByteOffset(offset uint64) error {
	if offset < codec.FileHeaderSize {
		return pcaperr.NewInvalidArgument("byte offset falls within the file header")
	}
	if offset > r.fileSize {
		return pcaperr.NewInvalidArgument("byte offset exceeds file size")
	}
	if _, err := r.file.Seek(int64(offset), io.SeekStart); err != nil {
		return errors.Wrapf(err, "seeking to offset %d", offset)
	}
	r.br.Reset(r.file)
	r.position = offset
	return nil
}

// ReadPacketAt seeks to offset and reads exactly one packet from there,
// restoring the reader's prior position afterward. It is a convenience for
// random-access index-driven lookups; see spec.md §9.
func (r *Reader) ReadPacketAt(offset uint64) (*codec.ValidatedPacket, error) {
	saved := r.position
	if err := r.SeekToByteOffset(offset); err != nil {
		return nil, err
	}

	vp, err := r.ReadPacket()

	if seekErr := r.SeekToByteOffset(saved); seekErr != nil && err == nil {
		err = seekErr
	}
	return vp, err
}

// NextHeader decodes the next packet's header and advances past its payload
// without copying it into memory, returning the header and the byte offset
// at which it began. It is used by index building, where only a file's
// header framing is needed, not its payload bytes. Returns (nil, 0, nil) at
// a clean EOF, with the same corruption/size-ceiling errors as ReadPacket.
func (r *Reader) NextHeader() (*codec.PacketHeader, uint64, error) {
	remaining := r.fileSize - r.position
	if remaining == 0 {
		return nil, 0, nil
	}
	if remaining < codec.PacketHeaderSize {
		return nil, 0, pcaperr.NewPacketSizeExceedsRemainingBytes(codec.PacketHeaderSize, remaining, r.position)
	}

	offset := r.position

	var hbuf [codec.PacketHeaderSize]byte
	if _, err := io.ReadFull(r.br, hbuf[:]); err != nil {
		return nil, 0, errors.Wrapf(err, "reading packet header at position %d", r.position)
	}

	header, err := codec.DecodePacketHeader(hbuf[:])
	if err != nil {
		if pe, ok := err.(*pcaperr.Error); ok {
			pe.Position = &offset
		}
		return nil, 0, err
	}

	afterHeader := remaining - codec.PacketHeaderSize
	if uint64(header.Length) > afterHeader {
		return nil, 0, pcaperr.NewPacketSizeExceedsRemainingBytes(
			uint64(header.Length), afterHeader, offset+codec.PacketHeaderSize)
	}
	if header.Length > r.cfg.MaxPacketSize {
		return nil, 0, pcaperr.NewInvalidPacketSize(header.Length, r.cfg.MaxPacketSize)
	}

	if n, err := io.CopyN(io.Discard, r.br, int64(header.Length)); err != nil || uint64(n) != uint64(header.Length) {
		return nil, 0, errors.Wrapf(err, "skipping packet payload at position %d", offset+codec.PacketHeaderSize)
	}

	r.position += codec.PacketHeaderSize + uint64(header.Length)
	return &header, offset, nil
}

// Close closes the underlying file handle.
func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return errors.Wrap(err, "closing data file")
	}
	return nil
}
