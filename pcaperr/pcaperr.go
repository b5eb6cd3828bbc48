// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package pcaperr defines the error taxonomy shared by every pcapfile-io
// package: a stable numeric code, a machine-readable Kind, and an optional
// byte position for errors that occurred at a known offset in a file.
package pcaperr

import "fmt"

// Kind is a machine-readable error classification.
type Kind int

// Kind values and their stable numeric codes. Codes are part of the public
// contract: they must never be renumbered once released.
const (
	Unknown Kind = iota
	FileNotFound
	DirectoryNotFound
	InvalidFormat
	CorruptedHeader
	CorruptedData
	ChecksumMismatch
	PacketSizeExceedsRemainingBytes
	InvalidPacketSize
	TimestampParseError
	InvalidArgument
	InvalidState
	Io
	Serialization
)

var codes = map[Kind]int{
	Unknown:                         0,
	FileNotFound:                    1001,
	DirectoryNotFound:               1002,
	InvalidFormat:                   2001,
	CorruptedHeader:                 2002,
	CorruptedData:                   2003,
	ChecksumMismatch:                2004,
	PacketSizeExceedsRemainingBytes: 2005,
	InvalidPacketSize:               3001,
	TimestampParseError:             2006,
	InvalidArgument:                 3002,
	InvalidState:                    3003,
	Io:                              4001,
	Serialization:                   4002,
}

var names = map[Kind]string{
	Unknown:                         "Unknown",
	FileNotFound:                    "FileNotFound",
	DirectoryNotFound:               "DirectoryNotFound",
	InvalidFormat:                   "InvalidFormat",
	CorruptedHeader:                 "CorruptedHeader",
	CorruptedData:                   "CorruptedData",
	ChecksumMismatch:                "ChecksumMismatch",
	PacketSizeExceedsRemainingBytes: "PacketSizeExceedsRemainingBytes",
	InvalidPacketSize:               "InvalidPacketSize",
	TimestampParseError:             "TimestampParseError",
	InvalidArgument:                 "InvalidArgument",
	InvalidState:                    "InvalidState",
	Io:                              "Io",
	Serialization:                   "Serialization",
}

func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return "Unknown"
}

// Code returns the stable numeric code for this Kind.
func (k Kind) Code() int { return codes[k] }

// Error is the concrete error type returned by every fallible operation in
// pcapfile-io. Callers should use errors.Cause (github.com/pkg/errors) to
// unwrap to an *Error when they need to switch on Kind.
type Error struct {
	Kind    Kind
	Message string

	// Position is the byte offset within the current file at which the error
	// was detected, if meaningful for this Kind.
	Position *uint64
}

// Error implements error.
func (e *Error) Error() string {
	if e.Position != nil {
		return fmt.Sprintf("%s (code %d): %s [position %d]", e.Kind, e.Kind.Code(), e.Message, *e.Position)
	}
	return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Kind.Code(), e.Message)
}

func withPosition(pos uint64) *uint64 { return &pos }

// New constructs an *Error of the given Kind with no positional context.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewAt constructs an *Error of the given Kind with a byte position.
func NewAt(kind Kind, message string, pos uint64) *Error {
	return &Error{Kind: kind, Message: message, Position: withPosition(pos)}
}

// NewFileNotFound returns a FileNotFound error for the given path.
func NewFileNotFound(path string) *Error {
	return New(FileNotFound, fmt.Sprintf("file not found: %s", path))
}

// NewDirectoryNotFound returns a DirectoryNotFound error for the given path.
func NewDirectoryNotFound(path string) *Error {
	return New(DirectoryNotFound, fmt.Sprintf("directory not found: %s", path))
}

// NewInvalidFormat returns an InvalidFormat error.
func NewInvalidFormat(message string) *Error { return New(InvalidFormat, message) }

// NewCorruptedHeader returns a CorruptedHeader error.
func NewCorruptedHeader(message string) *Error { return New(CorruptedHeader, message) }

// NewCorruptedData returns a CorruptedData error at the given position.
func NewCorruptedData(message string, pos uint64) *Error {
	return NewAt(CorruptedData, message, pos)
}

// NewChecksumMismatch returns a ChecksumMismatch error at the given position.
//
// Note that the streaming reader never constructs this directly (it surfaces
// mismatches as ValidatedPacket.IsValid = false, per spec); this constructor
// exists for explicit verification APIs.
func NewChecksumMismatch(pos uint64) *Error {
	return NewAt(ChecksumMismatch, "checksum mismatch", pos)
}

// NewPacketSizeExceedsRemainingBytes returns the corresponding positional error.
func NewPacketSizeExceedsRemainingBytes(expected, remaining, pos uint64) *Error {
	return NewAt(PacketSizeExceedsRemainingBytes,
		fmt.Sprintf("packet length %d exceeds %d remaining bytes", expected, remaining), pos)
}

// NewInvalidPacketSize returns an InvalidPacketSize error.
func NewInvalidPacketSize(size, max uint32) *Error {
	return New(InvalidPacketSize, fmt.Sprintf("packet size %d exceeds configured ceiling %d", size, max))
}

// NewTimestampParseError returns a TimestampParseError error at the given position.
func NewTimestampParseError(nanos uint32, pos uint64) *Error {
	return NewAt(TimestampParseError, fmt.Sprintf("nanosecond field %d is not less than 1e9", nanos), pos)
}

// NewInvalidArgument returns an InvalidArgument error.
func NewInvalidArgument(message string) *Error { return New(InvalidArgument, message) }

// NewInvalidState returns an InvalidState error.
func NewInvalidState(message string) *Error { return New(InvalidState, message) }

// NewSerialization returns a Serialization error with the given message.
func NewSerialization(message string) *Error { return New(Serialization, message) }

// NewUnknown returns an Unknown error.
func NewUnknown(message string) *Error { return New(Unknown, message) }
