package dtx

import (
	"fmt"

	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

// TransportError wraps a failure reading or writing the underlying byte
// stream (a short read, a closed socket). It is always fatal: the session
// that produced it is no longer usable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dtx: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FrameError reports an inconsistent or malformed frame header: a wrong
// header size, a zero fragment count, or mismatched identifier/channel
// code across the fragments of one logical message. Always fatal.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("dtx: frame error: %s", e.Reason)
}

// CompressionUnsupportedError is returned when a payload header advertises
// non-zero compression bits. The core never implements compressed DTX
// payloads (spec non-goal); this error fails only the current receive, the
// session remains usable if the caller drains the rest of the stream.
type CompressionUnsupportedError struct {
	Code uint32
}

func (e *CompressionUnsupportedError) Error() string {
	return fmt.Sprintf("dtx: compressed payload unsupported (code=0x%x)", e.Code)
}

// ArchiveClassMissingError is raised when the keyed-archive codec
// encounters a class name with no registry entry. It carries the raw
// decoded plist subtree for diagnostics. Fatal to the current receive.
type ArchiveClassMissingError = archive.ClassMissingError

// HandshakeError reports a capability handshake that didn't match the
// expected shape: wrong returned selector, or an empty capability map.
// Fatal to the session.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("dtx: handshake error: %s", e.Reason)
}

// ChannelNotAdvertisedError is returned by MakeChannel when the requested
// service identifier was not among the capabilities the peer advertised
// during the handshake. The session remains usable.
type ChannelNotAdvertisedError struct {
	Identifier string
}

func (e *ChannelNotAdvertisedError) Error() string {
	return fmt.Sprintf("dtx: channel identifier %q not advertised by peer", e.Identifier)
}

// DomainError reports a typed, non-fatal failure of a domain binding, such
// as a null return from a directory listing for a path that doesn't
// exist. Op names the binding operation that failed (e.g. "ls", "launch").
type DomainError struct {
	Op     string
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("dtx: %s failed: %s", e.Op, e.Reason)
}
