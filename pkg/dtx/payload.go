package dtx

import (
	"encoding/binary"
	"errors"

	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

const payloadHeaderSize = 16

// messageTypeInstruments is the only message-type flags value this core
// speaks (spec.md §3: "value 2 = instruments").
const messageTypeInstruments uint32 = 2

// expectsReplyFlag is the bit of the flags field marking a reply is
// expected (spec.md §3).
const expectsReplyFlag uint32 = 0x1000

// compressionMask isolates the compression code bits of flags. The core
// refuses any non-zero compression (spec.md §3, non-goal). The
// expectsReplyFlag bit lies inside this range and is not counted as a
// compression code.
const compressionMask uint32 = 0x0FF000

type payloadHeader struct {
	Flags           uint32
	AuxiliaryLength uint32
	TotalLength     uint32
}

func parsePayloadHeader(b []byte) (payloadHeader, error) {
	if len(b) != payloadHeaderSize {
		return payloadHeader{}, &FrameError{Reason: "short payload header read"}
	}
	return payloadHeader{
		Flags:           binary.LittleEndian.Uint32(b[0:4]),
		AuxiliaryLength: binary.LittleEndian.Uint32(b[4:8]),
		TotalLength:     binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

func (h payloadHeader) bytes() []byte {
	b := make([]byte, payloadHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Flags)
	binary.LittleEndian.PutUint32(b[4:8], h.AuxiliaryLength)
	binary.LittleEndian.PutUint32(b[8:12], h.TotalLength)
	return b
}

// encodePayload builds the payload bytes (payload header + auxiliary blob
// + keyed-archive selector) of spec.md §4.2. selector may be nil (no
// selector object on the wire) and aux may be empty.
func encodePayload(selector interface{}, aux []AuxEntry, expectsReply bool) ([]byte, error) {
	auxBytes, err := encodeAux(aux)
	if err != nil {
		return nil, err
	}
	var selBytes []byte
	if selector != nil {
		selBytes, err = archive.Encode(selector)
		if err != nil {
			return nil, err
		}
	}
	flags := messageTypeInstruments
	if expectsReply {
		flags |= expectsReplyFlag
	}
	h := payloadHeader{
		Flags:           flags,
		AuxiliaryLength: uint32(len(auxBytes)),
		TotalLength:     uint32(len(auxBytes) + len(selBytes)),
	}
	out := make([]byte, 0, payloadHeaderSize+len(auxBytes)+len(selBytes))
	out = append(out, h.bytes()...)
	out = append(out, auxBytes...)
	out = append(out, selBytes...)
	return out, nil
}

// decodePayload parses the payload bytes of one reassembled message,
// per spec.md §4.2.
func decodePayload(b []byte, reg *archive.Registry) (returnValue interface{}, aux []AuxEntry, err error) {
	if len(b) < payloadHeaderSize {
		return nil, nil, &FrameError{Reason: "payload shorter than payload header"}
	}
	h, err := parsePayloadHeader(b[:payloadHeaderSize])
	if err != nil {
		return nil, nil, err
	}
	if code := h.Flags & compressionMask &^ expectsReplyFlag; code != 0 {
		return nil, nil, &CompressionUnsupportedError{Code: code}
	}
	rest := b[payloadHeaderSize:]
	if h.AuxiliaryLength > 0 {
		if uint32(len(rest)) < h.AuxiliaryLength {
			return nil, nil, &FrameError{Reason: "payload shorter than declared auxiliary_length"}
		}
		aux, err = decodeAux(rest[:h.AuxiliaryLength], reg)
		if err != nil {
			return nil, nil, err
		}
	}
	if h.TotalLength < h.AuxiliaryLength {
		return nil, nil, &FrameError{Reason: "total_length less than auxiliary_length"}
	}
	objLen := h.TotalLength - h.AuxiliaryLength
	if uint32(len(rest)) < h.AuxiliaryLength+objLen {
		return nil, nil, &FrameError{Reason: "payload shorter than declared total_length"}
	}
	objBytes := rest[h.AuxiliaryLength : h.AuxiliaryLength+objLen]
	if len(objBytes) == 0 {
		return nil, aux, nil
	}
	v, err := archive.DecodeWithRegistry(objBytes, reg)
	if err != nil {
		var classMissing *archive.ClassMissingError
		if errors.As(err, &classMissing) {
			return nil, aux, err
		}
		// Invalid plist: logged by the caller (Session), surfaced as a
		// null return with no error (spec.md §4.2).
		return nil, aux, errInvalidPlist{err}
	}
	return v, aux, nil
}

// errInvalidPlist marks a decode failure that spec.md §4.2 says should be
// logged and surfaced as a null return, distinct from a fatal class-missing
// or frame error.
type errInvalidPlist struct{ err error }

func (e errInvalidPlist) Error() string { return e.err.Error() }
func (e errInvalidPlist) Unwrap() error { return e.err }
