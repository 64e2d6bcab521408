package dtx

import "encoding/binary"

// frameHeaderSize is the fixed size, in bytes, of the DTX message header
// (spec.md §3: "Frame header (fixed 32 bytes, little-endian)"). Grounded
// on other_examples' dtx_codec reference, whose DtxHeaderLength constant
// is the same 32.
const frameHeaderSize = 32

// frameHeader is the fixed-size message header that precedes every frame
// (spec.md §3). All multi-byte fields are little-endian.
type frameHeader struct {
	HeaderSize        uint32
	FragmentID        uint32
	FragmentCount     uint32
	Length            uint32
	Identifier        uint32
	ConversationIndex uint32
	ChannelCode       int32
	ExpectsReply      uint32
}

func parseFrameHeader(b []byte) (frameHeader, error) {
	if len(b) != frameHeaderSize {
		return frameHeader{}, &FrameError{Reason: "short frame header read"}
	}
	h := frameHeader{
		HeaderSize:        binary.LittleEndian.Uint32(b[0:4]),
		FragmentID:        binary.LittleEndian.Uint32(b[4:8]),
		FragmentCount:     binary.LittleEndian.Uint32(b[8:12]),
		Length:            binary.LittleEndian.Uint32(b[12:16]),
		Identifier:        binary.LittleEndian.Uint32(b[16:20]),
		ConversationIndex: binary.LittleEndian.Uint32(b[20:24]),
		ChannelCode:       int32(binary.LittleEndian.Uint32(b[24:28])),
		ExpectsReply:      binary.LittleEndian.Uint32(b[28:32]),
	}
	if h.HeaderSize != frameHeaderSize {
		return frameHeader{}, &FrameError{Reason: "header_size field is not 32"}
	}
	if h.FragmentCount == 0 {
		return frameHeader{}, &FrameError{Reason: "fragment_count is 0"}
	}
	return h, nil
}

func (h frameHeader) bytes() []byte {
	b := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.HeaderSize)
	binary.LittleEndian.PutUint32(b[4:8], h.FragmentID)
	binary.LittleEndian.PutUint32(b[8:12], h.FragmentCount)
	binary.LittleEndian.PutUint32(b[12:16], h.Length)
	binary.LittleEndian.PutUint32(b[16:20], h.Identifier)
	binary.LittleEndian.PutUint32(b[20:24], h.ConversationIndex)
	binary.LittleEndian.PutUint32(b[24:28], uint32(h.ChannelCode))
	binary.LittleEndian.PutUint32(b[28:32], h.ExpectsReply)
	return b
}

// buildFrame produces exactly one fragment carrying payload: the core
// never emits multi-fragment sends (spec.md §4.1).
func buildFrame(channelCode int32, identifier uint32, payload []byte, expectsReply bool) []byte {
	h := frameHeader{
		HeaderSize:        frameHeaderSize,
		FragmentID:        0,
		FragmentCount:     1,
		Length:            uint32(len(payload)),
		Identifier:        identifier,
		ConversationIndex: 0,
		ChannelCode:       channelCode,
	}
	if expectsReply {
		h.ExpectsReply = 1
	}
	out := make([]byte, 0, frameHeaderSize+len(payload))
	out = append(out, h.bytes()...)
	out = append(out, payload...)
	return out
}

// readMessage reads and reassembles one logical message from t, following
// spec.md §4.1: a fragment_count>1 first fragment (fragment_id==0) carries
// only the header; the reader keeps reading successive fragments,
// concatenating their Length bytes in order, until fragment_id equals
// fragment_count-1. All fragments of a message must share identifier and
// channel_code. If the first fragment's identifier exceeds the session's
// observed next_identifier, the caller is expected to fold that forward
// (see Session.RecvMessage) to keep client sends monotonic.
func readMessage(t Transport) (frameHeader, []byte, error) {
	headerBytes, err := t.RecvExact(frameHeaderSize)
	if err != nil {
		return frameHeader{}, nil, err
	}
	first, err := parseFrameHeader(headerBytes)
	if err != nil {
		return frameHeader{}, nil, err
	}

	if first.FragmentCount == 1 {
		payload, err := t.RecvExact(int(first.Length))
		if err != nil {
			return frameHeader{}, nil, err
		}
		return first, payload, nil
	}

	// First fragment of a multi-fragment message carries no payload bytes.
	if first.FragmentID != 0 {
		return frameHeader{}, nil, &FrameError{Reason: "first fragment read did not have fragment_id 0"}
	}

	payload := make([]byte, 0, first.Length)
	for i := uint32(1); i < first.FragmentCount; i++ {
		fragHeaderBytes, err := t.RecvExact(frameHeaderSize)
		if err != nil {
			return frameHeader{}, nil, err
		}
		frag, err := parseFrameHeader(fragHeaderBytes)
		if err != nil {
			return frameHeader{}, nil, err
		}
		if frag.Identifier != first.Identifier || frag.ChannelCode != first.ChannelCode {
			return frameHeader{}, nil, &FrameError{Reason: "fragment identifier/channel_code mismatch"}
		}
		if frag.FragmentCount != first.FragmentCount {
			return frameHeader{}, nil, &FrameError{Reason: "fragment_count mismatch across fragments"}
		}
		chunk, err := t.RecvExact(int(frag.Length))
		if err != nil {
			return frameHeader{}, nil, err
		}
		payload = append(payload, chunk...)
		if frag.FragmentID == frag.FragmentCount-1 {
			break
		}
	}
	return first, payload, nil
}
