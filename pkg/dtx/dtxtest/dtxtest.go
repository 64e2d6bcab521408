// Package dtxtest provides a mock Transport and raw wire-format builders
// for exercising pkg/dtx and its domain bindings without a real device,
// mirroring the teacher's own small, hand-rolled test fixtures
// (session_test.go) rather than pulling in a mocking framework.
package dtxtest

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

const (
	frameHeaderSize   = 32
	payloadHeaderSize = 16
	auxMagic          = 0x1f0
)

// Mock is an in-memory Transport: RecvExact drains a queue of bytes
// fed by QueueBytes, SendAll records every write for later
// inspection.
type Mock struct {
	mu      sync.Mutex
	readBuf []byte
	Sent    [][]byte
}

// New returns an empty Mock transport.
func New() *Mock {
	return &Mock{}
}

// QueueBytes appends raw bytes to the read queue.
func (m *Mock) QueueBytes(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf = append(m.readBuf, b...)
}

// SendAll records b and always succeeds.
func (m *Mock) SendAll(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, append([]byte(nil), b...))
	return nil
}

// RecvExact returns exactly n queued bytes, or an error if fewer remain.
func (m *Mock) RecvExact(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.readBuf) < n {
		return nil, errors.New("dtxtest: mock transport short read")
	}
	out := m.readBuf[:n]
	m.readBuf = m.readBuf[n:]
	return out, nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// BuildFrame encodes one frame header followed by payload, in the layout
// spec.md §3 describes. Pass a nil payload for a fragment-0 header-only
// fragment of a multi-fragment message.
func BuildFrame(channelCode int32, identifier, fragmentID, fragmentCount uint32, expectsReply bool, payload []byte) []byte {
	b := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(b[0:4], frameHeaderSize)
	binary.LittleEndian.PutUint32(b[4:8], fragmentID)
	binary.LittleEndian.PutUint32(b[8:12], fragmentCount)
	binary.LittleEndian.PutUint32(b[12:16], uint32(len(payload)))
	binary.LittleEndian.PutUint32(b[16:20], identifier)
	binary.LittleEndian.PutUint32(b[20:24], 0)
	binary.LittleEndian.PutUint32(b[24:28], uint32(channelCode))
	reply := uint32(0)
	if expectsReply {
		reply = 1
	}
	binary.LittleEndian.PutUint32(b[28:32], reply)
	return append(b, payload...)
}

// BuildPayload encodes a payload header + auxiliary blob + keyed-archive
// selector/return-value blob, per spec.md §4.2.
func BuildPayload(aux, selector []byte, expectsReply bool) []byte {
	flags := uint32(2)
	if expectsReply {
		flags |= 0x1000
	}
	h := make([]byte, payloadHeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], flags)
	binary.LittleEndian.PutUint32(h[4:8], uint32(len(aux)))
	binary.LittleEndian.PutUint32(h[8:12], uint32(len(aux)+len(selector)))
	out := append(h, aux...)
	out = append(out, selector...)
	return out
}

// BuildCompressedPayloadHeader encodes a payload header with non-zero
// compression bits set, for exercising CompressionUnsupportedError.
func BuildCompressedPayloadHeader(compressionCode uint32) []byte {
	flags := uint32(2) | ((compressionCode << 12) & 0x0FF000)
	h := make([]byte, payloadHeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], flags)
	return h
}

// AuxEntry is one raw {type, value} pair to feed BuildAux.
type AuxEntry struct {
	Tag   uint32
	Value []byte
}

// ObjectEntry keyed-archive-encodes obj and wraps it as an OBJECT
// auxiliary entry (tag 2).
func ObjectEntry(obj interface{}) (AuxEntry, error) {
	enc, err := archive.Encode(obj)
	if err != nil {
		return AuxEntry{}, err
	}
	buf := make([]byte, 4+len(enc))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(enc)))
	copy(buf[4:], enc)
	return AuxEntry{Tag: 2, Value: buf}, nil
}

// Int64Entry wraps v as an INT64 auxiliary entry (tag 4).
func Int64Entry(v int64) AuxEntry {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return AuxEntry{Tag: 4, Value: buf}
}

// BuildAux assembles the magic/length-prefixed auxiliary blob from raw
// entries.
func BuildAux(entries ...AuxEntry) []byte {
	var body []byte
	for _, e := range entries {
		tag := make([]byte, 4)
		binary.LittleEndian.PutUint32(tag, e.Tag)
		body = append(body, tag...)
		body = append(body, e.Value...)
	}
	h := make([]byte, 8)
	binary.LittleEndian.PutUint32(h[0:4], auxMagic)
	binary.LittleEndian.PutUint32(h[4:8], uint32(len(body)))
	return append(h, body...)
}
