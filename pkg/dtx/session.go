package dtx

import (
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"sync"

	charmlog "github.com/charmbracelet/log"

	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

// Capability keys advertised during the handshake (spec.md §4.3).
const (
	capabilityBlockCompression = "DTXBlockCompression"
	capabilityConnection       = "DTXConnection"
)

// deviceInfoIdentifier is the capability identifier of the deviceinfo
// service Open queries (the same value as deviceinfo.Identifier).
const deviceInfoIdentifier = "com.apple.instruments.server.services.deviceinfo"

// Session owns the transport, the per-session monotonic message
// identifier, the channel table, and the capability set learned during
// the handshake (spec.md §3).
type Session struct {
	transport Transport
	registry  *archive.Registry
	logger    *charmlog.Logger
	wireLog   *stdlog.Logger

	// mu is held for the whole of each SendMessage and each RecvMessage so
	// the bytes of one logical frame are never interleaved with another's
	// (spec.md §5). A send and the receive that follows it are not held
	// together; the core makes no further concurrency guarantee.
	mu sync.Mutex

	nextIdentifier  uint32
	lastChannelCode int32

	supportedIdentifiers map[string]struct{}
	channels             map[string]*ChannelProxy

	processAttributes []string
	systemAttributes  []string
}

// SessionOption customizes a Session at construction time (spec.md's
// ambient configuration surface, mirroring the teacher's SessionOption
// pattern).
type SessionOption func(*Session)

// WithRegistry overrides the keyed-archive class registry a session
// decodes return values with. Defaults to a fresh archive.NewRegistry().
func WithRegistry(reg *archive.Registry) SessionOption {
	return func(s *Session) { s.registry = reg }
}

// WithLogger overrides the structured leveled logger used for handshake,
// channel-creation and protocol-fatal diagnostics.
func WithLogger(l *charmlog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithWireLog enables a raw per-message transcript (frame header fields
// and payload lengths) written to w, mirroring the teacher's dedicated
// cdp_json.log side-channel logger. Disabled by default.
func WithWireLog(w io.Writer) SessionOption {
	return func(s *Session) {
		s.wireLog = stdlog.New(w, "dtx: ", stdlog.LstdFlags|stdlog.Lmicroseconds)
	}
}

// NewSession constructs a Session around an already-authenticated
// transport. The session starts in the "handshaking" state; call
// PerformHandshake or Open before using MakeChannel.
func NewSession(t Transport, opts ...SessionOption) *Session {
	s := &Session{
		transport:            t,
		registry:             archive.NewRegistry(),
		logger:               charmlog.New(io.Discard),
		channels:             make(map[string]*ChannelProxy),
		supportedIdentifiers: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PerformHandshake sends the capability-advertisement selector and
// verifies the peer's reply, per spec.md §4.3. Any deviation is fatal to
// the session.
func (s *Session) PerformHandshake() error {
	caps := map[string]interface{}{
		capabilityBlockCompression: int64(0),
		capabilityConnection:       int64(1),
	}
	args := NewBuilder().AppendObject(caps)
	s.logger.Debug("sending capability advertisement")
	if err := s.SendMessage(0, "_notifyOfPublishedCapabilities:", args.Entries(), false); err != nil {
		return err
	}
	ret, aux, err := s.RecvMessage()
	if err != nil {
		return err
	}
	sel, ok := ret.(string)
	if !ok || sel != "_notifyOfPublishedCapabilities:" {
		s.logger.Error("handshake selector mismatch", "got", ret)
		return &HandshakeError{Reason: "peer did not echo _notifyOfPublishedCapabilities:"}
	}
	if len(aux) == 0 || !aux[0].IsObject {
		return &HandshakeError{Reason: "capability reply has no auxiliary object"}
	}
	om, ok := aux[0].Object.(*archive.OrderedMap)
	if !ok || om.Len() == 0 {
		return &HandshakeError{Reason: "capability reply map is empty or malformed"}
	}
	s.supportedIdentifiers = make(map[string]struct{}, om.Len())
	for _, k := range om.Keys() {
		s.supportedIdentifiers[k] = struct{}{}
	}
	s.logger.Debug("handshake complete", "identifiers", om.Keys())
	return nil
}

// Open performs the handshake and then bootstraps the process/system
// monitoring attribute lists the way the original source's context-manager
// entry point does (supplemented feature, see SPEC_FULL.md §4): these
// attribute lists feed the sysmontap configuration map.
func (s *Session) Open() error {
	if err := s.PerformHandshake(); err != nil {
		return err
	}
	procAttrs, err := s.requestInformation(deviceInfoIdentifier, "sysmonProcessAttributes")
	if err != nil {
		return err
	}
	s.processAttributes = toStringSlice(procAttrs)
	sysAttrs, err := s.requestInformation(deviceInfoIdentifier, "sysmonSystemAttributes")
	if err != nil {
		return err
	}
	s.systemAttributes = toStringSlice(sysAttrs)
	return nil
}

func (s *Session) requestInformation(identifier, selector string) (interface{}, error) {
	ch, err := s.MakeChannel(identifier)
	if err != nil {
		return nil, err
	}
	if err := ch.InvokeSelector(selector, nil, true); err != nil {
		return nil, err
	}
	ret, err := ch.Receive()
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, &DomainError{Op: selector, Reason: "null return"}
	}
	return ret, nil
}

func toStringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ProcessAttributes returns the process-monitoring attribute names learned
// during Open.
func (s *Session) ProcessAttributes() []string { return append([]string(nil), s.processAttributes...) }

// SystemAttributes returns the system-monitoring attribute names learned
// during Open.
func (s *Session) SystemAttributes() []string { return append([]string(nil), s.systemAttributes...) }

// MakeChannel fails if identifier was not advertised during the handshake.
// Channels are cached by identifier (spec.md §3); a repeated call returns
// the cached proxy and sends nothing on the wire.
func (s *Session) MakeChannel(identifier string) (*ChannelProxy, error) {
	if _, ok := s.supportedIdentifiers[identifier]; !ok {
		return nil, &ChannelNotAdvertisedError{Identifier: identifier}
	}
	if ch, ok := s.channels[identifier]; ok {
		return ch, nil
	}
	s.lastChannelCode++
	code := s.lastChannelCode
	args := NewBuilder().AppendInt64(int64(code)).AppendObject(identifier)
	if err := s.SendMessage(0, "_requestChannelWithCode:identifier:", args.Entries(), true); err != nil {
		return nil, err
	}
	ret, _, err := s.RecvMessage()
	if err != nil {
		return nil, err
	}
	if ret != nil {
		return nil, &HandshakeError{Reason: fmt.Sprintf("unexpected non-null return creating channel %q", identifier)}
	}
	ch := &ChannelProxy{code: code, session: s}
	s.channels[identifier] = ch
	s.logger.Debug("channel created", "identifier", identifier, "code", code)
	return ch, nil
}

// SendMessage pre-increments the session's identifier counter, builds the
// payload and frame, and writes them to the transport in one call
// (spec.md §4.3).
func (s *Session) SendMessage(channelCode int32, selector string, aux []AuxEntry, expectsReply bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextIdentifier++
	var selValue interface{} = selector
	payload, err := encodePayload(selValue, aux, expectsReply)
	if err != nil {
		return err
	}
	frame := buildFrame(channelCode, s.nextIdentifier, payload, expectsReply)
	if s.wireLog != nil {
		s.wireLog.Printf("-> channel=%d id=%d selector=%q expects_reply=%v bytes=%d",
			channelCode, s.nextIdentifier, selector, expectsReply, len(frame))
	}
	if err := s.transport.SendAll(frame); err != nil {
		return err
	}
	return nil
}

// RecvMessage reads one logical message and decodes it via the payload/
// AUX/KA pipeline (spec.md §4.3). A CompressionUnsupportedError fails only
// this receive; every other error is fatal and the caller should close the
// session.
func (s *Session) RecvMessage() (interface{}, []AuxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, payload, err := readMessage(s.transport)
	if err != nil {
		return nil, nil, err
	}
	// Fold peer-initiated identifiers forward so client sends remain
	// strictly monotonic (spec.md §4.1, §5).
	if header.ConversationIndex == 0 && header.Identifier > s.nextIdentifier {
		s.nextIdentifier = header.Identifier
	}
	if s.wireLog != nil {
		s.wireLog.Printf("<- channel=%d id=%d bytes=%d", header.ChannelCode, header.Identifier, len(payload))
	}
	ret, aux, err := decodePayload(payload, s.registry)
	if err != nil {
		var invalid errInvalidPlist
		if errors.As(err, &invalid) {
			s.logger.Warn("received invalid plist payload", "error", invalid.err)
			return nil, aux, nil
		}
		var classMissing *archive.ClassMissingError
		if errors.As(err, &classMissing) {
			s.logger.Error("unregistered archive class", "class", classMissing.ClassName)
		}
		return nil, nil, err
	}
	return ret, aux, nil
}

// Close tears down the underlying transport.
func (s *Session) Close() error {
	return s.transport.Close()
}
