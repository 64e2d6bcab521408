// Package networking implements the "networking" domain binding of
// spec.md §4.5: the network-connection monitor event stream and its
// embedded sockaddr decoding.
package networking

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/nsdtx/dtx/pkg/dtx"
)

// Identifier is the capability identifier for this binding's channel.
const Identifier = "com.apple.instruments.server.services.networking"

// Event type tags carried as the first element of each decoded message
// pair (spec.md §4.5).
const (
	TagInterfaceDetection  = 0
	TagConnectionDetection = 1
	TagConnectionUpdate    = 2
)

// InterfaceDetectionEvent reports a network interface becoming known to
// the peer.
type InterfaceDetectionEvent struct {
	InterfaceIndex int64
	Name           string
}

// ConnectionDetectionEvent reports a new socket the peer is tracking.
// LocalAddress/RemoteAddress are already parsed via ParseSockaddr.
type ConnectionDetectionEvent struct {
	LocalAddress   Sockaddr
	RemoteAddress  Sockaddr
	InterfaceIndex int64
	PID            int64
	RecvBufferSize int64
	RecvBufferUsed int64
	SerialNumber   int64
	Kind           int64
}

// ConnectionUpdateEvent reports periodic counters for a tracked socket.
type ConnectionUpdateEvent struct {
	RxPackets        int64
	RxBytes          int64
	TxBytes          int64
	RxDups           int64
	RxOOO            int64
	TxRetransmit     int64
	MinRTT           int64
	AvgRTT           int64
	ConnectionSerial int64
}

// Sockaddr is the parsed form of the opaque sockaddr-like byte strings
// embedded in ConnectionDetectionEvent (spec.md §4.5).
type Sockaddr struct {
	Family   uint8
	Port     uint16
	Addr     net.IP
	FlowInfo uint32 // IPv6 only
	ScopeID  uint32 // IPv6 only
}

// ParseSockaddr decodes the {len u8, family u8, port u16 big-endian, body}
// record spec.md §4.5 describes. len 0x10 is IPv4 (4-byte address plus 8
// reserved bytes); 0x1c is IPv6 (4-byte flow info, 16-byte address, 4-byte
// scope id).
func ParseSockaddr(b []byte) (Sockaddr, error) {
	if len(b) < 4 {
		return Sockaddr{}, fmt.Errorf("networking: sockaddr too short")
	}
	length := b[0]
	family := b[1]
	port := binary.BigEndian.Uint16(b[2:4])
	body := b[4:]
	switch length {
	case 0x10:
		if len(body) < 4 {
			return Sockaddr{}, fmt.Errorf("networking: ipv4 sockaddr body too short")
		}
		return Sockaddr{Family: family, Port: port, Addr: net.IP(append([]byte(nil), body[0:4]...))}, nil
	case 0x1c:
		if len(body) < 24 {
			return Sockaddr{}, fmt.Errorf("networking: ipv6 sockaddr body too short")
		}
		flow := binary.LittleEndian.Uint32(body[0:4])
		addr := net.IP(append([]byte(nil), body[4:20]...))
		scope := binary.LittleEndian.Uint32(body[20:24])
		return Sockaddr{Family: family, Port: port, Addr: addr, FlowInfo: flow, ScopeID: scope}, nil
	default:
		return Sockaddr{}, fmt.Errorf("networking: unrecognized sockaddr length 0x%x", length)
	}
}

// Monitor is a pull-based cursor over network-connection events, open
// only from NetworkMonitor. Close must be called when the caller is done
// consuming events; it sends stopMonitoring (spec.md §9's Open Question,
// resolved in favor of explicit close semantics — see SPEC_FULL.md §6).
type Monitor struct {
	ch *dtx.ChannelProxy
}

// NetworkMonitor opens the networking channel and starts monitoring
// (spec.md §4.3/§4.5). Callers must Close the returned Monitor.
func NetworkMonitor(s *dtx.Session) (*Monitor, error) {
	ch, err := s.MakeChannel(Identifier)
	if err != nil {
		return nil, err
	}
	if err := ch.InvokeSelector("startMonitoring", nil, false); err != nil {
		return nil, err
	}
	return &Monitor{ch: ch}, nil
}

// Next blocks for the next event. Null return values the peer may send
// between real events are skipped, matching the original source's
// "continue" on a nil message.
func (m *Monitor) Next() (interface{}, error) {
	for {
		ret, err := m.ch.Receive()
		if err != nil {
			return nil, err
		}
		if ret == nil {
			continue
		}
		pair, ok := ret.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, &dtx.DomainError{Op: "network_monitor", Reason: "unexpected event shape"}
		}
		tag, _ := toInt64(pair[0])
		fields, ok := pair[1].([]interface{})
		if !ok {
			return nil, &dtx.DomainError{Op: "network_monitor", Reason: "unexpected event field shape"}
		}
		switch tag {
		case TagInterfaceDetection:
			return decodeInterfaceDetection(fields)
		case TagConnectionDetection:
			return decodeConnectionDetection(fields)
		case TagConnectionUpdate:
			return decodeConnectionUpdate(fields)
		default:
			return nil, &dtx.DomainError{Op: "network_monitor", Reason: fmt.Sprintf("unknown event tag %d", tag)}
		}
	}
}

// Close sends stopMonitoring on the same channel. It is the only place
// this Monitor stops the stream.
func (m *Monitor) Close() error {
	return m.ch.InvokeSelector("stopMonitoring", nil, false)
}

func decodeInterfaceDetection(fields []interface{}) (InterfaceDetectionEvent, error) {
	if len(fields) < 2 {
		return InterfaceDetectionEvent{}, &dtx.DomainError{Op: "network_monitor", Reason: "short interface detection event"}
	}
	idx, _ := toInt64(fields[0])
	name, _ := fields[1].(string)
	return InterfaceDetectionEvent{InterfaceIndex: idx, Name: name}, nil
}

func decodeConnectionDetection(fields []interface{}) (ConnectionDetectionEvent, error) {
	if len(fields) < 8 {
		return ConnectionDetectionEvent{}, &dtx.DomainError{Op: "network_monitor", Reason: "short connection detection event"}
	}
	localRaw, _ := fields[0].([]byte)
	remoteRaw, _ := fields[1].([]byte)
	local, err := ParseSockaddr(localRaw)
	if err != nil {
		return ConnectionDetectionEvent{}, err
	}
	remote, err := ParseSockaddr(remoteRaw)
	if err != nil {
		return ConnectionDetectionEvent{}, err
	}
	ifIdx, _ := toInt64(fields[2])
	pid, _ := toInt64(fields[3])
	bufSize, _ := toInt64(fields[4])
	bufUsed, _ := toInt64(fields[5])
	serial, _ := toInt64(fields[6])
	kind, _ := toInt64(fields[7])
	return ConnectionDetectionEvent{
		LocalAddress:   local,
		RemoteAddress:  remote,
		InterfaceIndex: ifIdx,
		PID:            pid,
		RecvBufferSize: bufSize,
		RecvBufferUsed: bufUsed,
		SerialNumber:   serial,
		Kind:           kind,
	}, nil
}

func decodeConnectionUpdate(fields []interface{}) (ConnectionUpdateEvent, error) {
	if len(fields) < 9 {
		return ConnectionUpdateEvent{}, &dtx.DomainError{Op: "network_monitor", Reason: "short connection update event"}
	}
	vals := make([]int64, 9)
	for i := range vals {
		vals[i], _ = toInt64(fields[i])
	}
	return ConnectionUpdateEvent{
		RxPackets:        vals[0],
		RxBytes:          vals[1],
		TxBytes:          vals[2],
		RxDups:           vals[3],
		RxOOO:            vals[4],
		TxRetransmit:     vals[5],
		MinRTT:           vals[6],
		AvgRTT:           vals[7],
		ConnectionSerial: vals[8],
	}, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
