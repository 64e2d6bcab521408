// Package sysmontap implements the "sysmontap" domain binding of spec.md
// §4.5: a generic telemetry tap that, on open, configures the peer's
// sampling rate and attribute set and then yields raw decoded records.
package sysmontap

import "github.com/nsdtx/dtx/pkg/dtx"

// Identifier is the capability identifier for this binding's channel.
const Identifier = "com.apple.instruments.server.services.sysmontap"

// sampleIntervalNanos is the fixed 1-second sampling interval the original
// source configures (spec.md §4.5).
const sampleIntervalNanos = int64(1_000_000_000)

// Tap is a pull-based cursor over sysmontap telemetry records, configured
// at Open time with the process/system attribute names a Session learned
// during Session.Open (SPEC_FULL.md §4, supplemented feature).
type Tap struct {
	ch *dtx.ChannelProxy
}

// Open configures and starts a sysmontap tap. updateRateMillis is the
// output frequency (the original hardcodes 1000ms); procAttrs/sysAttrs are
// typically session.ProcessAttributes()/session.SystemAttributes().
func Open(s *dtx.Session, updateRateMillis int64, procAttrs, sysAttrs []string) (*Tap, error) {
	ch, err := s.MakeChannel(Identifier)
	if err != nil {
		return nil, err
	}
	config := map[string]interface{}{
		"ur":             updateRateMillis,
		"bm":             int64(0),
		"procAttrs":      toObjectSlice(procAttrs),
		"sysAttrs":       toObjectSlice(sysAttrs),
		"cpuUsage":       true,
		"sampleInterval": sampleIntervalNanos,
	}
	args := dtx.NewBuilder().AppendObject(config)
	if err := ch.InvokeSelector("setConfig:", args.Entries(), false); err != nil {
		return nil, err
	}
	if err := ch.InvokeSelector("start", nil, false); err != nil {
		return nil, err
	}
	return &Tap{ch: ch}, nil
}

// Next blocks for the next raw decoded record. The keyed-archive class
// registry unwraps DTSysmonTapMessage/DTTapHeartbeatMessage/
// DTTapStatusMessage/DTKTraceTapMessage down to their DTTapMessagePlist
// body (spec.md §6), so callers see the plain plist value.
func (t *Tap) Next() (interface{}, error) {
	return t.ch.Receive()
}

// Close sends stopMonitoring, mirroring networking.Monitor's explicit
// close semantics (SPEC_FULL.md §6).
func (t *Tap) Close() error {
	return t.ch.InvokeSelector("stopMonitoring", nil, false)
}

func toObjectSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
