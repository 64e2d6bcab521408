package sysmontap

import (
	"testing"

	"github.com/nsdtx/dtx/pkg/dtx"
	"github.com/nsdtx/dtx/pkg/dtx/archive"
	"github.com/nsdtx/dtx/pkg/dtx/dtxtest"
)

func mustEncode(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := archive.Encode(v)
	if err != nil {
		t.Fatalf("archive.Encode: %v", err)
	}
	return b
}

func openTestSession(t *testing.T) (*dtx.Session, *dtxtest.Mock) {
	t.Helper()
	mock := dtxtest.New()
	objEntry, err := dtxtest.ObjectEntry(map[string]interface{}{Identifier: int64(1)})
	if err != nil {
		t.Fatalf("ObjectEntry: %v", err)
	}
	aux := dtxtest.BuildAux(objEntry)
	selBytes := mustEncode(t, "_notifyOfPublishedCapabilities:")
	reply := dtxtest.BuildPayload(aux, selBytes, false)
	mock.QueueBytes(dtxtest.BuildFrame(0, 1, 0, 1, false, reply))

	s := dtx.NewSession(mock)
	if err := s.PerformHandshake(); err != nil {
		t.Fatalf("PerformHandshake: %v", err)
	}
	return s, mock
}

func queueNullReply(mock *dtxtest.Mock, channelCode int32, identifier uint32) {
	mock.QueueBytes(dtxtest.BuildFrame(channelCode, identifier, 0, 1, false, dtxtest.BuildPayload(nil, nil, false)))
}

// TestOpenSendsSetConfigThenStart covers the setConfig:/start selector
// sequence spec.md §4.5 requires before a tap yields any records: both are
// sent with no reply expected, following the channel-creation round trip.
func TestOpenSendsSetConfigThenStart(t *testing.T) {
	s, mock := openTestSession(t)
	queueNullReply(mock, 1, 2) // channel creation reply

	tap, err := Open(s, 1000, []string{"pid", "cpuUsage"}, []string{"memFree"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if tap == nil {
		t.Fatal("expected a non-nil Tap")
	}
	if len(mock.Sent) != 4 { // handshake + channel create + setConfig: + start
		t.Fatalf("expected 4 frames sent, got %d", len(mock.Sent))
	}
}

// TestOpenFailsWhenChannelNotAdvertised mirrors the other domain bindings'
// ChannelNotAdvertisedError coverage.
func TestOpenFailsWhenChannelNotAdvertised(t *testing.T) {
	mock := dtxtest.New()
	objEntry, err := dtxtest.ObjectEntry(map[string]interface{}{"com.apple.instruments.server.services.other": int64(1)})
	if err != nil {
		t.Fatalf("ObjectEntry: %v", err)
	}
	aux := dtxtest.BuildAux(objEntry)
	selBytes := mustEncode(t, "_notifyOfPublishedCapabilities:")
	mock.QueueBytes(dtxtest.BuildFrame(0, 1, 0, 1, false, dtxtest.BuildPayload(aux, selBytes, false)))

	s := dtx.NewSession(mock)
	if err := s.PerformHandshake(); err != nil {
		t.Fatalf("PerformHandshake: %v", err)
	}
	if _, err := Open(s, 1000, nil, nil); err == nil {
		t.Fatal("expected a ChannelNotAdvertisedError")
	}
}

// TestNextDecodesRecord covers Next yielding a raw decoded record off the
// tap's channel, independent of which DT*TapMessage wrapper class unwraps
// it (spec.md §6).
func TestNextDecodesRecord(t *testing.T) {
	s, mock := openTestSession(t)
	queueNullReply(mock, 1, 2) // channel creation reply

	tap, err := Open(s, 1000, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	record := map[string]interface{}{"CPU": int64(12)}
	selBytes := mustEncode(t, record)
	mock.QueueBytes(dtxtest.BuildFrame(1, 5, 0, 1, false, dtxtest.BuildPayload(nil, selBytes, false)))

	got, err := tap.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	om, ok := got.(*archive.OrderedMap)
	if !ok {
		t.Fatalf("got %T, want *archive.OrderedMap", got)
	}
	if v, _ := om.Get("CPU"); v != int64(12) {
		t.Fatalf("CPU = %v, want 12", v)
	}
}

// TestCloseSendsStopMonitoring covers Close's no-reply stopMonitoring send.
func TestCloseSendsStopMonitoring(t *testing.T) {
	s, mock := openTestSession(t)
	queueNullReply(mock, 1, 2) // channel creation reply

	tap, err := Open(s, 1000, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := tap.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(mock.Sent) != 5 { // handshake + channel create + setConfig: + start + stopMonitoring
		t.Fatalf("expected 5 frames sent, got %d", len(mock.Sent))
	}
}
