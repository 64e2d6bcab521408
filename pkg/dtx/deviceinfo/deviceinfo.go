// Package deviceinfo implements the "deviceinfo" domain binding table of
// spec.md §4.3: directory listing, process-name lookup, the running
// process list, and the system/hardware/network information dumps.
package deviceinfo

import (
	"time"

	"github.com/nsdtx/dtx/pkg/dtx"
	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

// Identifier is the capability identifier the handshake must advertise
// for this binding's channel to be createable.
const Identifier = "com.apple.instruments.server.services.deviceinfo"

func makeChannel(s *dtx.Session) (*dtx.ChannelProxy, error) {
	return s.MakeChannel(Identifier)
}

// Ls lists a directory on the device. A null return is reported as a
// *dtx.DomainError (spec.md §4.3, scenario D).
func Ls(s *dtx.Session, path string) ([]string, error) {
	ch, err := makeChannel(s)
	if err != nil {
		return nil, err
	}
	args := dtx.NewBuilder().AppendObject(path)
	if err := ch.InvokeSelector("directoryListingForPath:", args.Entries(), true); err != nil {
		return nil, err
	}
	ret, err := ch.Receive()
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, &dtx.DomainError{Op: "ls", Reason: "directory not found or not listable"}
	}
	items, ok := ret.([]interface{})
	if !ok {
		return nil, &dtx.DomainError{Op: "ls", Reason: "unexpected return shape"}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if str, ok := it.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

// ExecNameForPid resolves the full executable path for a running pid.
func ExecNameForPid(s *dtx.Session, pid int64) (string, error) {
	ch, err := makeChannel(s)
	if err != nil {
		return "", err
	}
	args := dtx.NewBuilder().AppendInt64(pid)
	if err := ch.InvokeSelector("execnameForPid:", args.Entries(), true); err != nil {
		return "", err
	}
	ret, err := ch.Receive()
	if err != nil {
		return "", err
	}
	name, _ := ret.(string)
	return name, nil
}

// startDateKey is the process-attribute key whose value is post-processed
// from Unix seconds into a time.Time (spec.md §4.3 table).
const startDateKey = "startDate"

// ProcessList returns the running-process list. Each process is an ordered
// map of attribute name to value, with startDate (if present) converted
// from Unix seconds to time.Time.
func ProcessList(s *dtx.Session) ([]*archive.OrderedMap, error) {
	ch, err := makeChannel(s)
	if err != nil {
		return nil, err
	}
	if err := ch.InvokeSelector("runningProcesses", nil, true); err != nil {
		return nil, err
	}
	ret, err := ch.Receive()
	if err != nil {
		return nil, err
	}
	items, ok := ret.([]interface{})
	if !ok {
		return nil, &dtx.DomainError{Op: "proc_list", Reason: "unexpected return shape"}
	}
	out := make([]*archive.OrderedMap, 0, len(items))
	for _, it := range items {
		m, ok := it.(*archive.OrderedMap)
		if !ok {
			continue
		}
		if raw, ok := m.Get(startDateKey); ok {
			if secs, ok := toFloat64(raw); ok {
				m.Set(startDateKey, time.Unix(0, 0).Add(time.Duration(secs*float64(time.Second))))
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// SystemInformation returns the deviceinfo "systemInformation" dump.
func SystemInformation(s *dtx.Session) (*archive.OrderedMap, error) {
	return requestInformation(s, "systemInformation")
}

// HardwareInformation returns the deviceinfo "hardwareInformation" dump.
func HardwareInformation(s *dtx.Session) (*archive.OrderedMap, error) {
	return requestInformation(s, "hardwareInformation")
}

// NetworkInformation returns the deviceinfo "networkInformation" dump.
func NetworkInformation(s *dtx.Session) (*archive.OrderedMap, error) {
	return requestInformation(s, "networkInformation")
}

func requestInformation(s *dtx.Session, selector string) (*archive.OrderedMap, error) {
	ch, err := makeChannel(s)
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
		return nil, &dtx.DomainError{Op: selector, Reason: "null return"}
	}
	m, ok := ret.(*archive.OrderedMap)
	if !ok {
		return nil, &dtx.DomainError{Op: selector, Reason: "unexpected return shape"}
	}
	return m, nil
}
