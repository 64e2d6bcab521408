// Package processcontrol implements the "processcontrol" domain binding of
// spec.md §4.3: killing and launching processes.
package processcontrol

import "github.com/nsdtx/dtx/pkg/dtx"

// Identifier is the capability identifier for this binding's channel.
const Identifier = "com.apple.instruments.server.services.processcontrol"

func makeChannel(s *dtx.Session) (*dtx.ChannelProxy, error) {
	return s.MakeChannel(Identifier)
}

// Kill sends killPid: for pid. No reply is expected (spec.md §4.3 table).
func Kill(s *dtx.Session, pid int64) error {
	ch, err := makeChannel(s)
	if err != nil {
		return err
	}
	args := dtx.NewBuilder().AppendObject(pid)
	return ch.InvokeSelector("killPid:", args.Entries(), false)
}

// Launch launches bundle, returning its pid. A falsy (nil/zero) return is
// a *dtx.DomainError (spec.md §4.3 table: "pid (must be truthy)").
func Launch(s *dtx.Session, bundle string, arguments []string, killExisting, startSuspended bool) (int64, error) {
	ch, err := makeChannel(s)
	if err != nil {
		return 0, err
	}
	if arguments == nil {
		arguments = []string{}
	}
	options := map[string]interface{}{
		"StartSuspendedKey": startSuspended,
		"KillExisting":      killExisting,
	}
	args := dtx.NewBuilder().
		AppendObject("").
		AppendObject(bundle).
		AppendObject(map[string]interface{}{}).
		AppendObject(arguments).
		AppendObject(options)
	selector := "launchSuspendedProcessWithDevicePath:bundleIdentifier:environment:arguments:options:"
	if err := ch.InvokeSelector(selector, args.Entries(), true); err != nil {
		return 0, err
	}
	ret, err := ch.Receive()
	if err != nil {
		return 0, err
	}
	pid, ok := toInt64(ret)
	if !ok || pid == 0 {
		return 0, &dtx.DomainError{Op: "launch", Reason: "peer returned no pid"}
	}
	return pid, nil
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
