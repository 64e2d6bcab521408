package dtx

import "strings"

// ChannelProxy is a thin numeric handle bound to a Session (spec.md §3,
// §4.4). It owns no state besides its channel code; the session outlives
// its proxies and callers must not retain a proxy past the session's
// lifetime.
type ChannelProxy struct {
	code    int32
	session *Session
}

// Code returns the 32-bit signed channel code this proxy was allocated.
func (c *ChannelProxy) Code() int32 { return c.code }

// Invoke sends selectorName (sanitized per sanitizeSelector) with the
// given positional auxiliary arguments on this channel. This is the
// dynamic "invoke by name" surface of spec.md §4.4, for callers that pass
// a Go-identifier-shaped name (underscores instead of colons).
func (c *ChannelProxy) Invoke(selectorName string, args []AuxEntry, expectsReply bool) error {
	return c.session.SendMessage(c.code, sanitizeSelector(selectorName), args, expectsReply)
}

// InvokeSelector sends the exact on-wire selector string (already
// colon-punctuated) with the given positional auxiliary arguments. Typed
// domain bindings use this instead of Invoke because their selectors are
// already known in wire form (spec.md §4.3's table).
func (c *ChannelProxy) InvokeSelector(selector string, args []AuxEntry, expectsReply bool) error {
	return c.session.SendMessage(c.code, selector, args, expectsReply)
}

// Receive is a convenience that delegates to the session's RecvMessage and
// returns only the return value (spec.md §4.4).
func (c *ChannelProxy) Receive() (interface{}, error) {
	ret, _, err := c.session.RecvMessage()
	return ret, err
}

// ReceiveWithAux delegates to the session's RecvMessage and returns both
// the return value and any auxiliary entries.
func (c *ChannelProxy) ReceiveWithAux() (interface{}, []AuxEntry, error) {
	return c.session.RecvMessage()
}

// sanitizeSelector translates a caller-provided identifier into the
// on-wire Objective-C selector (spec.md §4.4): a single leading underscore
// is preserved, every other underscore becomes a colon.
//
//	killPid_                         -> killPid:
//	_notifyOfPublishedCapabilities_  -> _notifyOfPublishedCapabilities:
//	foo_bar_baz_                     -> foo:bar:baz:
func sanitizeSelector(name string) string {
	if strings.HasPrefix(name, "_") {
		return "_" + strings.ReplaceAll(name[1:], "_", ":")
	}
	return strings.ReplaceAll(name, "_", ":")
}
