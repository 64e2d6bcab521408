package archive

import "sync"

// ClassDecoder decodes the resolved field set of one class-tagged
// keyed-archive object (everything except $class itself, with UID
// references already followed) into a domain value. raw is typically a
// map[string]interface{} of the object's instance variables.
type ClassDecoder func(raw interface{}) (interface{}, error)

// Registry maps keyed-archive class names to decoders (spec.md §3, §6).
// It is process-wide state: populate it at initialization with Register
// or Update, not concurrently with active sessions (spec.md §5).
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]ClassDecoder
}

// NewRegistry returns a registry preloaded with the embedded class-name
// registry spec.md §6 requires: NSNull decodes to nil, and the four
// DTX tap message classes decode as their DTTapMessagePlist body.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]ClassDecoder)}
	r.Update(DefaultClassMap())
	return r
}

// DefaultClassMap returns the embedded class-name registry entries from
// spec.md §6, suitable for passing to Update.
func DefaultClassMap() map[string]ClassDecoder {
	passThroughTapPlist := func(raw interface{}) (interface{}, error) {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return raw, nil
		}
		if body, ok := m["DTTapMessagePlist"]; ok {
			return body, nil
		}
		return raw, nil
	}
	decodeNull := func(interface{}) (interface{}, error) { return nil, nil }
	return map[string]ClassDecoder{
		"NSNull":                decodeNull,
		"DTSysmonTapMessage":    passThroughTapPlist,
		"DTTapHeartbeatMessage": passThroughTapPlist,
		"DTTapStatusMessage":    passThroughTapPlist,
		"DTKTraceTapMessage":    passThroughTapPlist,
	}
}

// Register installs or replaces a single class decoder. Intended to be
// called once at initialization by collaborators extending the registry
// (spec.md §6: "additional entries are installed by collaborators").
func (r *Registry) Register(className string, decoder ClassDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[className] = decoder
}

// Update merges a batch of class decoders, mirroring the original source's
// archiver.update_class_map.
func (r *Registry) Update(m map[string]ClassDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range m {
		r.decoders[k] = v
	}
}

// Lookup returns the decoder registered for className, if any.
func (r *Registry) Lookup(className string) (ClassDecoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[className]
	return d, ok
}

// defaultRegistry is the process-wide registry used by the package-level
// Decode function when callers don't need a session-scoped registry.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry preloaded with the
// embedded class map. Sessions that need additional domain classes should
// build their own Registry with NewRegistry and Register/Update on it
// instead of mutating this shared instance at runtime (spec.md §5).
func DefaultRegistry() *Registry {
	return defaultRegistry
}
