package archive

// OrderedMap preserves the key order a keyed archive's NS.keys/NS.objects
// pair carried on the wire (spec.md §3: decoding yields "ordered maps").
// A plain Go map cannot make that guarantee.
type OrderedMap struct {
	keys   []string
	values []interface{}
	index  map[string]int
}

// NewOrderedMap returns an empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{index: make(map[string]int)}
}

// Set appends key/value, or replaces the value in place if key already
// exists (insertion order of the first occurrence is kept).
func (m *OrderedMap) Set(key string, value interface{}) {
	if i, ok := m.index[key]; ok {
		m.values[i] = value
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (interface{}, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.values[i], true
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// ToMap returns a plain map[string]interface{} copy, for callers that
// don't care about order.
func (m *OrderedMap) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.keys))
	for i, k := range m.keys {
		out[k] = m.values[i]
	}
	return out
}
