// Package archive implements the keyed-archive object-graph codec
// (spec.md §3/§4.1, the "KA" component). A keyed archive is a binary
// plist (NSKeyedArchiver layout) whose root is either a primitive value or
// a reference into a "$objects" array of class-tagged nodes. This package
// decodes that graph into plain Go values (string, int64, float64, bool,
// nil, *OrderedMap, []interface{}, time.Time) plus domain-typed values
// dispatched through a Registry by class name, and encodes the subset
// spec.md §3 requires for selectors and return values: strings, numbers,
// booleans, ordered maps, ordered lists, and null.
//
// The plist transcoding itself is delegated to howett.net/plist; this
// package owns the NSKeyedArchiver-specific $class/$objects/$top
// bookkeeping and the registry dispatch spec.md §6 requires, which no
// off-the-shelf library exposes as a pluggable hook (see DESIGN.md).
package archive

import (
	"fmt"
	"sort"
	"time"

	"howett.net/plist"
)

// appleEpoch is the NSDate reference date (2001-01-01T00:00:00Z), used to
// convert the "NS.time" field of archived NSDate objects.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Decode decodes a keyed-archive byte string using the process-wide
// default registry.
func Decode(data []byte) (interface{}, error) {
	return DecodeWithRegistry(data, DefaultRegistry())
}

// DecodeWithRegistry decodes a keyed-archive byte string, dispatching any
// class-tagged object with no built-in handling to reg.
func DecodeWithRegistry(data []byte, reg *Registry) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw interface{}
	if err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("archive: invalid plist: %w", err)
	}
	top, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("archive: root plist value is not a dictionary")
	}
	if top["$archiver"] != nil && top["$archiver"] != "NSKeyedArchiver" {
		return nil, fmt.Errorf("archive: unsupported archiver %v", top["$archiver"])
	}
	objects, _ := top["$objects"].([]interface{})
	topRefs, _ := top["$top"].(map[string]interface{})
	rootRef, ok := topRefs["root"]
	if !ok {
		return nil, fmt.Errorf("archive: missing $top.root")
	}
	d := &decoder{objects: objects, registry: reg, cache: make(map[uint64]interface{})}
	return d.resolve(rootRef)
}

// Encode encodes v (a string, bool, int, int32, int64, uint64, float32,
// float64, []byte, nil, map[string]interface{}, *OrderedMap,
// []interface{}, []string or time.Time) as a keyed-archive byte string.
// Any other type, including the other Go integer types, is an error.
func Encode(v interface{}) ([]byte, error) {
	e := &encoder{classCache: make(map[string]plist.UID)}
	e.objects = []interface{}{"$null"}
	root, err := e.encodeValue(v)
	if err != nil {
		return nil, err
	}
	top := map[string]interface{}{
		"$archiver": "NSKeyedArchiver",
		"$version":  uint64(100000),
		"$top":      map[string]interface{}{"root": root},
		"$objects":  e.objects,
	}
	return plist.Marshal(top, plist.BinaryFormat)
}

type decoder struct {
	objects  []interface{}
	registry *Registry
	cache    map[uint64]interface{}
}

func (d *decoder) resolve(ref interface{}) (interface{}, error) {
	uid, isUID := ref.(plist.UID)
	if !isUID {
		return d.decodeRaw(ref)
	}
	idx := uint64(uid)
	if v, ok := d.cache[idx]; ok {
		return v, nil
	}
	if int(idx) >= len(d.objects) {
		return nil, fmt.Errorf("archive: object reference %d out of range", idx)
	}
	d.cache[idx] = nil // cycle guard placeholder
	val, err := d.decodeRaw(d.objects[idx])
	if err != nil {
		return nil, err
	}
	d.cache[idx] = val
	return val, nil
}

func (d *decoder) decodeRaw(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "$null" {
			return nil, nil
		}
		return v, nil
	case bool, []byte:
		return v, nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		return v, nil
	case plist.UID:
		return d.resolve(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			rv, err := d.resolve(e)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]interface{}:
		return d.decodeObject(v)
	default:
		return raw, nil
	}
}

func (d *decoder) decodeObject(m map[string]interface{}) (interface{}, error) {
	classRef, hasClass := m["$class"]
	if !hasClass {
		out := NewOrderedMap()
		for k, val := range m {
			rv, err := d.resolve(val)
			if err != nil {
				return nil, err
			}
			out.Set(k, rv)
		}
		return out, nil
	}
	classUID, ok := classRef.(plist.UID)
	if !ok {
		return nil, fmt.Errorf("archive: $class is not an object reference")
	}
	if int(classUID) >= len(d.objects) {
		return nil, fmt.Errorf("archive: $class reference out of range")
	}
	classInfo, _ := d.objects[int(classUID)].(map[string]interface{})
	className, _ := classInfo["$classname"].(string)

	switch className {
	case "NSDictionary", "NSMutableDictionary":
		return d.decodeDictionary(m)
	case "NSArray", "NSMutableArray", "NSSet", "NSMutableSet", "NSOrderedSet", "NSMutableOrderedSet":
		return d.decodeList(m)
	case "NSDate", "NSMutableDate":
		secs, _ := toFloat64(m["NS.time"])
		return appleEpoch.Add(time.Duration(secs * float64(time.Second))), nil
	case "NSString", "NSMutableString":
		s, _ := m["NS.string"].(string)
		return s, nil
	case "NSData", "NSMutableData":
		b, _ := m["NS.data"].([]byte)
		return b, nil
	case "NSNumber":
		if v, ok := m["NS.intval"]; ok {
			return v, nil
		}
		if v, ok := m["NS.dblval"]; ok {
			return v, nil
		}
		return nil, nil
	default:
		if dec, ok := d.registry.Lookup(className); ok {
			resolved, err := d.resolveFields(m)
			if err != nil {
				return nil, err
			}
			return dec(resolved)
		}
		resolved, _ := d.resolveFields(m)
		return nil, &ClassMissingError{ClassName: className, RawPlist: resolved}
	}
}

func (d *decoder) resolveFields(m map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, val := range m {
		if k == "$class" {
			continue
		}
		rv, err := d.resolve(val)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func (d *decoder) decodeDictionary(m map[string]interface{}) (interface{}, error) {
	keysRaw, _ := m["NS.keys"].([]interface{})
	valsRaw, _ := m["NS.objects"].([]interface{})
	out := NewOrderedMap()
	for i := range keysRaw {
		if i >= len(valsRaw) {
			break
		}
		k, err := d.resolve(keysRaw[i])
		if err != nil {
			return nil, err
		}
		kStr, ok := k.(string)
		if !ok {
			kStr = fmt.Sprintf("%v", k)
		}
		v, err := d.resolve(valsRaw[i])
		if err != nil {
			return nil, err
		}
		out.Set(kStr, v)
	}
	return out, nil
}

func (d *decoder) decodeList(m map[string]interface{}) (interface{}, error) {
	objsRaw, _ := m["NS.objects"].([]interface{})
	out := make([]interface{}, len(objsRaw))
	for i, e := range objsRaw {
		rv, err := d.resolve(e)
		if err != nil {
			return nil, err
		}
		out[i] = rv
	}
	return out, nil
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

type encoder struct {
	objects    []interface{}
	classCache map[string]plist.UID
}

func (e *encoder) append(v interface{}) plist.UID {
	e.objects = append(e.objects, v)
	return plist.UID(len(e.objects) - 1)
}

func (e *encoder) classInfo(name string, hierarchy ...string) plist.UID {
	if uid, ok := e.classCache[name]; ok {
		return uid
	}
	classes := make([]interface{}, 0, len(hierarchy)+1)
	classes = append(classes, name)
	for _, h := range hierarchy {
		classes = append(classes, h)
	}
	uid := e.append(map[string]interface{}{
		"$classname": name,
		"$classes":   classes,
	})
	e.classCache[name] = uid
	return uid
}

func (e *encoder) encodeValue(v interface{}) (plist.UID, error) {
	switch val := v.(type) {
	case nil:
		return plist.UID(0), nil
	case string:
		return e.append(val), nil
	case bool:
		return e.append(val), nil
	case int:
		return e.append(int64(val)), nil
	case int32:
		return e.append(int64(val)), nil
	case int64:
		return e.append(val), nil
	case uint64:
		return e.append(val), nil
	case float32:
		return e.append(float64(val)), nil
	case float64:
		return e.append(val), nil
	case []byte:
		return e.append(val), nil
	case time.Time:
		return e.encodeDate(val), nil
	case []string:
		items := make([]interface{}, len(val))
		for i, s := range val {
			items[i] = s
		}
		return e.encodeList(items)
	case []interface{}:
		return e.encodeList(val)
	case map[string]interface{}:
		return e.encodeMap(val)
	case *OrderedMap:
		return e.encodeOrderedMap(val)
	default:
		return 0, fmt.Errorf("archive: unsupported type %T for encoding", v)
	}
}

func (e *encoder) encodeList(items []interface{}) (plist.UID, error) {
	refs := make([]interface{}, len(items))
	for i, it := range items {
		uid, err := e.encodeValue(it)
		if err != nil {
			return 0, err
		}
		refs[i] = uid
	}
	classUID := e.classInfo("NSMutableArray", "NSArray", "NSObject")
	return e.append(map[string]interface{}{
		"$class":     classUID,
		"NS.objects": refs,
	}), nil
}

func (e *encoder) encodeMap(m map[string]interface{}) (plist.UID, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return e.encodeKeyedEntries(keys, func(k string) interface{} { return m[k] })
}

func (e *encoder) encodeOrderedMap(m *OrderedMap) (plist.UID, error) {
	keys := m.Keys()
	return e.encodeKeyedEntries(keys, func(k string) interface{} {
		v, _ := m.Get(k)
		return v
	})
}

func (e *encoder) encodeKeyedEntries(keys []string, get func(string) interface{}) (plist.UID, error) {
	keyRefs := make([]interface{}, len(keys))
	valRefs := make([]interface{}, len(keys))
	for i, k := range keys {
		kUID, err := e.encodeValue(k)
		if err != nil {
			return 0, err
		}
		vUID, err := e.encodeValue(get(k))
		if err != nil {
			return 0, err
		}
		keyRefs[i] = kUID
		valRefs[i] = vUID
	}
	classUID := e.classInfo("NSMutableDictionary", "NSDictionary", "NSObject")
	return e.append(map[string]interface{}{
		"$class":     classUID,
		"NS.keys":    keyRefs,
		"NS.objects": valRefs,
	}), nil
}

func (e *encoder) encodeDate(t time.Time) plist.UID {
	secs := t.Sub(appleEpoch).Seconds()
	classUID := e.classInfo("NSDate", "NSObject")
	return e.append(map[string]interface{}{
		"$class":  classUID,
		"NS.time": secs,
	})
}
