package dtx

import (
	"reflect"
	"testing"

	"howett.net/plist"

	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

// TestAuxRoundTrip covers property 1: encodeAux/decodeAux round-trips every
// combination of OBJECT and INT64 entries without loss.
func TestAuxRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		entries []AuxEntry
	}{
		{"empty", nil},
		{"single int64", []AuxEntry{{Int64Set: true, Int64: -7}}},
		{"single object string", []AuxEntry{{IsObject: true, Object: "hello"}}},
		{"object then int64", []AuxEntry{
			{IsObject: true, Object: "/var"},
			{Int64Set: true, Int64: 1234},
		}},
		{"int64 then object map", []AuxEntry{
			{Int64Set: true, Int64: 0},
			{IsObject: true, Object: map[string]interface{}{"a": int64(1), "b": "two"}},
		}},
		{"several objects", []AuxEntry{
			{IsObject: true, Object: "first"},
			{IsObject: true, Object: int64(99)},
			{IsObject: true, Object: nil},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := encodeAux(tc.entries)
			if err != nil {
				t.Fatalf("encodeAux: %v", err)
			}
			if len(tc.entries) == 0 {
				if encoded != nil {
					t.Fatalf("expected nil blob for no entries, got %v", encoded)
				}
				return
			}
			decoded, err := decodeAux(encoded, archive.NewRegistry())
			if err != nil {
				t.Fatalf("decodeAux: %v", err)
			}
			if len(decoded) != len(tc.entries) {
				t.Fatalf("got %d entries, want %d", len(decoded), len(tc.entries))
			}
			for i, want := range tc.entries {
				got := decoded[i]
				if got.Int64Set != want.Int64Set || got.Int64 != want.Int64 {
					t.Errorf("entry %d int64 mismatch: got %+v want %+v", i, got, want)
				}
				if got.IsObject != want.IsObject {
					t.Errorf("entry %d IsObject mismatch: got %v want %v", i, got.IsObject, want.IsObject)
				}
				if want.IsObject && !objectsEqual(got.Object, want.Object) {
					t.Errorf("entry %d object mismatch: got %#v want %#v", i, got.Object, want.Object)
				}
			}
		})
	}
}

func TestDecodeAuxRejectsUnknownTag(t *testing.T) {
	blob := []byte{
		0xf0, 0x01, 0x00, 0x00, // magic
		0x04, 0x00, 0x00, 0x00, // body length = 4
		0xff, 0x00, 0x00, 0x00, // unknown tag
	}
	if _, err := decodeAux(blob, archive.NewRegistry()); err == nil {
		t.Fatal("expected an error for an unknown auxiliary tag")
	}
}

func TestDecodeAuxRejectsBadMagic(t *testing.T) {
	blob := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := decodeAux(blob, archive.NewRegistry()); err == nil {
		t.Fatal("expected an error for a bad magic value")
	}
}

// TestDecodeAuxUsesGivenRegistry covers the fix where an OBJECT auxiliary
// entry embedding a class-tagged object must resolve through the same
// registry the caller passes in, not the package-level default registry
// (spec.md §6's registry extensibility applies to auxiliary arguments too,
// not just top-level return values).
func TestDecodeAuxUsesGivenRegistry(t *testing.T) {
	className := "DTXTestOnlyCustomClass"
	encodedObj := encodeAsCustomClass(t, className)
	blob := []byte{0xf0, 0x01, 0x00, 0x00}
	bodyLen := 4 + 4 + len(encodedObj)
	lenBytes := make([]byte, 4)
	lenBytes[0] = byte(bodyLen)
	lenBytes[1] = byte(bodyLen >> 8)
	lenBytes[2] = byte(bodyLen >> 16)
	lenBytes[3] = byte(bodyLen >> 24)
	blob = append(blob, lenBytes...)
	blob = append(blob, byte(auxTagObject), byte(auxTagObject>>8), byte(auxTagObject>>16), byte(auxTagObject>>24))
	objLen := len(encodedObj)
	blob = append(blob, byte(objLen), byte(objLen>>8), byte(objLen>>16), byte(objLen>>24))
	blob = append(blob, encodedObj...)

	// With no registry entry for className, decoding must fail loudly.
	if _, err := decodeAux(blob, archive.NewRegistry()); err == nil {
		t.Fatal("expected a ClassMissingError when the given registry has no entry for the class")
	}

	// A custom registry with the class registered must be the one
	// consulted, not the process-wide default registry.
	custom := archive.NewRegistry()
	custom.Register(className, func(raw interface{}) (interface{}, error) {
		return "decoded-by-custom-registry", nil
	})
	entries, err := decodeAux(blob, custom)
	if err != nil {
		t.Fatalf("decodeAux with custom registry: %v", err)
	}
	if len(entries) != 1 || entries[0].Object != "decoded-by-custom-registry" {
		t.Fatalf("got %+v, want a single entry decoded via the custom registry", entries)
	}
}

// objectsEqual compares a decoded OBJECT value against the value it was
// encoded from. A plain map encodes to a keyed dictionary and decodes back
// as an *archive.OrderedMap, so that case compares via ToMap() instead of
// reflect.DeepEqual.
func objectsEqual(got, want interface{}) bool {
	if m, ok := want.(map[string]interface{}); ok {
		om, ok := got.(*archive.OrderedMap)
		if !ok {
			return false
		}
		return reflect.DeepEqual(om.ToMap(), m)
	}
	return reflect.DeepEqual(got, want)
}

// encodeAsCustomClass builds a standalone keyed-archive byte string whose
// root is a $class-tagged object with no fields, naming className. This
// bypasses archive.Encode (which only ever emits the built-in classes it
// knows about) to produce a fixture a registry must resolve by name.
func encodeAsCustomClass(t *testing.T, className string) []byte {
	t.Helper()
	top := map[string]interface{}{
		"$archiver": "NSKeyedArchiver",
		"$version":  uint64(100000),
		"$top":      map[string]interface{}{"root": plist.UID(2)},
		"$objects": []interface{}{
			"$null",
			map[string]interface{}{"$classname": className, "$classes": []interface{}{className}},
			map[string]interface{}{"$class": plist.UID(1)},
		},
	}
	b, err := plist.Marshal(top, plist.BinaryFormat)
	if err != nil {
		t.Fatalf("plist.Marshal: %v", err)
	}
	return b
}
