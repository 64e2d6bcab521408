package archive

import "testing"

func TestDefaultClassMapDecodesNSNullAsNil(t *testing.T) {
	r := NewRegistry()
	dec, ok := r.Lookup("NSNull")
	if !ok {
		t.Fatal("expected NSNull to be registered by default")
	}
	v, err := dec(nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != nil {
		t.Errorf("NSNull decoder = %v, want nil", v)
	}
}

func TestRegisterOverridesDefault(t *testing.T) {
	r := NewRegistry()
	r.Register("DTSysmonTapMessage", func(raw interface{}) (interface{}, error) {
		return "overridden", nil
	})
	dec, ok := r.Lookup("DTSysmonTapMessage")
	if !ok {
		t.Fatal("expected DTSysmonTapMessage to be registered")
	}
	v, err := dec(nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != "overridden" {
		t.Errorf("decode = %v, want overridden", v)
	}
}

func TestLookupMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("NotARegisteredClass"); ok {
		t.Fatal("expected Lookup on an unregistered class to report false")
	}
}

func TestDefaultRegistrySingleton(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Fatal("expected DefaultRegistry to return the same process-wide instance")
	}
}
