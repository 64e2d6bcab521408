package dtx

import (
	"testing"

	"github.com/nsdtx/dtx/pkg/dtx/archive"
	"github.com/nsdtx/dtx/pkg/dtx/dtxtest"
)

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	aux := []AuxEntry{
		{IsObject: true, Object: "/private/var"},
		{Int64Set: true, Int64: 77},
	}
	encoded, err := encodePayload("directoryListingForPath:", aux, true)
	if err != nil {
		t.Fatalf("encodePayload: %v", err)
	}

	ret, decodedAux, err := decodePayload(encoded, archive.NewRegistry())
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if ret != "directoryListingForPath:" {
		t.Fatalf("selector round-trip mismatch: got %v", ret)
	}
	if len(decodedAux) != 2 {
		t.Fatalf("got %d aux entries, want 2", len(decodedAux))
	}
	if decodedAux[0].Object != "/private/var" {
		t.Errorf("aux[0] = %v, want /private/var", decodedAux[0].Object)
	}
	if decodedAux[1].Int64 != 77 {
		t.Errorf("aux[1] = %v, want 77", decodedAux[1].Int64)
	}
}

func TestEncodePayloadNilSelector(t *testing.T) {
	encoded, err := encodePayload(nil, nil, false)
	if err != nil {
		t.Fatalf("encodePayload: %v", err)
	}
	ret, aux, err := decodePayload(encoded, archive.NewRegistry())
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if ret != nil || len(aux) != 0 {
		t.Fatalf("expected a null selector and no aux, got ret=%v aux=%v", ret, aux)
	}
}

// TestDecodePayloadRejectsCompression covers property 5: a non-zero
// compression code must fail the whole receive, with no partial decode.
func TestDecodePayloadRejectsCompression(t *testing.T) {
	// Code 1 would set only the 0x1000 expects-reply bit, so use code 2.
	b := dtxtest.BuildCompressedPayloadHeader(2)

	ret, aux, err := decodePayload(b, archive.NewRegistry())
	if err == nil {
		t.Fatal("expected a CompressionUnsupportedError")
	}
	if _, ok := err.(*CompressionUnsupportedError); !ok {
		t.Fatalf("got error of type %T, want *CompressionUnsupportedError", err)
	}
	if ret != nil || aux != nil {
		t.Fatalf("expected no partial decode, got ret=%v aux=%v", ret, aux)
	}
}

func TestDecodePayloadRejectsShortHeader(t *testing.T) {
	if _, _, err := decodePayload([]byte{1, 2, 3}, archive.NewRegistry()); err == nil {
		t.Fatal("expected an error for a payload shorter than the payload header")
	}
}
