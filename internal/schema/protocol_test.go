package schema

import (
	"errors"
	"testing"
)

func TestDecodeSetDataURL(t *testing.T) {
	raw := []byte(`{"type":"set-data-url","origin":"ws://host:8780","dataUrl":"https://host/data/rolls/2.json"}`)
	msg, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	set, ok := msg.(SetDataURL)
	if !ok {
		t.Fatalf("expected SetDataURL, got %T", msg)
	}
	if set.Origin != "ws://host:8780" {
		t.Errorf("origin: %q", set.Origin)
	}
	if set.DataURL != "https://host/data/rolls/2.json" {
		t.Errorf("dataUrl: %q", set.DataURL)
	}
}

func TestDecodeSubscribe(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"subscribe-to-data-url"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := msg.(SubscribeToDataURL); !ok {
		t.Fatalf("expected SubscribeToDataURL, got %T", msg)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"refresh-now"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"type":`},
		{"missing dataUrl", `{"type":"set-data-url"}`},
		{"blank dataUrl", `{"type":"set-data-url","dataUrl":"   "}`},
		{"numeric dataUrl", `{"type":"set-data-url","dataUrl":7}`},
		{"numeric type", `{"type":12}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error, got %#v", msg)
			}
			if errors.Is(err, ErrUnknownKind) {
				t.Fatalf("invalid payload misreported as unknown kind: %v", err)
			}
		})
	}
}

func TestEncodeSubscribeShape(t *testing.T) {
	raw, err := EncodeMessage(SubscribeToDataURL{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != `{"type":"subscribe-to-data-url"}` {
		t.Errorf("wire shape: %s", raw)
	}
}

func TestEncodeSetDataURLRoundTrip(t *testing.T) {
	in := SetDataURL{Origin: "ws://host:8780", DataURL: "https://host/data/a/1.json"}
	raw, err := EncodeMessage(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg != in {
		t.Errorf("round trip mismatch: %#v", msg)
	}
}

func TestEncodeRejectsEmptyDataURL(t *testing.T) {
	if _, err := EncodeMessage(SetDataURL{Origin: "ws://host"}); err == nil {
		t.Fatal("expected encode error")
	}
}
