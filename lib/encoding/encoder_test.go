package encoding

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewEncoder(t *testing.T) {
	// Should work with any key length (derives 32-byte key)
	if _, err := NewEncoder([]byte("short")); err != nil {
		t.Fatalf("NewEncoder with short key failed: %v", err)
	}

	if _, err := NewEncoder([]byte("this-is-a-32-byte-key-for-aes!!!")); err != nil {
		t.Fatalf("NewEncoder with 32-byte key failed: %v", err)
	}

	if _, err := NewEncoder([]byte("this-key-is-definitely-longer-than-thirty-two-bytes")); err != nil {
		t.Fatalf("NewEncoder with long key failed: %v", err)
	}

	if _, err := NewEncoder(nil); err != ErrEmptyKey {
		t.Errorf("NewEncoder(nil) error = %v, want %v", err, ErrEmptyKey)
	}
}

func TestLongKeysUseEveryByte(t *testing.T) {
	prefix := "0123456789abcdef0123456789abcdef"
	enc1, err := NewEncoder([]byte(prefix + "-one"))
	if err != nil {
		t.Fatal(err)
	}
	enc2, err := NewEncoder([]byte(prefix + "-two"))
	if err != nil {
		t.Fatal(err)
	}

	token, err := enc1.Encode(map[string]any{"n": 1}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc2.Decode(token, false); err != ErrSignatureInvalid {
		t.Errorf("Decode() with a key sharing the first 32 bytes error = %v, want %v", err, ErrSignatureInvalid)
	}
}

func TestRoundTrip(t *testing.T) {
	state := map[string]any{
		"count": int64(3),
		"name":  "greet",
		"ok":    true,
		"ratio": 0.5,
		"tags":  []any{"a", "b"},
		"nested": map[string]any{
			"depth": int64(1),
		},
	}

	for _, sensitive := range []bool{false, true} {
		enc, err := NewEncoder([]byte("test-key"))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}

		token, err := enc.Encode(state, sensitive)
		if err != nil {
			t.Fatalf("Encode(sensitive=%v) failed: %v", sensitive, err)
		}
		if token == "" {
			t.Fatal("Encoded token is empty")
		}

		got, err := enc.Decode(token, sensitive)
		if err != nil {
			t.Fatalf("Decode(sensitive=%v) failed: %v", sensitive, err)
		}
		if diff := cmp.Diff(state, got); diff != "" {
			t.Errorf("round trip mismatch (sensitive=%v) (-want +got):\n%s", sensitive, diff)
		}
	}
}

func TestSignatureVerificationFailure(t *testing.T) {
	enc, _ := NewEncoder([]byte("test-key"))

	token, err := enc.Encode(map[string]any{"id": int64(123)}, false)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Tamper with the signature
	tampered := token[:len(token)-2] + "XX"

	if _, err := enc.Decode(tampered, false); err != ErrSignatureInvalid {
		t.Errorf("Decode(tampered) error = %v, want %v", err, ErrSignatureInvalid)
	}
}

func TestDecryptionFailure(t *testing.T) {
	enc, _ := NewEncoder([]byte("test-key"))

	token, err := enc.Encode(map[string]any{"id": int64(123)}, true)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	tampered := token[:len(token)-2] + "XX"

	if _, err := enc.Decode(tampered, true); err == nil {
		t.Error("Expected error for tampered ciphertext, got nil")
	}
}

func TestInvalidFormat(t *testing.T) {
	enc, _ := NewEncoder([]byte("test-key"))

	if _, err := enc.Decode("invalidbase64withoutseparator", false); err != ErrInvalidFormat {
		t.Errorf("Decode() error = %v, want %v", err, ErrInvalidFormat)
	}
}

func TestDifferentKeysCannotDecode(t *testing.T) {
	enc1, _ := NewEncoder([]byte("key-one"))
	enc2, _ := NewEncoder([]byte("key-two"))

	token, err := enc1.Encode(map[string]any{"id": int64(123)}, false)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, err := enc2.Decode(token, false); err == nil {
		t.Error("Expected error when decoding with different key")
	}
}

func TestEmptyState(t *testing.T) {
	enc, _ := NewEncoder([]byte("test-key"))

	token, err := enc.Encode(nil, false)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := enc.Decode(token, false)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Decode(empty) = %v, want empty map", got)
	}
}
