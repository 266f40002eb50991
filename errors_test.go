package cdefine

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrMissingName,
		ErrMissingTemplate,
		ErrCycle,
		ErrInvalidScript,
		ErrDuplicate,
		ErrNotFound,
		ErrInvalidFormat,
		ErrSignatureInvalid,
		ErrDecryptFailed,
	}

	for i, err1 := range errs {
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, 0},
		{"plain", errors.New("x"), 0},
		{"configuration", configError("a", ErrCycle), KindConfiguration},
		{"duplicate", duplicateError("a"), KindDuplicate},
		{"not found", notFoundError("a", ErrNotFound), KindNotFound},
		{"wrapped", fmt.Errorf("define: %w", configError("a", ErrMissingTemplate)), KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		configuration bool
		duplicate     bool
		notFound      bool
		decryption    bool
	}{
		{"nil error", nil, false, false, false, false},
		{"cycle", configError("x", ErrCycle), true, false, false, false},
		{"duplicate", duplicateError("x"), false, true, false, false},
		{"not found", notFoundError("x", ErrNotFound), false, false, true, false},
		{"wrapped not found", fmt.Errorf("wrapped: %w", notFoundError("x", ErrMissingTemplate)), false, false, true, false},
		{"signature", ErrSignatureInvalid, false, false, false, true},
		{"decrypt", fmt.Errorf("wrapped: %w", ErrDecryptFailed), false, false, false, true},
		{"other error", errors.New("other error"), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfiguration(tt.err); got != tt.configuration {
				t.Errorf("IsConfiguration(%v) = %v, want %v", tt.err, got, tt.configuration)
			}
			if got := IsDuplicate(tt.err); got != tt.duplicate {
				t.Errorf("IsDuplicate(%v) = %v, want %v", tt.err, got, tt.duplicate)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.notFound)
			}
			if got := IsDecryptionError(tt.err); got != tt.decryption {
				t.Errorf("IsDecryptionError(%v) = %v, want %v", tt.err, got, tt.decryption)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := configError("greet", ErrMissingTemplate)
	want := `configuration error for "greet": cdefine: missing template`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
