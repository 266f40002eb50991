package cdefine

import (
	"errors"
	"fmt"

	"github.com/pthm/cdefine/lib/encoding"
)

// Sentinel errors for definition and compilation.
var (
	ErrMissingName     = errors.New("cdefine: missing name")
	ErrMissingTemplate = errors.New("cdefine: missing template")
	ErrCycle           = errors.New("cdefine: extend cycle")
	ErrInvalidScript   = errors.New("cdefine: invalid script")
	ErrDuplicate       = errors.New("cdefine: name already defined")
	ErrNotFound        = errors.New("cdefine: not found")

	ErrInvalidFormat    = encoding.ErrInvalidFormat
	ErrSignatureInvalid = encoding.ErrSignatureInvalid
	ErrDecryptFailed    = encoding.ErrDecryptFailed
)

// Kind classifies an *Error.
type Kind int

const (
	// KindConfiguration covers malformed definitions: a missing name or
	// template, an extend cycle, a script that does not compile.
	KindConfiguration Kind = iota + 1
	// KindDuplicate is a second definition for a name already registered.
	KindDuplicate
	// KindNotFound is an extend or src reference that cannot be resolved.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindDuplicate:
		return "duplicate registration"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Error is returned by Define and Compile. Err is one of the sentinel
// errors, possibly wrapping a lower-level cause.
type Error struct {
	Kind Kind
	Name string // definition name or template reference, if known
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error for %q: %v", e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func configError(name string, err error) error {
	return &Error{Kind: KindConfiguration, Name: name, Err: err}
}

func duplicateError(name string) error {
	return &Error{Kind: KindDuplicate, Name: name, Err: ErrDuplicate}
}

func notFoundError(name string, err error) error {
	return &Error{Kind: KindNotFound, Name: name, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsConfiguration checks if err is a configuration error.
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsDuplicate checks if err is a duplicate registration error.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsNotFound checks if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || KindOf(err) == KindNotFound
}

// IsDecryptionError checks if err is a state token decryption or signature error.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptFailed) || errors.Is(err, ErrSignatureInvalid)
}

// IsInvalidToken checks if err is a malformed state token.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}
