package cdefine

import "github.com/pthm/cdefine/lib/encoding"

// Encoder seals instance state into tokens. It is an alias for
// encoding.Encoder for convenience.
type Encoder = encoding.Encoder

// NewEncoder creates an encoder with the given key.
func NewEncoder(key []byte) (*Encoder, error) {
	return encoding.NewEncoder(key)
}
