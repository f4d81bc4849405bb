// Package b64e provides URL-safe, unpadded base64 encoding helpers for the
// cryptographic byte strings (public keys, signatures) that travel on the
// wire and on disk throughout the contract server.
package b64e

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

var enc = base64.RawURLEncoding

// Encode returns the URL-safe, unpadded base64 form of b.
func Encode(b []byte) string { return enc.EncodeToString(b) }

// Decode parses the URL-safe, unpadded base64 form of s.
func Decode(s string) ([]byte, error) { return enc.DecodeString(s) }

// PubKey is an Ed25519 public key that (de)serializes as URL-safe,
// unpadded base64 text instead of raw bytes.
type PubKey ed25519.PublicKey

func (k PubKey) String() string { return Encode(k) }

func (k PubKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(k))
}

func (k *PubKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := Decode(s)
	if err != nil {
		return fmt.Errorf("b64e: decode pubkey: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return fmt.Errorf("b64e: pubkey has wrong length %d", len(b))
	}
	*k = PubKey(b)
	return nil
}

// Equal reports whether two public keys hold the same bytes.
func (k PubKey) Equal(o PubKey) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// Sig is an Ed25519 signature that (de)serializes as URL-safe, unpadded
// base64 text.
type Sig []byte

func (s Sig) String() string { return Encode(s) }

func (s Sig) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(s))
}

func (s *Sig) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := Decode(str)
	if err != nil {
		return fmt.Errorf("b64e: decode signature: %w", err)
	}
	*s = b
	return nil
}
