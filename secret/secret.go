/*

Package secret signs byte strings so they can be handed to a client and
later verified as having come from us.

A Secret is a chunk of key material. Anything holding the same key can
verify what another holder signed, so servers sharing sessions must share
the key.

*/
package secret

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// SignSuffix separates a signed value from its signature.
var SignSuffix = []byte("__!sauthed!_")

// ErrNotAuthenticated means that this authenticator has a secret key, but
// the value passed in is not correctly signed by this key.
var ErrNotAuthenticated = errors.New("this value is not authenticated by this secret")

// ErrNoSecretKey means this represents an authenticator that does not have
// a key to authenticate with.
var ErrNoSecretKey = errors.New("secret has no key")

// The standard base64 alphabets both use /, which a strict reading of
// RFC 6265 forbids in cookie values.
var SignatureEncoding = base64.NewEncoding("0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ$%").WithPadding(base64.NoPadding)

// An Authenticator takes in a series of []bytes, and yields the last
// []byte concatenated with the signature over all of them.
//
// The leading []bytes contribute to the signature but do not appear in
// the result, which lets a cookie's value be bound to its name.
type Authenticator interface {
	Authenticate(...[]byte) ([]byte, error)
}

// An AuthenticationUnwrapper verifies what a matching Authenticator
// produced. All the []byte values given to Authenticate must be passed
// again, with the signed value last.
type AuthenticationUnwrapper interface {
	UnwrapAuthentication(...[]byte) ([]byte, error)
}

// A Signer can both sign and verify.
type Signer interface {
	Authenticator
	AuthenticationUnwrapper
}

// A Secret signs sequences of bytes as having come from something in
// possession of this secret.
//
// Nothing other than serialization code should ever be reaching in to this
// object.
type Secret struct {
	secret []byte
}

// New wraps the given key material.
func New(secret []byte) *Secret {
	return &Secret{append([]byte(nil), secret...)}
}

// FromHex decodes a hex-encoded key, as found in configuration files.
func FromHex(s string) (*Secret, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secret: decoding key: %w", err)
	}
	if len(key) == 0 {
		return nil, ErrNoSecretKey
	}
	return &Secret{key}, nil
}

// Random returns a Secret with 32 bytes read from r, which is normally
// crypto/rand.Reader.
func Random(r io.Reader) (*Secret, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, 32)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("secret: reading key material: %w", err)
	}
	return &Secret{b}, nil
}

var sigLength = SignatureEncoding.EncodedLen(sha256.Size)
var fullLength = sigLength + len(SignSuffix)

// Authenticate returns the last byte slice with SignSuffix and a
// signature appended. The preceding slices are part of the signature, so
// the same values must be handed to UnwrapAuthentication.
func (s *Secret) Authenticate(b ...[]byte) ([]byte, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, ErrNoSecretKey
	}
	if len(b) == 0 {
		return nil, errors.New("secret: nothing to authenticate")
	}

	sig := s.authenticate(b...)
	last := b[len(b)-1]

	result := make([]byte, 0, len(last)+fullLength)
	result = append(result, last...)
	result = append(result, SignSuffix...)
	result = append(result, sig...)
	return result, nil
}

// EscapedWrite writes b to w with every zero byte doubled.
//
// Fields are separated by a single zero when signing, so doubling the
// zeros inside fields keeps ("ab", "c") and ("a", "bc") distinct.
func EscapedWrite(w io.Writer, b []byte) (int, error) {
	count := len(b)

	if count == 0 {
		return 0, nil
	}

	start := 0
	end := 0
	total := 0

	for end < count {
		if b[end] == 0 {
			n, err := w.Write(b[start : end+1])
			total += n
			if err != nil {
				return total, err
			}
			start = end
		}
		end++
	}
	n, err := w.Write(b[start:end])
	total += n
	return total, err
}

// UnwrapAuthentication checks the result of an Authenticate call and
// returns the original value, or ErrNotAuthenticated.
func (s *Secret) UnwrapAuthentication(b ...[]byte) ([]byte, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, ErrNoSecretKey
	}
	if len(b) == 0 {
		return nil, ErrNotAuthenticated
	}

	last := b[len(b)-1]

	if len(last) < fullLength {
		return nil, ErrNotAuthenticated
	}
	value := last[:len(last)-fullLength]
	if !hmac.Equal(last[len(value):len(value)+len(SignSuffix)], SignSuffix) {
		return nil, ErrNotAuthenticated
	}

	original := make([][]byte, 0, len(b))
	original = append(original, b[:len(b)-1]...)
	original = append(original, value)
	expected := s.authenticate(original...)

	if hmac.Equal(expected, last[len(last)-sigLength:]) {
		return value, nil
	}
	return nil, ErrNotAuthenticated
}

// This returns just the encoded signature, without the prefix.
func (s *Secret) authenticate(b ...[]byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	for _, field := range b {
		_, _ = EscapedWrite(mac, field)
		_, _ = mac.Write([]byte{0, 1})
	}
	signature := mac.Sum(nil)

	sig := make([]byte, sigLength)
	SignatureEncoding.Encode(sig, signature)
	return sig
}

// MarshalText hex-encodes the key.
func (s *Secret) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s.secret)), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Secret) UnmarshalText(in []byte) error {
	decoded, err := hex.DecodeString(string(in))
	if err != nil {
		return err
	}
	s.secret = decoded
	return nil
}

// IsZero reports whether the Secret has no key.
func (s *Secret) IsZero() bool {
	return s == nil || len(s.secret) == 0
}
