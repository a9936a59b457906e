package session

// Session ID generation.
//
// See https://cheatsheetseries.owasp.org/cheatsheets/Session_Management_Cheat_Sheet.html .
//
// Session IDs are based on the cryptographic PRNG that Go backs to. If
// you do not sufficiently seed this with something, which can pretty much
// only happen bringing up VMs, you may have guessable session IDs at first.
// It's your job to ensure that your OS correctly stores entropy between
// boots.
//
// For testing purposes, to create test SessionIDs, just create whatever
// string you like and convert it to a session.SessionID. It won't pass
// Check, but stores don't care.

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	randomIDBytes = 32

	// this is a result, not a cause: 32 random bytes plus a 32 byte
	// HMAC, base64'ed.
	sessionIDLength = 88
)

// Going from the cheat sheet, Session ID properties:
//
// * Session ID Length: Minimum suggested is 128 bits, this has a
//   cryptographic RNG generating 256 bits.
// * Session ID content: A cryptographically-secure random number, and
//   nothing else.
// * This is a "strict" session: an HMAC check must pass that proves we
//   generated this session ID. An attacker can't name a session ID we
//   will accept, so stores need not worry about fixation.

// A SessionID is what is emitted to the user in the form of a cookie.
type SessionID string

// NoSessionID is the zero SessionID.
var NoSessionID = SessionID("")

// An IDManager mints session IDs and recognizes the ones it minted.
type IDManager interface {
	Get() SessionID
	Check(sessionID SessionID) bool
}

// mint reads 32 bytes from r and appends their HMAC under key.
func mint(r io.Reader, key []byte) SessionID {
	sessionID := make([]byte, randomIDBytes, randomIDBytes+sha256.Size)
	n, err := io.ReadFull(r, sessionID)
	if err != nil {
		panic(fmt.Errorf("While making session keys, couldn't read from PRNG (got %d bytes): %s", n, err.Error()))
	}

	mac := hmac.New(sha256.New, key)
	// per the interface hash.Hash, this can not return an error
	_, _ = mac.Write(sessionID)
	sessionID = mac.Sum(sessionID)

	return SessionID(base64.StdEncoding.EncodeToString(sessionID))
}

func check(sessionID SessionID, key []byte) bool {
	if len(sessionID) != sessionIDLength {
		return false
	}

	b, err := base64.StdEncoding.DecodeString(string(sessionID))
	if err != nil || len(b) != randomIDBytes+sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(b[:randomIDBytes])
	return hmac.Equal(mac.Sum(nil), b[randomIDBytes:])
}

func defaultKey(key []byte) []byte {
	if len(key) != 0 {
		return append([]byte(nil), key...)
	}
	key = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic("can't read a session ID key from crypto/rand: " + err.Error())
	}
	return key
}

// SessionIDs mints IDs synchronously.
type SessionIDs struct {
	secret []byte
}

// NewSessionIDs returns SessionIDs validating against the given key. A
// nil key is replaced by 32 bytes from crypto/rand, which means IDs won't
// survive a restart.
func NewSessionIDs(secret []byte) SessionIDs {
	return SessionIDs{defaultKey(secret)}
}

func (sids SessionIDs) Get() SessionID {
	return mint(rand.Reader, sids.secret)
}

func (sids SessionIDs) Check(sessionID SessionID) bool {
	return check(sessionID, sids.secret)
}

// Session keys are moderately expensive to generate. SessionIDGenerator
// buffers them up in a channel so that when we need a new one, we should
// ideally have one available. Worst case scenario we generate it on the
// spot.
type SessionIDGenerator struct {
	output     chan SessionID
	hmacKey    []byte
	randReader io.Reader
}

// NewSessionIDGenerator returns a SessionIDGenerator that will buffer up
// to the given number of keys in advance once it is Served.
//
// A bufferSize of 0 uses the default, which is currently 128.
//
// key is used to validate sessions. If you are running multiple instances
// and users are not bound to specific instances, or if your sessions
// should persist beyond a restart, this key should be the same between
// restarts and between servers. However, it should otherwise be secret. If
// this is nil, 32 bytes will be pulled from the system CSPRNG.
//
// If an attacker obtains the key, it does not mean they can read other
// people's sessions without further guessing the session ID, but it does
// mean they can generate arbitrary valid session IDs on their own.
//
// Changing this key invalidates all current sessions.
func NewSessionIDGenerator(bufferSize int, key []byte) *SessionIDGenerator {
	if bufferSize == 0 {
		bufferSize = 128
	}

	return &SessionIDGenerator{
		output:     make(chan SessionID, bufferSize),
		hmacKey:    defaultKey(key),
		randReader: rand.Reader,
	}
}

// Serve fills the buffer until the context is cancelled. It implements
// suture.Service.
func (skg *SessionIDGenerator) Serve(ctx context.Context) error {
	for {
		select {
		case skg.output <- skg.generate():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (skg *SessionIDGenerator) String() string {
	return "session ID generator"
}

// Get retrieves a fresh new SessionID, from the buffer if one is ready.
func (skg *SessionIDGenerator) Get() SessionID {
	select {
	case sessionID := <-skg.output:
		return sessionID
	default:
		return skg.generate()
	}
}

func (skg *SessionIDGenerator) generate() SessionID {
	return mint(skg.randReader, skg.hmacKey)
}

// Check validates that a given session key was generated with the same
// key as this generator.
func (skg *SessionIDGenerator) Check(sessionID SessionID) bool {
	return check(sessionID, skg.hmacKey)
}
