/*

Package session reads and writes server-side session data on behalf of a
single request.

A Manager is built once per process around a Store. For each request it
hands out a Handle, which moves through

    NotStarted -> Active -> Released | Destroyed

Released may become Active again with a later Start in the same request;
Destroyed is terminal. A Handle is request-scoped and must not be shared
between goroutines. Stores are shared and must be safe for concurrent use.

Reads are forgiving: Has and Get treat a session that was never started
as empty. Writes are guarded: Set and Remove do nothing unless the session
is Active, so nothing is ever created outside of Start.

*/
package session

import (
	"context"
	"errors"

	"github.com/satori-http/satori/sphyrw/cookie"
)

// ErrSessionNotFound is returned by a Store for unknown or expired
// sessions. Nothing has particularly gone wrong when this is returned.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionDestroyed is returned by Start on a destroyed Handle.
var ErrSessionDestroyed = errors.New("session already destroyed")

// ErrNotStarted is returned by Destroy on a Handle that was never started.
var ErrNotStarted = errors.New("session not started")

// A Store persists session maps between requests.
//
// Since stores may be on the network, in a DB, etc., any operation can
// fail with an error worth logging. Load must return ErrSessionNotFound
// for sessions that don't exist or have expired; callers do not track
// expiry themselves. Delete of an absent session is not an error.
type Store interface {
	Load(ctx context.Context, id SessionID) (map[string]any, error)
	Save(ctx context.Context, id SessionID, values map[string]any) error
	Delete(ctx context.Context, id SessionID) error

	// RegenerateID moves the session's contents under a freshly minted
	// ID and removes the old entry.
	RegenerateID(ctx context.Context, id SessionID) (SessionID, error)
}

// A CookieSink accepts outgoing cookies. *sphyrw.Writer is one.
type CookieSink interface {
	SetCookie(*cookie.OutCookie)
}

// State is where a Handle is in its lifecycle.
type State int

const (
	NotStarted State = iota
	Active
	Released
	Destroyed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Active:
		return "active"
	case Released:
		return "released"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
