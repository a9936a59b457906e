/*

Package sphyrw implements the response writer that owns cookie emission.

Writer is a superset of http.ResponseWriter. Cookies set through it are
queued by name and only rendered into Set-Cookie headers when the response
header is written, so that the last instruction for a given name wins: a
session that is regenerated and then destroyed within one request sends
the client exactly one Set-Cookie for the session cookie, the deletion.

*/
package sphyrw

import (
	"bufio"
	"errors"
	"net"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/satori-http/satori/sphyrw/cookie"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrCantHijack is returned by Hijack when the wrapped writer can't.
var ErrCantHijack = errors.New("underlying ResponseWriter has no Hijacking support")

// Writer wraps an http.ResponseWriter.
type Writer struct {
	outCookies       map[string]*cookie.OutCookie
	order            []string
	underlyingWriter http.ResponseWriter
	logger           *zap.Logger
	responseWritten  bool
	finished         bool
}

// New creates a new Writer around the given ResponseWriter. A nil logger
// discards cookie rendering failures.
func New(rw http.ResponseWriter, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		outCookies:       map[string]*cookie.OutCookie{},
		underlyingWriter: rw,
		logger:           logger,
	}
}

// Header returns the header map of the wrapped writer.
func (w *Writer) Header() http.Header {
	if w.finished {
		panic("Can't call Header on a Finished sphyrw.Writer")
	}
	return w.underlyingWriter.Header()
}

// Hijack exposes the hijacking functionality of the underlying response
// writer, if any.
func (w *Writer) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, isHijacker := w.underlyingWriter.(http.Hijacker)
	if !isHijacker {
		return nil, nil, ErrCantHijack
	}

	return hijacker.Hijack()
}

func (w *Writer) Write(b []byte) (int, error) {
	if w.finished {
		panic("Can't call Write on a Finished sphyrw.Writer")
	}
	if !w.responseWritten {
		w.writeResponse()
	}
	return w.underlyingWriter.Write(b)
}

// WriteHeader flushes queued cookies and writes the status code.
func (w *Writer) WriteHeader(code int) {
	if w.finished {
		panic("Can't call WriteHeader on a Finished sphyrw.Writer")
	}
	if !w.responseWritten {
		w.writeResponse()
	}
	w.underlyingWriter.WriteHeader(code)
}

// SetCookie queues the cookie, replacing any earlier cookie of the same
// name. Cookies set after the header has gone out are dropped with a
// warning.
func (w *Writer) SetCookie(c *cookie.OutCookie) {
	if w.finished {
		panic("Can't call SetCookie on a Finished sphyrw.Writer")
	}
	if w.responseWritten {
		w.logger.Warn("cookie set after response header was written",
			zap.String("cookie", c.Name()))
		return
	}
	if _, have := w.outCookies[c.Name()]; !have {
		w.order = append(w.order, c.Name())
	}
	w.outCookies[c.Name()] = c
}

// PendingCookie returns the cookie queued under the given name, if any.
func (w *Writer) PendingCookie(name string) *cookie.OutCookie {
	return w.outCookies[name]
}

func (w *Writer) writeResponse() {
	header := w.underlyingWriter.Header()
	for _, name := range w.order {
		rendered, err := w.outCookies[name].Render()
		if err != nil {
			w.logger.Error("couldn't render cookie",
				zap.String("cookie", name), zap.Error(err))
			continue
		}
		header.Add("Set-Cookie", rendered)
	}

	w.responseWritten = true
}

// WriteJSON emits val as a JSON body.
func (w *Writer) WriteJSON(val interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(val)
}

// Finish completes the response, flushing any queued cookies if nothing
// has been written yet.
//
// Once Finish is called, calling any of the other methods of the Writer
// panics, as it can only be a serious error in logic. Finish itself may be
// called repeatedly.
func (w *Writer) Finish() {
	if w.finished {
		return
	}

	if !w.responseWritten {
		w.writeResponse()
	}

	w.finished = true
}
