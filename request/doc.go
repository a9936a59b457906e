/*

Package request provides a read-only view of an inbound HTTP request.

A Request is a snapshot taken once per request by New, and every method on
it is a pure projection of that snapshot. Nothing in this package mutates
the snapshot, and the *http.Request it was taken from can be modified
afterwards without anything leaking in.

This package is somewhat paternalistic about trust. The method used to
obtain the Referer header is called UntrustedReferrer rather than just
Referrer, so that a programmer calling it will think twice about doing
something based on it, and failing that, a reviewer will be reminded by
the source code itself that this is not a safe thing to act on.

Missing fields

Getters for optional data return an explicit absent result: a
(string, bool) pair, or the caller's default for parameters. The scalar
getters (Method, Scheme, ProtocolVersion, Host, ServerName, ServerPort and
URI) return the empty string when the host did not populate the field.
Callers that require a conformant host should call Validate once, which
reports the first missing field as a *FieldMissingError.

*/
package request
