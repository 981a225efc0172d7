// Package session implements the client side of the legate helper
// protocol.
//
// The display server runs unprivileged; a trusted helper process opens
// device nodes and manages VT ownership on its behalf. Both ends share a
// single inherited socket that carries two kinds of traffic: synchronous
// open requests answered by replies with an attached descriptor, and
// unsolicited activate/deactivate notifications pushed whenever the VT is
// switched. A notification can arrive while Open is blocked waiting for
// its reply; the client records it, schedules deferred delivery through
// the event loop's idle queue, and keeps waiting, so the notification is
// handled exactly once and in order without disturbing the reply.
//
// Everything runs on the event loop goroutine. The only blocking points
// are the receives inside Open, which the helper protocol bounds with a
// prompt reply.
package session
