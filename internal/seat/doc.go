// Package seat holds the host-side session state the launcher client
// drives.
//
// A Seat carries the session-active flag and broadcasts every change to
// subscribed listeners. The flag is the source of truth for whether this
// display server currently owns the VT; the session client only flips it.
package seat
