// Package wire frames messages on the inherited helper socket.
//
// The protocol is deliberately small: fixed-width native-endian integers,
// one message per datagram, and a single SCM_RIGHTS control entry on open
// replies that grant a descriptor. Send and receive retry transparently on
// EINTR; every other I/O failure propagates to the caller.
//
// Control-message parsing lives behind ExtractFD so that higher layers
// never touch raw ancillary buffers. A reply without a control message, a
// malformed control entry, and the helper's "declined" sentinel are three
// distinct failures.
package wire
