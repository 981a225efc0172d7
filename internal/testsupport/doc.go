// Package testsupport provides shared helpers for legate tests: a config
// builder seeded with per-test temp directories, and socketpair plumbing
// for tests that stand in for the privileged helper end of the session
// socket.
package testsupport
