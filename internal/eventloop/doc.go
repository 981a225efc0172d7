// Package eventloop runs a single-threaded poll(2) dispatch loop.
//
// Callers register file-descriptor sources with a callback that receives a
// readiness mask, and one-shot idle tasks that run before the next poll.
// That ordering is load-bearing for the session client: a deactivation
// deferred during a synchronous open must be delivered before any newly
// arrived socket data is read.
//
// All callbacks execute on the goroutine that calls Run or Dispatch, so
// state they touch needs no locking. Wake is safe from any goroutine and
// interrupts a blocking poll via a self-pipe.
package eventloop
