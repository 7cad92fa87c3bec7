// Package performance contains the moving parts shared by every load
// generator strategy: the admission gate bounding in-flight work, the canal
// sender tasks use to hand back their permit and report failures, the
// resizable worker pool, and the sender task itself.
//
// # Architecture
//
// The generator (package executor) runs a single admission loop:
//
//	gate.TryAdmit -> factory.NewTask(canal.Ticket()) -> pool.Submit
//
// Every admitted task owns exactly one permit and one ticket. The task
// returns the permit through its ticket when it finishes, whether it
// succeeded, failed or panicked. Tasks the pool drops during a forced
// shutdown return their permit through Discard.
//
// Failures travel the other way through the canal: with fail-fast enabled
// the first failure closes the canal's abort channel and the admission loop
// stops admitting on its next tick.
package performance
