// Package pipeline implements the dispatch loop that drains ready
// transactions from the store and hands them to the peer network.
//
// Each pass of a worker does at most one unit of work on the best-ranked
// ready record, pending or validated alike:
//
//  1. pending: run the Validator; validated or failed.
//  2. validated: broadcast it; propagated on success, failed on a permanent
//     error or once the retry budget is spent. A transient failure leaves
//     the status alone, so the record competes again on the next pass.
//  3. nothing ready: wait PollInterval, or until Notify is called.
//
// Status changes are compare-and-swap updates against the status the record
// was selected in, so a record is never moved twice. With Workers > 1
// selection switches to Store.ClaimIn, which marks the chosen row under a
// lease so that two workers never broadcast the same record.
//
// Status is always re-derived from the store. Transient attempt counts are
// the only in-memory state and are lost on restart, which only grants a
// fresh retry budget.
package pipeline
