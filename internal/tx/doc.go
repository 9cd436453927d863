// Package tx defines the transaction record relayed by txrelay.
//
// A Record is an opaque ledger payload plus the metadata the relay needs to
// sequence it: a lifecycle Status, a dispatch Priority (smaller is more
// urgent) and the set of transaction ids that must be satisfied before the
// record may be dispatched.
//
// # Lifecycle
//
//	pending -> validated -> propagated
//	   \           \
//	    +-----------+--> failed
//
// Only the dispatch pipeline moves a record along these edges. A record is
// never deleted.
package tx
