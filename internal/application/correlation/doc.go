// Package correlation decouples "a reply arrived on some side channel"
// from "some caller is awaiting that reply".
//
// The tracker hands out tickets keyed by a fresh correlation id. A caller
// suspends on the ticket; whoever receives the out-of-band reply resolves
// or rejects the id. A per-ticket timer and a periodic sweep bound how
// long a ticket can stay open, and a pending-ticket cap bounds memory.
package correlation
