package rusticdb

import "sync/atomic"

// TransactionID identifies one transaction.  Ids are handed out from a
// process-wide monotonic counter, so numeric order is age order: a
// smaller tid is an older transaction.  The lock manager's WAIT-DIE
// policy is driven entirely by this ordering.
type TransactionID uint64

var tidCounter uint64

// NewTID mints the next transaction id.
func NewTID() TransactionID {
	return TransactionID(atomic.AddUint64(&tidCounter, 1) - 1)
}
