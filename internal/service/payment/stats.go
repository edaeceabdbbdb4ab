package payment

import "sync/atomic"

type counters struct {
	initiated   atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	expired     atomic.Int64
	duplicates  atomic.Int64
	settlements atomic.Int64
}

// Stats is a point-in-time copy of the coordinator counters. Failed includes
// expired payments.
type Stats struct {
	Live                  int   `json:"live"`
	Initiated             int64 `json:"initiated"`
	Completed             int64 `json:"completed"`
	Failed                int64 `json:"failed"`
	Expired               int64 `json:"expired"`
	DuplicateConfirmation int64 `json:"duplicateConfirmations"`
	SettlementCalls       int64 `json:"settlementCalls"`
}

// Stats snapshots the counters.
func (s *Service) Stats() Stats {
	return Stats{
		Live:                  s.store.Len(),
		Initiated:             s.stats.initiated.Load(),
		Completed:             s.stats.completed.Load(),
		Failed:                s.stats.failed.Load(),
		Expired:               s.stats.expired.Load(),
		DuplicateConfirmation: s.stats.duplicates.Load(),
		SettlementCalls:       s.stats.settlements.Load(),
	}
}
