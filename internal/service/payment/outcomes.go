package payment

import (
	"sync"
	"time"

	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
)

// outcomeLog remembers how recently removed payments ended, keyed by every
// correlation id of the payment. A zero retention disables it.
type outcomeLog struct {
	mu        sync.Mutex
	retention time.Duration
	items     map[string]outcomeEntry
}

type outcomeEntry struct {
	status payment.Status
	at     time.Time
}

func newOutcomeLog(retention time.Duration) *outcomeLog {
	return &outcomeLog{retention: retention, items: make(map[string]outcomeEntry)}
}

func (o *outcomeLog) remember(id string, status payment.Status, at time.Time) {
	if o.retention <= 0 {
		return
	}
	o.mu.Lock()
	o.items[id] = outcomeEntry{status: status, at: at}
	o.mu.Unlock()
}

func (o *outcomeLog) lookup(id string, now time.Time) (payment.Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.items[id]
	if !ok || now.Sub(entry.at) > o.retention {
		return "", false
	}
	return entry.status, true
}

func (o *outcomeLog) prune(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	pruned := 0
	for id, entry := range o.items {
		if now.Sub(entry.at) > o.retention {
			delete(o.items, id)
			pruned++
		}
	}
	return pruned
}
