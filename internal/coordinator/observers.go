package coordinator

import (
	"sync"

	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// Observers fans notifications out to every registered observer in
// registration order. The zero value is ready to use, and observers may be
// added after the coordinator has started.
type Observers struct {
	mu   sync.RWMutex
	list []Observer
}

// Add registers obs. Nil observers are ignored.
func (o *Observers) Add(obs Observer) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	o.list = append(o.list, obs)
	o.mu.Unlock()
}

func (o *Observers) snapshot() []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.list
}

// SnapshotFetched implements Observer.
func (o *Observers) SnapshotFetched(device Target, snap *melcloud.Snapshot) {
	for _, obs := range o.snapshot() {
		obs.SnapshotFetched(device, snap)
	}
}

// WriteCompleted implements Observer.
func (o *Observers) WriteCompleted(rec WriteRecord) {
	for _, obs := range o.snapshot() {
		obs.WriteCompleted(rec)
	}
}

// ObserverFuncs adapts plain functions to Observer. Either may be nil.
type ObserverFuncs struct {
	OnSnapshot func(device Target, snap *melcloud.Snapshot)
	OnWrite    func(rec WriteRecord)
}

// SnapshotFetched implements Observer.
func (f ObserverFuncs) SnapshotFetched(device Target, snap *melcloud.Snapshot) {
	if f.OnSnapshot != nil {
		f.OnSnapshot(device, snap)
	}
}

// WriteCompleted implements Observer.
func (f ObserverFuncs) WriteCompleted(rec WriteRecord) {
	if f.OnWrite != nil {
		f.OnWrite(rec)
	}
}
