package firmware

import (
	"log"
	"time"

	"sensorhub/store"
)

// Reaper purges soft-deleted production firmware once its grace window
// has lapsed. Operators see the window as "restorable for N days"; the
// reaper is what makes the N days real.
type Reaper struct {
	db        *store.DB
	mgr       *Manager
	retention time.Duration
	interval  time.Duration
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewReaper(db *store.DB, mgr *Manager, retentionDays int, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{
		db:        db,
		mgr:       mgr,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	go r.run()
}

func (r *Reaper) run() {
	defer close(r.doneChan)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sweep()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopChan:
			return
		}
	}
}

// Sweep hard-deletes every soft-deleted row older than the retention
// window. Failures on one row don't stop the rest.
func (r *Reaper) Sweep() {
	cutoff := time.Now().Add(-r.retention)
	expired, err := r.db.ListExpiredSoftDeleted(cutoff)
	if err != nil {
		log.Printf("firmware: reaper list expired: %v", err)
		return
	}
	for _, f := range expired {
		if err := r.mgr.HardDelete(f.ID, "reaper"); err != nil {
			log.Printf("firmware: reap %d: %v", f.ID, err)
			continue
		}
		log.Printf("firmware: reaped firmware %d (version %s, deleted %s)",
			f.ID, f.Version, f.DeletedAt.Format("2006-01-02"))
	}
}

func (r *Reaper) Stop() {
	close(r.stopChan)
	<-r.doneChan
}
