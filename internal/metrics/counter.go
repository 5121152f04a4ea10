package metrics

import (
	"log"
	"sync"
)

// recorder owns the process-wide store. The first Open wins; later calls
// return the first result.
type recorder struct {
	mu     sync.RWMutex
	store  *Store
	err    error
	opened bool
}

var global recorder

func (r *recorder) open(dbPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opened {
		return r.err
	}
	r.opened = true

	if dbPath == "" {
		r.store, r.err = NewStore()
	} else {
		r.store, r.err = NewStoreWithPath(dbPath)
	}
	if r.err != nil {
		log.Printf("metrics: failed to initialize store: %v", r.err)
	}
	return r.err
}

func (r *recorder) current() *Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

func (r *recorder) replace(store *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil && r.store != store {
		_ = r.store.Close()
	}
	r.store = store
	r.err = nil
	r.opened = store != nil
}

// Init opens the global store. An empty dbPath selects DefaultDBPath.
func Init(dbPath string) error {
	return global.open(dbPath)
}

// RecordInvocation increments today's count for mode, opening the default
// store on first use. Failures are logged and never reach the caller.
func RecordInvocation(mode Mode) {
	store := global.current()
	if store == nil {
		if err := Init(""); err != nil {
			log.Printf("metrics: cannot record %s invocation: %v", mode, err)
			return
		}
		if store = global.current(); store == nil {
			return
		}
	}

	if err := store.Increment(mode); err != nil {
		log.Printf("metrics: failed to record invocation for %s: %v", mode, err)
	}
}

// GetStats returns cumulative counts for every mode, or nil when no store
// is open.
func GetStats() map[Mode]int64 {
	store := global.current()
	if store == nil {
		return nil
	}

	stats, err := store.GetAllTotals()
	if err != nil {
		log.Printf("metrics: failed to get stats: %v", err)
		return nil
	}
	return stats
}

// GetTodayStats returns today's count per mode, or nil when no store is open.
func GetTodayStats() map[Mode]int64 {
	store := global.current()
	if store == nil {
		return nil
	}

	today := store.today()
	stats := make(map[Mode]int64, len(Modes))
	for _, mode := range Modes {
		count, err := store.GetCountByDate(mode, today)
		if err != nil {
			log.Printf("metrics: failed to get today's count for %s: %v", mode, err)
			return nil
		}
		stats[mode] = count
	}
	return stats
}

// GetTotalForMode returns the cumulative count for mode, 0 on any failure.
func GetTotalForMode(mode Mode) int64 {
	store := global.current()
	if store == nil {
		return 0
	}

	total, err := store.GetTotalByMode(mode)
	if err != nil {
		log.Printf("metrics: failed to get total for %s: %v", mode, err)
		return 0
	}
	return total
}

// Close closes the global store. A later Init may open it again.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()
	store := global.store
	global.store, global.err, global.opened = nil, nil, false
	if store == nil {
		return nil
	}
	return store.Close()
}

// GetStore returns the global store, nil before Init.
func GetStore() *Store {
	return global.current()
}

// SetStoreForTesting installs store as the global store.
func SetStoreForTesting(store *Store) {
	global.replace(store)
}

// ResetForTesting closes and forgets the global store.
func ResetForTesting() {
	_ = Close()
}
