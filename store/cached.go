package store

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// dirtyState tracks what needs flushing for a single document.
type dirtyState struct {
	flushedTxs int  // number of transactions already flushed to backing
	created    bool // doc created locally but not yet in backing store
}

// CachedStore wraps a backing HistoryStore with an in-memory cache. All
// reads and writes are served from the cache; dirty documents are flushed
// to the backing store periodically in the background.
type CachedStore struct {
	cache         *MemoryStore
	backing       HistoryStore
	mu            sync.Mutex
	dirty         map[string]*dirtyState
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// NewCachedStore creates a CachedStore that caches in memory and flushes
// dirty documents to the backing store every flushInterval.
func NewCachedStore(backing HistoryStore, flushInterval time.Duration) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		dirty:         make(map[string]*dirtyState),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(ctx context.Context, id string) error {
	if err := cs.cache.Create(ctx, id); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.dirty[id] = &dirtyState{created: true}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	info, err := cs.cache.Get(ctx, id)
	if err == nil {
		return info, nil
	}
	// Cache miss, load from the backing store.
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Get(ctx, id)
}

func (cs *CachedStore) List(ctx context.Context) ([]DocumentInfo, error) {
	return cs.backing.List(ctx)
}

func (cs *CachedStore) AppendTransactions(ctx context.Context, id string, txs []json.RawMessage, length int) error {
	// Ensure the doc is in cache.
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}

	// Snapshot history length before append so we know how many transactions
	// were already flushed if this doc was previously clean.
	prev, err := cs.cache.GetTransactions(ctx, id, 0)
	if err != nil {
		return err
	}
	if err := cs.cache.AppendTransactions(ctx, id, txs, length); err != nil {
		return err
	}

	cs.mu.Lock()
	if cs.dirty[id] == nil {
		cs.dirty[id] = &dirtyState{flushedTxs: len(prev)}
	}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) GetTransactions(ctx context.Context, id string, from int) ([]json.RawMessage, error) {
	if _, err := cs.Get(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.GetTransactions(ctx, id, from)
}

func (cs *CachedStore) Clear(ctx context.Context) error {
	cs.mu.Lock()
	cs.dirty = make(map[string]*dirtyState)
	cs.mu.Unlock()
	if err := cs.cache.Clear(ctx); err != nil {
		return err
	}
	return cs.backing.Clear(ctx)
}

// loadFromBacking populates the cache for one document from the backing
// store. Everything loaded counts as already flushed.
func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return err
	}
	txs, err := cs.backing.GetTransactions(ctx, id, 0)
	if err != nil {
		return err
	}
	if err := cs.cache.Create(ctx, id); err != nil {
		return err
	}
	return cs.cache.AppendTransactions(ctx, id, txs, info.Length)
}

func (cs *CachedStore) flushLoop() {
	defer close(cs.done)
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cs.Flush(context.Background())
		case <-cs.stop:
			cs.Flush(context.Background())
			return
		}
	}
}

// Flush writes all dirty documents to the backing store. Documents that
// flush cleanly are removed from the dirty set; failures stay dirty and are
// retried on the next interval.
func (cs *CachedStore) Flush(ctx context.Context) {
	cs.mu.Lock()
	pending := make(map[string]*dirtyState, len(cs.dirty))
	for id, ds := range cs.dirty {
		pending[id] = ds
	}
	cs.mu.Unlock()

	for id, ds := range pending {
		if err := cs.flushDoc(ctx, id, ds); err != nil {
			log.Printf("store: flush %q: %v", id, err)
		}
	}
}

func (cs *CachedStore) flushDoc(ctx context.Context, id string, ds *dirtyState) error {
	info, err := cs.cache.Get(ctx, id)
	if err != nil {
		return err
	}
	if ds.created {
		if err := cs.backing.Create(ctx, id); err != nil {
			return err
		}
		ds.created = false
	}
	txs, err := cs.cache.GetTransactions(ctx, id, ds.flushedTxs)
	if err != nil {
		return err
	}
	if len(txs) > 0 {
		if err := cs.backing.AppendTransactions(ctx, id, txs, info.Length); err != nil {
			return err
		}
		ds.flushedTxs += len(txs)
	}

	cs.mu.Lock()
	// New appends may have arrived while flushing; only drop the dirty
	// entry if nothing is pending.
	current, _ := cs.cache.GetTransactions(ctx, id, 0)
	if ds.flushedTxs >= len(current) && !ds.created {
		delete(cs.dirty, id)
	}
	cs.mu.Unlock()
	return nil
}

// Close flushes remaining dirty state and stops the background loop.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}
