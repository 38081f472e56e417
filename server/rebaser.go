// Package server hosts the collaboration endpoint: a Rebaser that lands
// submitted changes onto per-document histories, a Hub that fans accepted
// changes out to connected editors, and the HTTP/WebSocket surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/okadri/richdoc/ot"
	"github.com/okadri/richdoc/store"
)

// ErrOutOfRange is returned when a submitted change starts beyond the end
// of the document's history.
var ErrOutOfRange = errors.New("change start out of range")

// Result describes how a submission landed.
type Result struct {
	// Applied is the change as appended to history. It equals the submitted
	// change when no concurrent edits intervened, otherwise the rebased
	// form. Nil on conflict.
	Applied *ot.Change
	// Parallel holds the concurrent suffix the submission was rebased over,
	// nil when the submission was already current.
	Parallel *ot.Change
	// Conflict reports that the submission could not be rebased over the
	// concurrent suffix. Applied is nil; Parallel carries the suffix the
	// submitter must catch up on.
	Conflict bool
}

type docState struct {
	mu      sync.Mutex
	history *ot.History
}

// Rebaser serializes change application per document. Changes submitted
// against a stale history position are rebased over the transactions that
// landed since; when both the submission and the concurrent suffix carry
// edits the submission is rejected as a conflict.
type Rebaser struct {
	store store.HistoryStore

	mu   sync.Mutex
	docs map[string]*docState
}

func NewRebaser(st store.HistoryStore) *Rebaser {
	return &Rebaser{
		store: st,
		docs:  make(map[string]*docState),
	}
}

// docFor returns the state for a document, loading its history from the
// store on first touch and creating the document if it does not exist yet.
func (r *Rebaser) docFor(ctx context.Context, id string) (*docState, error) {
	r.mu.Lock()
	ds, ok := r.docs[id]
	if !ok {
		ds = &docState{}
		r.docs[id] = ds
	}
	r.mu.Unlock()

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.history != nil {
		return ds, nil
	}

	if _, err := r.store.Get(ctx, id); err != nil {
		if err := r.store.Create(ctx, id); err != nil {
			return nil, fmt.Errorf("create doc %q: %w", id, err)
		}
	}
	txs, err := r.store.GetTransactions(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("load history %q: %w", id, err)
	}
	h := ot.NewHistory()
	for _, raw := range txs {
		t, err := ot.NewTransactionFromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("decode history %q: %w", id, err)
		}
		h.Append(t)
	}
	ds.history = h
	return ds, nil
}

// ApplyChange lands a change on the document's history. The change is
// rebased over any transactions appended since its start position; the
// append is atomic with respect to other submissions for the same document.
func (r *Rebaser) ApplyChange(ctx context.Context, id string, change *ot.Change) (*Result, error) {
	ds, err := r.docFor(ctx, id)
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if change.Start > ds.history.Len() {
		return nil, fmt.Errorf("%w: start %d, history length %d", ErrOutOfRange, change.Start, ds.history.Len())
	}

	parallel := ds.history.Since(change.Start)
	applied := change
	if !parallel.IsEmpty() {
		rebased, ok, err := change.RebaseOnto(parallel)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &Result{Parallel: parallel, Conflict: true}, nil
		}
		applied = rebased
	}

	// Persist before touching the in-memory history so a store failure
	// leaves both sides at the same length.
	if err := r.persist(ctx, id, applied, ds.history.Len()+applied.Len()); err != nil {
		return nil, err
	}
	if err := applied.AddToHistory(ds.history); err != nil {
		return nil, err
	}

	res := &Result{Applied: applied}
	if !parallel.IsEmpty() {
		res.Parallel = parallel
	}
	return res, nil
}

func (r *Rebaser) persist(ctx context.Context, id string, c *ot.Change, length int) error {
	raw := make([]json.RawMessage, len(c.Transactions))
	for i, t := range c.Transactions {
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		raw[i] = b
	}
	return r.store.AppendTransactions(ctx, id, raw, length)
}

// History returns the suffix of a document's history starting at from, for
// clients resyncing after a dropped connection.
func (r *Rebaser) History(ctx context.Context, id string, from int) (*ot.Change, error) {
	ds, err := r.docFor(ctx, id)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if from < 0 || from > ds.history.Len() {
		return nil, fmt.Errorf("%w: from %d, history length %d", ErrOutOfRange, from, ds.history.Len())
	}
	return ds.history.Since(from), nil
}

// Clear wipes the history of every document, in the store and in memory.
// The next submission to any document starts from an empty one.
func (r *Rebaser) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.docs = make(map[string]*docState)
	return nil
}
