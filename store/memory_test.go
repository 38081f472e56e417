package store

import (
	"context"
	"encoding/json"
	"testing"
)

func rawTxs(bodies ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(bodies))
	for i, b := range bodies {
		out[i] = json.RawMessage(b)
	}
	return out
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Create(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, "doc1"); err == nil {
		t.Error("duplicate create should fail")
	}

	info, err := s.Get(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "doc1" || info.Length != 0 || info.CreatedAt.IsZero() {
		t.Errorf("info = %+v", info)
	}

	if _, err := s.Get(ctx, "missing"); err == nil {
		t.Error("get of missing document should fail")
	}

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "doc1" {
		t.Errorf("list = %+v", docs)
	}
}

func TestMemoryStoreTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Create(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}

	if err := s.AppendTransactions(ctx, "doc1", rawTxs(`[1]`, `[2]`), 2); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendTransactions(ctx, "doc1", rawTxs(`[3]`), 3); err != nil {
		t.Fatal(err)
	}

	info, err := s.Get(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Length != 3 {
		t.Errorf("length = %d, want 3", info.Length)
	}

	txs, err := s.GetTransactions(ctx, "doc1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || string(txs[0]) != `[2]` || string(txs[1]) != `[3]` {
		t.Errorf("transactions from 1 = %v", txs)
	}

	if _, err := s.GetTransactions(ctx, "doc1", 4); err == nil {
		t.Error("out-of-range position should fail")
	}
	if _, err := s.GetTransactions(ctx, "doc1", -1); err == nil {
		t.Error("negative position should fail")
	}
	if err := s.AppendTransactions(ctx, "missing", rawTxs(`[1]`), 1); err == nil {
		t.Error("append to missing document should fail")
	}
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Create(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "doc1"); err == nil {
		t.Error("document survived clear")
	}
	if docs, _ := s.List(ctx); len(docs) != 0 {
		t.Errorf("list after clear = %+v", docs)
	}
}
