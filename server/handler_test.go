package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okadri/richdoc/ot"
	"github.com/okadri/richdoc/store"
)

func postApplyChange(t *testing.T, h http.Handler, body any) applyChangeResponse {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/applyChange", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp applyChangeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func marshalChange(t *testing.T, c *ot.Change) json.RawMessage {
	t.Helper()
	raw, err := c.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestHandleApplyChange(t *testing.T) {
	h := NewHandler(NewRebaser(store.NewMemoryStore()), nil)

	c := ot.NewChange(0, ot.NewFromDocumentInsertion(emptyDoc(), 0, paraDoc("hi"), nil))
	resp := postApplyChange(t, h, applyChangeRequest{Doc: "doc1", Change: marshalChange(t, c)})
	if resp.Error != "" {
		t.Fatalf("error = %q", resp.Error)
	}
	applied, err := ot.NewChangeFromJSON(resp.Change)
	if err != nil {
		t.Fatal(err)
	}
	if applied.Start != 0 || applied.Len() != 1 {
		t.Errorf("applied = start %d len %d", applied.Start, applied.Len())
	}

	// A conflicting parallel submission comes back as an error payload,
	// still with a 200 status.
	c2 := ot.NewChange(0, ot.NewFromDocumentInsertion(emptyDoc(), 0, paraDoc("yo"), nil))
	resp = postApplyChange(t, h, applyChangeRequest{Doc: "doc1", Change: marshalChange(t, c2)})
	if resp.Error != "conflict" {
		t.Errorf("error = %q, want %q", resp.Error, "conflict")
	}
	if resp.Change != nil {
		t.Errorf("change = %s, want none on conflict", resp.Change)
	}
}

func TestHandleApplyChangeRejectsBadRequests(t *testing.T) {
	h := NewHandler(NewRebaser(store.NewMemoryStore()), nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing doc", applyChangeRequest{Change: json.RawMessage(`{"start":0,"transactions":[]}`)}},
		{"malformed change", applyChangeRequest{Doc: "doc1", Change: json.RawMessage(`{"start":"x"}`)}},
		{"out of range", applyChangeRequest{Doc: "doc1", Change: json.RawMessage(`{"start":9,"transactions":[]}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := postApplyChange(t, h, tt.body); resp.Error == "" {
				t.Error("expected an error payload")
			}
		})
	}
}

func TestHandleApplyChangeClear(t *testing.T) {
	rebaser := NewRebaser(store.NewMemoryStore())
	h := NewHandler(rebaser, nil)

	c := ot.NewChange(0, ot.NewFromDocumentInsertion(emptyDoc(), 0, paraDoc("hi"), nil))
	for _, id := range []string{"doc1", "doc2"} {
		if resp := postApplyChange(t, h, applyChangeRequest{Doc: id, Change: marshalChange(t, c)}); resp.Error != "" {
			t.Fatalf("seed %s error = %q", id, resp.Error)
		}
	}

	// With clear set, every history is wiped and the change anchored at
	// zero lands fresh instead of conflicting.
	c2 := ot.NewChange(0, ot.NewFromDocumentInsertion(emptyDoc(), 0, paraDoc("yo"), nil))
	resp := postApplyChange(t, h, applyChangeRequest{Doc: "doc1", Change: marshalChange(t, c2), Clear: true})
	if resp.Error != "" {
		t.Fatalf("error = %q", resp.Error)
	}

	hist, err := rebaser.History(context.Background(), "doc1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if hist.Len() != 1 {
		t.Errorf("doc1 history length = %d, want 1 after clear", hist.Len())
	}
	hist, err = rebaser.History(context.Background(), "doc2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !hist.IsEmpty() {
		t.Errorf("doc2 history length = %d, want 0 after clear", hist.Len())
	}
}

func TestHandleHistory(t *testing.T) {
	rebaser := NewRebaser(store.NewMemoryStore())
	h := NewHandler(rebaser, nil)

	c := ot.NewChange(0, ot.NewFromDocumentInsertion(emptyDoc(), 0, paraDoc("hi"), nil))
	if resp := postApplyChange(t, h, applyChangeRequest{Doc: "doc1", Change: marshalChange(t, c)}); resp.Error != "" {
		t.Fatalf("seed error = %q", resp.Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/history/doc1?from=0", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	hist, err := ot.NewChangeFromJSON(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if hist.Start != 0 || hist.Len() != 1 {
		t.Errorf("history = start %d len %d", hist.Start, hist.Len())
	}

	// The suffix past the tip is empty but valid.
	req = httptest.NewRequest(http.MethodGet, "/history/doc1?from=1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	hist, err = ot.NewChangeFromJSON(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if hist.Start != 1 || !hist.IsEmpty() {
		t.Errorf("tip suffix = start %d len %d", hist.Start, hist.Len())
	}
}

func TestHandleHistoryRejectsBadFrom(t *testing.T) {
	h := NewHandler(NewRebaser(store.NewMemoryStore()), nil)

	for _, from := range []string{"x", "-1", "99"} {
		req := httptest.NewRequest(http.MethodGet, "/history/doc1?from="+from, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("from=%s: status = %d, want 400", from, rec.Code)
		}
	}
}
