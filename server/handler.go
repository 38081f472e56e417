package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/okadri/richdoc/ot"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type applyChangeRequest struct {
	Doc    string          `json:"doc"`
	Author string          `json:"author,omitempty"`
	Change json.RawMessage `json:"change"`
	Clear  bool            `json:"clear,omitempty"`
}

type applyChangeResponse struct {
	Change json.RawMessage `json:"change,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewHandler creates the HTTP handler with all routes.
func NewHandler(rebaser *Rebaser, hub *Hub) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/applyChange", func(w http.ResponseWriter, req *http.Request) {
		handleApplyChange(rebaser, hub, w, req)
	}).Methods(http.MethodPost)

	r.HandleFunc("/history/{doc}", func(w http.ResponseWriter, req *http.Request) {
		handleHistory(rebaser, w, req)
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}
		client := newClient(hub, conn)
		hub.register <- client
		go client.WritePump()
		go client.ReadPump()
	})

	return r
}

// handleApplyChange lands a change submitted over plain HTTP. The response
// is always 200: either {"change": ...} with the change as applied, or
// {"error": ...} describing why it was not.
func handleApplyChange(rebaser *Rebaser, hub *Hub, w http.ResponseWriter, req *http.Request) {
	var body applyChangeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeApplyResponse(w, applyChangeResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if body.Doc == "" {
		writeApplyResponse(w, applyChangeResponse{Error: "missing doc"})
		return
	}

	ctx := req.Context()
	if body.Clear {
		if err := rebaser.Clear(ctx); err != nil {
			writeApplyResponse(w, applyChangeResponse{Error: err.Error()})
			return
		}
	}

	change, err := ot.NewChangeFromJSON(body.Change)
	if err != nil {
		writeApplyResponse(w, applyChangeResponse{Error: "invalid change: " + err.Error()})
		return
	}

	res, err := rebaser.ApplyChange(ctx, body.Doc, change)
	if err != nil {
		writeApplyResponse(w, applyChangeResponse{Error: err.Error()})
		return
	}
	if res.Conflict {
		writeApplyResponse(w, applyChangeResponse{Error: "conflict"})
		return
	}

	applied, err := res.Applied.Marshal()
	if err != nil {
		writeApplyResponse(w, applyChangeResponse{Error: err.Error()})
		return
	}
	if hub != nil {
		hub.Announce(ctx, body.Doc, body.Author, applied)
	}
	writeApplyResponse(w, applyChangeResponse{Change: applied})
}

func writeApplyResponse(w http.ResponseWriter, resp applyChangeResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleHistory returns the history suffix starting at ?from=N, for clients
// resyncing after a dropped connection.
func handleHistory(rebaser *Rebaser, w http.ResponseWriter, req *http.Request) {
	doc := mux.Vars(req)["doc"]

	from := 0
	if v := req.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = n
	}

	change, err := rebaser.History(req.Context(), doc, from)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := change.Marshal()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
