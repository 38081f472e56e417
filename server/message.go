package server

import (
	"encoding/json"
)

// Message types exchanged over WebSocket.
const (
	MsgSubmitChange   = "submitChange"
	MsgNewChange      = "newChange"
	MsgReceivedChange = "receivedChange"
	MsgError          = "error"
)

// ClientMessage is a message from client to server.
type ClientMessage struct {
	Type   string          `json:"type"`
	Doc    string          `json:"doc,omitempty"`
	Author string          `json:"author,omitempty"`
	Change json.RawMessage `json:"change,omitempty"`
	Clear  bool            `json:"clear,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type   string          `json:"type"`
	Doc    string          `json:"doc,omitempty"`
	Author string          `json:"author,omitempty"`
	Change json.RawMessage `json:"change,omitempty"`
	// Applied accompanies receivedChange: the submitted change as it
	// landed on the history, or false when it was rejected as a conflict.
	Applied json.RawMessage `json:"applied,omitempty"`
	// Parallel accompanies receivedChange when concurrent edits landed
	// first: the suffix the sender must catch up on.
	Parallel json.RawMessage `json:"parallel,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
