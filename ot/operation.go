package ot

import (
	"encoding/json"
	"fmt"

	"github.com/okadri/richdoc/doc"
)

// OpType tags an operation variant. The set is closed; every consumer
// switches exhaustively over it.
type OpType string

const (
	// OpRetain copies a span of items unchanged.
	OpRetain OpType = "retain"
	// OpReplace removes one slice of items and inserts another.
	OpReplace OpType = "replace"
	// OpAttribute changes one attribute on the element at the cursor.
	OpAttribute OpType = "attribute"
	// OpAnnotate starts or stops an annotation set/clear span.
	OpAnnotate OpType = "annotate"
)

// Method selects what an annotate span does to covered content.
type Method string

const (
	MethodSet   Method = "set"
	MethodClear Method = "clear"
)

// Bias marks whether an annotate operation opens or closes its span.
type Bias string

const (
	BiasStart Bias = "start"
	BiasStop  Bias = "stop"
)

// Operation is one element of a transaction. Which fields are meaningful
// depends on Type:
//
//	retain    uses Length
//	replace   uses Remove, Insert
//	attribute uses Key, From, To
//	annotate  uses Method, Bias, Index
type Operation struct {
	Type   OpType
	Length int
	Remove []doc.Item
	Insert []doc.Item
	Key    string
	From   any
	To     any
	Method Method
	Bias   Bias
	Index  doc.Hash
}

// Retain creates a retain operation. Length must be positive.
func Retain(length int) Operation {
	return Operation{Type: OpRetain, Length: length}
}

// Replace creates a replace operation. Either side may be empty for a pure
// removal or insertion.
func Replace(remove, insert []doc.Item) Operation {
	return Operation{Type: OpReplace, Remove: remove, Insert: insert}
}

// Attribute creates an attribute-change operation.
func Attribute(key string, from, to any) Operation {
	return Operation{Type: OpAttribute, Key: key, From: from, To: to}
}

// Annotate creates an annotate span marker.
func Annotate(method Method, bias Bias, index doc.Hash) Operation {
	return Operation{Type: OpAnnotate, Method: method, Bias: bias, Index: index}
}

// ConsumedLength returns how many input items the operation consumes.
func (op Operation) ConsumedLength() int {
	switch op.Type {
	case OpRetain:
		return op.Length
	case OpReplace:
		return len(op.Remove)
	}
	return 0
}

// ProducedLength returns how many output items the operation produces.
func (op Operation) ProducedLength() int {
	switch op.Type {
	case OpRetain:
		return op.Length
	case OpReplace:
		return len(op.Insert)
	}
	return 0
}

type wireOperation struct {
	Type   OpType     `json:"type"`
	Length int        `json:"length,omitempty"`
	Remove []doc.Item `json:"remove,omitempty"`
	Insert []doc.Item `json:"insert,omitempty"`
	Key    string     `json:"key,omitempty"`
	From   any        `json:"from,omitempty"`
	To     any        `json:"to,omitempty"`
	Method Method     `json:"method,omitempty"`
	Bias   Bias       `json:"bias,omitempty"`
	Index  doc.Hash   `json:"index,omitempty"`
}

// MarshalJSON encodes the operation as a tagged wire object.
func (op Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Type: op.Type}
	switch op.Type {
	case OpRetain:
		w.Length = op.Length
	case OpReplace:
		// Empty sides must survive the round trip; omitempty would drop
		// them, so marshal the replace shape explicitly.
		return json.Marshal(map[string]any{
			"type":   op.Type,
			"remove": nonNil(op.Remove),
			"insert": nonNil(op.Insert),
		})
	case OpAttribute:
		w.Key = op.Key
		w.From = op.From
		w.To = op.To
	case OpAnnotate:
		w.Method = op.Method
		w.Bias = op.Bias
		w.Index = op.Index
	default:
		return nil, fmt.Errorf("operation type %q: %w", op.Type, ErrUnsupportedOperation)
	}
	return json.Marshal(w)
}

func nonNil(items []doc.Item) []doc.Item {
	if items == nil {
		return []doc.Item{}
	}
	return items
}

// UnmarshalJSON decodes a tagged wire object. Legacy metadata operation
// kinds are rejected with ErrUnsupportedOperation.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case OpRetain:
		if w.Length <= 0 {
			return fmt.Errorf("retain length %d must be positive", w.Length)
		}
		*op = Retain(w.Length)
	case OpReplace:
		*op = Replace(w.Remove, w.Insert)
	case OpAttribute:
		*op = Attribute(w.Key, w.From, w.To)
	case OpAnnotate:
		if w.Method != MethodSet && w.Method != MethodClear {
			return fmt.Errorf("annotate method %q unknown", w.Method)
		}
		if w.Bias != BiasStart && w.Bias != BiasStop {
			return fmt.Errorf("annotate bias %q unknown", w.Bias)
		}
		*op = Annotate(w.Method, w.Bias, w.Index)
	case "retainMetadata", "replaceMetadata":
		return fmt.Errorf("metadata operation %q: %w", w.Type, ErrUnsupportedOperation)
	default:
		return fmt.Errorf("operation type %q: %w", w.Type, ErrUnsupportedOperation)
	}
	return nil
}
