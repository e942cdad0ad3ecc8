package grid

import (
	"encoding/json"
	"fmt"
)

// ChangeKind tags which variant a Change record carries.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "Add"
	ChangeRemove ChangeKind = "Remove"
	ChangeMove   ChangeKind = "Move"
)

// Change is a tagged record of one mutation applied to a grid engine.
// Value is populated for Add/Remove; OldValue/NewValue for Move.
type Change struct {
	Kind     ChangeKind
	Value    Node
	OldValue Node
	NewValue Node
}

func NewAdd(n Node) Change    { return Change{Kind: ChangeAdd, Value: n} }
func NewRemove(n Node) Change { return Change{Kind: ChangeRemove, Value: n} }
func NewMove(old, new Node) Change {
	return Change{Kind: ChangeMove, OldValue: old, NewValue: new}
}

// changeWire is the externally-tagged wire shape: {"type": ..., "value": ...}.
type changeWire struct {
	Type  ChangeKind      `json:"type"`
	Value json.RawMessage `json:"value"`
}

type moveValue struct {
	OldValue Node `json:"old_value"`
	NewValue Node `json:"new_value"`
}

func (c Change) MarshalJSON() ([]byte, error) {
	var value any
	switch c.Kind {
	case ChangeAdd, ChangeRemove:
		value = c.Value
	case ChangeMove:
		value = moveValue{OldValue: c.OldValue, NewValue: c.NewValue}
	default:
		return nil, fmt.Errorf("marshal change: unknown kind %q: %w", c.Kind, ErrMalformed)
	}
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal change value: %w", err)
	}
	return json.Marshal(changeWire{Type: c.Kind, Value: valueBytes})
}

func (c *Change) UnmarshalJSON(data []byte) error {
	var w changeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal change: %w: %v", ErrMalformed, err)
	}
	switch w.Type {
	case ChangeAdd, ChangeRemove:
		var n Node
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return fmt.Errorf("unmarshal change value: %w: %v", ErrMalformed, err)
		}
		c.Kind = w.Type
		c.Value = n
	case ChangeMove:
		var mv moveValue
		if err := json.Unmarshal(w.Value, &mv); err != nil {
			return fmt.Errorf("unmarshal move value: %w: %v", ErrMalformed, err)
		}
		c.Kind = ChangeMove
		c.OldValue = mv.OldValue
		c.NewValue = mv.NewValue
	default:
		return fmt.Errorf("unmarshal change: unknown type %q: %w", w.Type, ErrMalformed)
	}
	return nil
}

// ChangeBatch is an ordered sequence of Changes bracketed by the
// grid-view hashes immediately before and after applying them on the
// originator.
type ChangeBatch struct {
	Changes    []Change `json:"changes"`
	HashBefore uint64   `json:"hash_before"`
	HashAfter  uint64   `json:"hash_after"`
}
