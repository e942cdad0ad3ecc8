// Package protocol implements the wire codec for the two message kinds
// that cross a grid connection: the once-per-session snapshot and the
// many-per-session change batch. Both are JSON; the receiver tells
// them apart by the first-message-is-snapshot convention (spec §4.6),
// not by a tag byte, so this package exposes one encode/decode pair per
// kind rather than a single dispatching function.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/adred-codev/gridlab/internal/grid"
)

// EncodeSnapshot serializes a grid view into the wire form sent once,
// immediately after handshake.
func EncodeSnapshot(v grid.View) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w: %v", grid.ErrMalformed, err)
	}
	return buf, nil
}

// DecodeSnapshot parses the wire form of a grid view.
func DecodeSnapshot(data []byte) (grid.View, error) {
	var v grid.View
	if err := json.Unmarshal(data, &v); err != nil {
		return grid.View{}, fmt.Errorf("decode snapshot: %w: %v", grid.ErrMalformed, err)
	}
	return v, nil
}

// EncodeBatch serializes a change batch for transmission.
func EncodeBatch(b grid.ChangeBatch) ([]byte, error) {
	buf, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w: %v", grid.ErrMalformed, err)
	}
	return buf, nil
}

// DecodeBatch parses a wire-encoded change batch.
func DecodeBatch(data []byte) (grid.ChangeBatch, error) {
	var b grid.ChangeBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return grid.ChangeBatch{}, fmt.Errorf("decode batch: %w: %v", grid.ErrMalformed, err)
	}
	return b, nil
}
