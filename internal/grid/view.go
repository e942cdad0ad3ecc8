package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// View is an immutable snapshot of a grid engine's occupancy grid and
// items map, taken at a single point in time. It never changes once
// constructed; engine state mutates independently.
type View struct {
	Rows  int             `json:"rows"`
	Cols  int             `json:"cols"`
	Grid  [][]string      `json:"grid"`
	Items map[string]Node `json:"items"`
}

// newView deep-copies engine state into a value-typed snapshot.
func newView(g *Grid, items map[string]Node) View {
	rows, cols := g.Rows(), g.Cols()
	cells := make([][]string, rows)
	for y := 0; y < rows; y++ {
		cells[y] = make([]string, cols)
		for x := 0; x < cols; x++ {
			cells[y][x] = g.cells[y][x]
		}
	}
	itemsCopy := make(map[string]Node, len(items))
	for id, n := range items {
		itemsCopy[id] = n
	}
	return View{Rows: rows, Cols: cols, Grid: cells, Items: itemsCopy}
}

func (v View) sortedIDs() []string {
	ids := make([]string, 0, len(v.Items))
	for id := range v.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetNodes returns the view's nodes sorted by id.
func (v View) GetNodes() []Node {
	ids := v.sortedIDs()
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, v.Items[id])
	}
	return nodes
}

// canonical is the hash payload: items in id-sorted order, grid cells
// row-major. Two views are equal iff their canonical bytes are equal.
type canonical struct {
	Rows  int        `json:"rows"`
	Cols  int        `json:"cols"`
	Grid  [][]string `json:"grid"`
	Items []Node     `json:"items"`
}

// Serialize produces the canonical byte form used for hashing. The
// snapshot wire message (protocol.EncodeSnapshot) is the View's own
// JSON encoding, not this form.
func (v View) Serialize() ([]byte, error) {
	buf, err := json.Marshal(canonical{Rows: v.Rows, Cols: v.Cols, Grid: v.Grid, Items: v.GetNodes()})
	if err != nil {
		return nil, fmt.Errorf("serialize view: %w: %v", ErrMalformed, err)
	}
	return buf, nil
}

// Hash returns a deterministic content hash of the view's canonical
// serialization. xxhash is unseeded and produces identical output for
// identical bytes on every peer, unlike a process-randomized hasher
// (the divergence check in room.ApplyInbound depends on that).
func (v View) Hash() (uint64, error) {
	buf, err := v.Serialize()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(buf), nil
}

// Format renders the grid with row/column gutters, offset by
// originOffset purely for display.
func (v View) Format(originOffset int) string {
	var b bytes.Buffer
	b.WriteString("  ")
	for x := 0; x < v.Cols; x++ {
		fmt.Fprintf(&b, " %d ", x+originOffset)
	}
	b.WriteByte('\n')
	for y := 0; y < v.Rows; y++ {
		fmt.Fprintf(&b, "%02d", y+originOffset)
		for x := 0; x < v.Cols; x++ {
			cell := v.Grid[y][x]
			if cell == "" {
				cell = "."
			}
			fmt.Fprintf(&b, " %s ", cell)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
