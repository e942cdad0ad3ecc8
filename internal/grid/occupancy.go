package grid

import "fmt"

// Grid is a fixed rows x cols occupancy map. Each cell holds the id of
// the node that covers it, or "" if the cell is free. x indexes columns
// (0..cols), y indexes rows (0..rows), matching Node's coordinates.
type Grid struct {
	rows, cols int
	cells      [][]string
}

// NewGrid constructs an all-empty grid of the given dimensions.
func NewGrid(rows, cols int) *Grid {
	cells := make([][]string, rows)
	for y := range cells {
		cells[y] = make([]string, cols)
	}
	return &Grid{rows: rows, cols: cols, cells: cells}
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && x < g.cols && y >= 0 && y < g.rows
}

// At reads the id occupying cell (x, y), or "" if free.
func (g *Grid) At(x, y int) (string, error) {
	if !g.inBounds(x, y) {
		return "", fmt.Errorf("grid: cell (%d,%d) out of %dx%d bounds: %w", x, y, g.cols, g.rows, ErrOutOfBounds)
	}
	return g.cells[y][x], nil
}

// Set writes id into cell (x, y).
func (g *Grid) Set(x, y int, id string) error {
	if !g.inBounds(x, y) {
		return fmt.Errorf("grid: cell (%d,%d) out of %dx%d bounds: %w", x, y, g.cols, g.rows, ErrOutOfBounds)
	}
	g.cells[y][x] = id
	return nil
}

// Clone returns a deep copy, used as the cascade's scratch image so
// collision resolution never touches the real grid mid-computation.
func (g *Grid) Clone() *Grid {
	cells := make([][]string, g.rows)
	for y := range cells {
		cells[y] = make([]string, g.cols)
		copy(cells[y], g.cells[y])
	}
	return &Grid{rows: g.rows, cols: g.cols, cells: cells}
}

// placeCells writes n's id into every cell of its rectangle.
func placeCells(g *Grid, n Node) error {
	for x := n.X; x < n.X+n.W; x++ {
		for y := n.Y; y < n.Y+n.H; y++ {
			if err := g.Set(x, y, n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// clearCells blanks every cell of n's rectangle that still holds n's
// id. The equality guard protects against clearing cells a concurrent
// step has already overwritten with a different id.
func clearCells(g *Grid, n Node) error {
	for x := n.X; x < n.X+n.W; x++ {
		for y := n.Y; y < n.Y+n.H; y++ {
			cur, err := g.At(x, y)
			if err != nil {
				return err
			}
			if cur == n.ID {
				if err := g.Set(x, y, ""); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// collidingIDs returns the distinct ids occupying any cell of n's
// target rectangle within image, in first-seen column-major order
// (outer loop over x, inner loop over y).
func collidingIDs(image *Grid, n Node) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for x := n.X; x < n.X+n.W; x++ {
		for y := n.Y; y < n.Y+n.H; y++ {
			id, err := image.At(x, y)
			if err != nil {
				return nil, err
			}
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
