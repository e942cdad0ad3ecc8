package grid

import (
	"fmt"
	"sort"
	"sync"
)

// Engine owns the occupancy grid, the items map, and the event bus that
// reports changes to both. Every exported mutator applies its whole
// effect atomically with respect to View/GetNodes callers: the grid and
// items map are only ever observed between applyBatch calls, never
// mid-update.
type Engine struct {
	mu     sync.Mutex
	grid   *Grid
	items  map[string]Node
	events *EventBus
}

// NewEngine constructs an empty engine with fixed dimensions.
func NewEngine(rows, cols int) *Engine {
	return &Engine{
		grid:   NewGrid(rows, cols),
		items:  make(map[string]Node),
		events: NewEventBus(),
	}
}

// NewEngineFromView reconstructs an engine whose grid and items equal
// the given view, e.g. from a just-received snapshot.
func NewEngineFromView(v View) *Engine {
	g := NewGrid(v.Rows, v.Cols)
	items := make(map[string]Node, len(v.Items))
	for id, n := range v.Items {
		items[id] = n
		_ = placeCells(g, n)
	}
	return &Engine{grid: g, items: items, events: NewEventBus()}
}

// Events returns the engine's event bus, for subscribing/unsubscribing.
func (e *Engine) Events() *EventBus { return e.events }

// View returns a point-in-time snapshot of the engine's state.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return newView(e.grid, e.items)
}

// GetNodes returns all stored nodes, sorted by id.
func (e *Engine) GetNodes() []Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.items))
	for id := range e.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, e.items[id])
	}
	return nodes
}

func (e *Engine) checkBounds(n Node) error {
	if n.X < 0 || n.Y < 0 {
		return fmt.Errorf("node %q at negative origin (%d,%d): %w", n.ID, n.X, n.Y, ErrOutOfBounds)
	}
	if n.X+n.W > e.grid.Cols() || n.Y+n.H > e.grid.Rows() {
		return fmt.Errorf("node %q rect (x=%d,y=%d,w=%d,h=%d) exceeds %dx%d grid: %w",
			n.ID, n.X, n.Y, n.W, n.H, e.grid.Cols(), e.grid.Rows(), ErrOutOfBounds)
	}
	return nil
}

// AddItem places a new node at (x, y). It fails with ErrDuplicateID if
// id is already present, or ErrOutOfBounds if the rectangle would leave
// the grid. Otherwise it resolves collisions, applies the resulting
// batch, and returns id.
func (e *Engine) AddItem(id string, x, y, w, h int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.items[id]; exists {
		return "", fmt.Errorf("add %q: %w", id, ErrDuplicateID)
	}
	n := Node{ID: id, X: x, Y: y, W: w, H: h}
	if err := e.checkBounds(n); err != nil {
		return "", err
	}

	var pending []Change
	image := e.grid.Clone()
	if err := e.resolveCollisions(image, n, nil, &pending); err != nil {
		return "", err
	}
	pending = append(pending, NewAdd(n))

	if _, err := e.applyBatch("", pending); err != nil {
		return "", err
	}
	return id, nil
}

// MoveItem moves an existing node to (newX, newY), keeping its
// dimensions. It fails with ErrNotFound if id is unknown, or
// ErrOutOfBounds if the new rectangle would leave the grid.
func (e *Engine) MoveItem(id string, newX, newY int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.items[id]
	if !ok {
		return fmt.Errorf("move %q: %w", id, ErrNotFound)
	}
	target := Node{ID: id, X: newX, Y: newY, W: old.W, H: old.H}
	if err := e.checkBounds(target); err != nil {
		return err
	}

	var pending []Change
	image := e.grid.Clone()
	if err := e.resolveCollisions(image, target, &old, &pending); err != nil {
		return err
	}
	pending = append(pending, NewMove(old, target))

	_, err := e.applyBatch("", pending)
	return err
}

// RemoveItem deletes an existing node. It fails with ErrNotFound if id
// is unknown.
func (e *Engine) RemoveItem(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.items[id]
	if !ok {
		return fmt.Errorf("remove %q: %w", id, ErrNotFound)
	}

	_, err := e.applyBatch("", []Change{NewRemove(n)})
	return err
}

// ApplyChanges applies an externally-supplied, already-resolved
// sequence of changes verbatim, in order, without running collision
// resolution again — the originator already did that. It is how a peer
// replays a received BatchChange onto its own replica.
func (e *Engine) ApplyChanges(changes []Change) (ChangeBatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyBatch("", changes)
}

// ApplyChangesFrom is ApplyChanges with an origin id attached to the
// emitted BatchChange event (see EventValue.Origin). A room uses this
// when applying a batch a specific client submitted, so its broadcaster
// can exclude that client from the fan-out.
func (e *Engine) ApplyChangesFrom(origin string, changes []Change) (ChangeBatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyBatch(origin, changes)
}

// resolveCollisions computes the changes required to place/move n at
// its target rectangle, displacing any colliding nodes straight down,
// and appends the result to *pending in bottom-up order (innermost
// displacements first, so the caller can append n's own change last).
//
// image is a scratch copy of the occupancy grid, mutated as the
// cascade proceeds; the real grid is untouched until applyBatch runs.
// oldSelf, when non-nil, is n's previous footprint — present whenever n
// is itself being displaced (including recursively) — and is cleared
// from image before collisions are computed, so a displaced neighbour
// never falsely re-collides with n's old position.
func (e *Engine) resolveCollisions(image *Grid, n Node, oldSelf *Node, pending *[]Change) error {
	if oldSelf != nil {
		if err := clearCells(image, *oldSelf); err != nil {
			return err
		}
	}

	if err := e.checkBounds(n); err != nil {
		return err
	}

	colliding, err := collidingIDs(image, n)
	if err != nil {
		return err
	}

	for _, cid := range colliding {
		c := e.items[cid]
		target := Node{ID: c.ID, X: c.X, Y: n.Y + n.H, W: c.W, H: c.H}
		if target.Y <= c.Y {
			return fmt.Errorf("cascade displacement of %q did not advance (from y=%d to y=%d): %w", c.ID, c.Y, target.Y, ErrOutOfBounds)
		}
		old := c
		if err := e.resolveCollisions(image, target, &old, pending); err != nil {
			return err
		}
		*pending = append(*pending, NewMove(old, target))
	}

	if err := placeCells(image, n); err != nil {
		return err
	}
	return nil
}

// applyBatch mutates grid+items per changes in order (the apply step),
// computes hash_before/hash_after around the mutation, emits a single
// BatchChange event tagged with origin, and returns the resulting
// batch. Callers must hold e.mu.
func (e *Engine) applyBatch(origin string, changes []Change) (ChangeBatch, error) {
	before := newView(e.grid, e.items)
	hashBefore, err := before.Hash()
	if err != nil {
		return ChangeBatch{}, err
	}

	for _, c := range changes {
		if err := e.applyOne(c); err != nil {
			// Restore the pre-batch state so a failed batch leaves no
			// partial effect behind.
			g := NewGrid(before.Rows, before.Cols)
			for y := range before.Grid {
				copy(g.cells[y], before.Grid[y])
			}
			e.grid = g
			e.items = before.Items
			return ChangeBatch{}, err
		}
	}

	after := newView(e.grid, e.items)
	hashAfter, err := after.Hash()
	if err != nil {
		return ChangeBatch{}, err
	}

	batch := ChangeBatch{Changes: changes, HashBefore: hashBefore, HashAfter: hashAfter}
	e.events.Emit(after, EventBatchChange, EventValue{Name: EventBatchChange, BatchChange: &batch, Origin: origin})
	return batch, nil
}

func (e *Engine) applyOne(c Change) error {
	switch c.Kind {
	case ChangeAdd:
		if err := placeCells(e.grid, c.Value); err != nil {
			return err
		}
		e.items[c.Value.ID] = c.Value
	case ChangeRemove:
		if err := clearCells(e.grid, c.Value); err != nil {
			return err
		}
		delete(e.items, c.Value.ID)
	case ChangeMove:
		if err := clearCells(e.grid, c.OldValue); err != nil {
			return err
		}
		e.items[c.NewValue.ID] = c.NewValue
		if err := placeCells(e.grid, c.NewValue); err != nil {
			return err
		}
	default:
		return fmt.Errorf("apply: unknown change kind %q: %w", c.Kind, ErrMalformed)
	}
	return nil
}
