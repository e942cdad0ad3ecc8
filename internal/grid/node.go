package grid

// Node is an identified rectangle on the grid. Once placed, its Id, W,
// and H never change; only X and Y move, via MoveItem.
type Node struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	W  int    `json:"w"`
	H  int    `json:"h"`
}
