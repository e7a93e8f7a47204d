package blockenv

// Grid is a square occupancy board stored as a flat row-major slice.
// true = occupied. Mutated only by placements and line clears; a fresh
// grid is allocated on every reset.
type Grid struct {
	N     int
	Cells []bool // length N*N, row-major
}

// NewGrid creates an empty N x N grid.
func NewGrid(n int) *Grid {
	return &Grid{N: n, Cells: make([]bool, n*n)}
}

func (g *Grid) Idx(row, col int) int    { return row*g.N + col }
func (g *Grid) RC(idx int) (int, int)   { return idx / g.N, idx % g.N }
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.N && col >= 0 && col < g.N
}

// Occupied reports whether the cell at (row, col) is filled. Out-of-bounds
// coordinates count as occupied so placement checks reject them.
func (g *Grid) Occupied(row, col int) bool {
	if !g.InBounds(row, col) {
		return true
	}
	return g.Cells[g.Idx(row, col)]
}

func (g *Grid) Set(row, col int, v bool) {
	if g.InBounds(row, col) {
		g.Cells[g.Idx(row, col)] = v
	}
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	cells := make([]bool, len(g.Cells))
	copy(cells, g.Cells)
	return &Grid{N: g.N, Cells: cells}
}

// CountFilled returns the number of occupied cells.
func (g *Grid) CountFilled() int {
	count := 0
	for _, c := range g.Cells {
		if c {
			count++
		}
	}
	return count
}

// RowFill returns the number of occupied cells in a row.
func (g *Grid) RowFill(row int) int {
	count := 0
	for col := 0; col < g.N; col++ {
		if g.Cells[g.Idx(row, col)] {
			count++
		}
	}
	return count
}

// ColFill returns the number of occupied cells in a column.
func (g *Grid) ColFill(col int) int {
	count := 0
	for row := 0; row < g.N; row++ {
		if g.Cells[g.Idx(row, col)] {
			count++
		}
	}
	return count
}

// ClearCompleted removes every fully occupied row and column and returns
// how many of each were cleared. Rows and columns are collected before any
// cell is flipped so a cell at a full row/column intersection counts for
// both lines but is cleared once.
func (g *Grid) ClearCompleted() (rows, cols []int) {
	for row := 0; row < g.N; row++ {
		if g.RowFill(row) == g.N {
			rows = append(rows, row)
		}
	}
	for col := 0; col < g.N; col++ {
		if g.ColFill(col) == g.N {
			cols = append(cols, col)
		}
	}
	for _, row := range rows {
		for col := 0; col < g.N; col++ {
			g.Cells[g.Idx(row, col)] = false
		}
	}
	for _, col := range cols {
		for row := 0; row < g.N; row++ {
			g.Cells[g.Idx(row, col)] = false
		}
	}
	return rows, cols
}
