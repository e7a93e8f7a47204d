package blockenv

import "math/rand"

// Shape describes a block's occupied cells relative to its top-left anchor.
// Shapes are immutable once built; the catalog entries are shared between
// environments and must never be written to.
type Shape struct {
	Name  string
	Rows  int
	Cols  int
	Cells [][]bool
	count int
}

// CellCount returns the number of occupied cells in the shape.
func (s *Shape) CellCount() int { return s.count }

// newShape builds a shape from a row-per-string pattern where 'X' marks an
// occupied cell. Panics on malformed patterns; the catalog is static data
// and a bad pattern is a programming error.
func newShape(name string, pattern ...string) *Shape {
	rows := len(pattern)
	if rows == 0 || rows > 3 {
		panic("shape pattern must have 1-3 rows: " + name)
	}
	cols := len(pattern[0])
	if cols == 0 || cols > 3 {
		panic("shape pattern must have 1-3 columns: " + name)
	}
	cells := make([][]bool, rows)
	count := 0
	for r, line := range pattern {
		if len(line) != cols {
			panic("ragged shape pattern: " + name)
		}
		cells[r] = make([]bool, cols)
		for c := 0; c < cols; c++ {
			if line[c] == 'X' {
				cells[r][c] = true
				count++
			}
		}
	}
	if count == 0 {
		panic("empty shape pattern: " + name)
	}
	return &Shape{Name: name, Rows: rows, Cols: cols, Cells: cells, count: count}
}

// shapeCatalog is the fixed pool of drawable blocks in the base variant.
var shapeCatalog = []*Shape{
	newShape("dot", "X"),
	newShape("duo-h", "XX"),
	newShape("duo-v", "X", "X"),
	newShape("tri-h", "XXX"),
	newShape("tri-v", "X", "X", "X"),
	newShape("square", "XX", "XX"),
	newShape("corner-tl", "XX", "X."),
	newShape("corner-tr", "XX", ".X"),
	newShape("corner-bl", "X.", "XX"),
	newShape("corner-br", ".X", "XX"),
	newShape("ell", "X..", "X..", "XXX"),
	newShape("tee", "XXX", ".X.", ".X."),
	newShape("ess", ".XX", "XX."),
	newShape("zee", "XX.", ".XX"),
	newShape("big-square", "XXX", "XXX", "XXX"),
}

// DrawShapes draws n blocks uniformly from the catalog using the supplied
// RNG. Blocks are drawn with replacement; duplicates are normal.
func DrawShapes(rng *rand.Rand, n int) []*Shape {
	drawn := make([]*Shape, n)
	for i := range drawn {
		drawn[i] = shapeCatalog[rng.Intn(len(shapeCatalog))]
	}
	return drawn
}

// CatalogSize returns the number of distinct drawable shapes.
func CatalogSize() int { return len(shapeCatalog) }

// ShapeByName looks up a catalog shape. Returns nil if no shape has the
// given name.
func ShapeByName(name string) *Shape {
	for _, s := range shapeCatalog {
		if s.Name == name {
			return s
		}
	}
	return nil
}
