package blockenv

import (
	"fmt"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/common"
)

const (
	// blockDescriptors is the per-block feature width: the 3x3 occupancy
	// map of the shape, zero-padded for smaller shapes and empty slots.
	blockDescriptors = 9
	// metaFeatures is the trailing width: normalized score, move count,
	// curriculum level, and moves since the last clear.
	metaFeatures = 4

	scoreNormalizer = 10000.0
	movesNormalizer = 200.0
	levelNormalizer = 10.0
	clearNormalizer = 20.0
)

// StateSize returns the fixed feature-vector length for a grid side and
// block-pool size. For the base 9x9/3-block variant this is 139.
func StateSize(n, maxBlocks int) int {
	return n*n + 3*n + maxBlocks*blockDescriptors + metaFeatures
}

// State builds the feature vector: grid occupancy, line intelligence
// (row fill ratios, column fill ratios, zone quality), block descriptors,
// and meta counters. The length is fixed by construction; a mismatch is a
// defect, so it panics rather than returning a short vector.
func (e *Env) State() []float64 {
	n := e.cfg.GridSize
	state := make([]float64, 0, StateSize(n, e.cfg.MaxBlocks))

	for _, occ := range e.grid.Cells {
		if occ {
			state = append(state, 1.0)
		} else {
			state = append(state, 0.0)
		}
	}

	for row := 0; row < n; row++ {
		state = append(state, float64(e.grid.RowFill(row))/float64(n))
	}
	for col := 0; col < n; col++ {
		state = append(state, float64(e.grid.ColFill(col))/float64(n))
	}
	state = append(state, zoneQuality(e.grid)...)

	for i := 0; i < e.cfg.MaxBlocks; i++ {
		var shape *Shape
		if i < len(e.blocks) {
			shape = e.blocks[i]
		}
		state = append(state, blockDescriptor(shape)...)
	}

	state = append(state,
		common.Clamp(float64(e.score)/scoreNormalizer, 0, 1),
		common.Clamp(float64(e.moves)/movesNormalizer, 0, 1),
		common.Clamp(float64(e.level)/levelNormalizer, 0, 1),
		common.Clamp(float64(e.movesSinceClear)/clearNormalizer, 0, 1),
	)

	if len(state) != StateSize(n, e.cfg.MaxBlocks) {
		panic(fmt.Sprintf("state vector length %d, want %d", len(state), StateSize(n, e.cfg.MaxBlocks)))
	}
	return state
}

// zoneQuality returns N fill ratios for a partition of the grid into N
// zones of N cells. When N is a perfect square the zones are the square
// subgrids (3x3 blocks on a 9x9 board); otherwise they are consecutive
// row-major chunks of N cells.
func zoneQuality(g *Grid) []float64 {
	n := g.N
	quality := make([]float64, n)
	side := 0
	for s := 1; s*s <= n; s++ {
		if s*s == n {
			side = s
		}
	}
	if side > 0 {
		for zr := 0; zr < side; zr++ {
			for zc := 0; zc < side; zc++ {
				filled := 0
				for r := zr * side; r < (zr+1)*side; r++ {
					for c := zc * side; c < (zc+1)*side; c++ {
						if g.Cells[g.Idx(r, c)] {
							filled++
						}
					}
				}
				quality[zr*side+zc] = float64(filled) / float64(n)
			}
		}
		return quality
	}
	for z := 0; z < n; z++ {
		filled := 0
		for i := z * n; i < (z+1)*n; i++ {
			if g.Cells[i] {
				filled++
			}
		}
		quality[z] = float64(filled) / float64(n)
	}
	return quality
}

// blockDescriptor flattens a shape's 3x3 occupancy map. A nil shape (used
// slot) yields all zeros.
func blockDescriptor(shape *Shape) []float64 {
	desc := make([]float64, blockDescriptors)
	if shape == nil {
		return desc
	}
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			if shape.Cells[r][c] {
				desc[r*3+c] = 1.0
			}
		}
	}
	return desc
}
