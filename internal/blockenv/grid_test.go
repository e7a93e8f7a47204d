package blockenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrid(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"base variant", 9},
		{"medium variant", 12},
		{"large variant", 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrid(tt.n)
			assert.Equal(t, tt.n, g.N)
			assert.Len(t, g.Cells, tt.n*tt.n)
			assert.Equal(t, 0, g.CountFilled())
		})
	}
}

func TestGrid_IdxRC(t *testing.T) {
	g := NewGrid(9)

	tests := []struct {
		row, col int
		idx      int
	}{
		{0, 0, 0},
		{0, 8, 8},
		{1, 0, 9},
		{4, 4, 40},
		{8, 8, 80},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			idx := g.Idx(tt.row, tt.col)
			assert.Equal(t, tt.idx, idx)
			row, col := g.RC(idx)
			assert.Equal(t, tt.row, row)
			assert.Equal(t, tt.col, col)
		})
	}
}

func TestGrid_Occupied(t *testing.T) {
	g := NewGrid(5)
	g.Set(2, 3, true)

	assert.True(t, g.Occupied(2, 3))
	assert.False(t, g.Occupied(3, 2))
	// Out of bounds counts as occupied so placements are rejected
	assert.True(t, g.Occupied(-1, 0))
	assert.True(t, g.Occupied(0, 5))
}

func TestGrid_Clone(t *testing.T) {
	g := NewGrid(5)
	g.Set(1, 1, true)

	clone := g.Clone()
	clone.Set(2, 2, true)

	assert.True(t, clone.Occupied(1, 1))
	assert.False(t, g.Occupied(2, 2), "mutating clone must not affect original")
}

func TestGrid_ClearCompleted(t *testing.T) {
	t.Run("single full row", func(t *testing.T) {
		g := NewGrid(9)
		for col := 0; col < 9; col++ {
			g.Set(3, col, true)
		}

		rows, cols := g.ClearCompleted()
		require.Len(t, rows, 1)
		assert.Equal(t, 3, rows[0])
		assert.Empty(t, cols)
		assert.Equal(t, 0, g.RowFill(3), "cleared row cells must become false")
	})

	t.Run("row and column crossing", func(t *testing.T) {
		g := NewGrid(9)
		for i := 0; i < 9; i++ {
			g.Set(2, i, true)
			g.Set(i, 5, true)
		}

		rows, cols := g.ClearCompleted()
		assert.Len(t, rows, 1)
		assert.Len(t, cols, 1)
		assert.Equal(t, 0, g.CountFilled())
	})

	t.Run("nothing full", func(t *testing.T) {
		g := NewGrid(9)
		for col := 0; col < 8; col++ {
			g.Set(0, col, true)
		}

		rows, cols := g.ClearCompleted()
		assert.Empty(t, rows)
		assert.Empty(t, cols)
		assert.Equal(t, 8, g.RowFill(0))
	})
}
