package blockenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/testutil"
)

func TestShapeCatalog_Wellformed(t *testing.T) {
	assert.Equal(t, 15, CatalogSize())

	seen := make(map[string]bool)
	for _, s := range shapeCatalog {
		assert.False(t, seen[s.Name], "duplicate shape name %q", s.Name)
		seen[s.Name] = true

		assert.GreaterOrEqual(t, s.Rows, 1)
		assert.LessOrEqual(t, s.Rows, 3)
		assert.GreaterOrEqual(t, s.Cols, 1)
		assert.LessOrEqual(t, s.Cols, 3)
		assert.Positive(t, s.CellCount())

		count := 0
		for _, row := range s.Cells {
			require.Len(t, row, s.Cols)
			for _, occupied := range row {
				if occupied {
					count++
				}
			}
		}
		assert.Equal(t, s.CellCount(), count, "shape %q", s.Name)
	}
}

func TestShapeByName(t *testing.T) {
	square := ShapeByName("square")
	require.NotNil(t, square)
	assert.Equal(t, 2, square.Rows)
	assert.Equal(t, 2, square.Cols)
	assert.Equal(t, 4, square.CellCount())

	assert.Nil(t, ShapeByName("pentomino"))
}

func TestDrawShapes_DeterministicPerSeed(t *testing.T) {
	a := DrawShapes(testutil.NewTestRNG(99), 10)
	b := DrawShapes(testutil.NewTestRNG(99), 10)
	require.Len(t, a, 10)
	for i := range a {
		assert.Same(t, a[i], b[i], "draw %d", i)
	}
}

func TestDrawShapes_SharesCatalogEntries(t *testing.T) {
	drawn := DrawShapes(testutil.NewTestRNG(1), 5)
	for _, s := range drawn {
		assert.Same(t, ShapeByName(s.Name), s)
	}
}

func TestNewShape_PanicsOnMalformedPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern []string
	}{
		{name: "empty", pattern: nil},
		{name: "too many rows", pattern: []string{"X", "X", "X", "X"}},
		{name: "too wide", pattern: []string{"XXXX"}},
		{name: "ragged", pattern: []string{"XX", "X"}},
		{name: "no cells", pattern: []string{"..", ".."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { newShape(tt.name, tt.pattern...) })
		})
	}
}
