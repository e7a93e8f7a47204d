package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbs(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"positive", 5, 5},
		{"negative", -5, 5},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Abs(tt.input))
		})
	}
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, 1, Min(1, 2))
	assert.Equal(t, -2, Min(-2, 3))
	assert.Equal(t, 2, Max(1, 2))
	assert.Equal(t, 3, Max(-2, 3))
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		lo, hi   float64
		expected float64
	}{
		{"below range", -5.0, -1.0, 1.0, -1.0},
		{"above range", 5.0, -1.0, 1.0, 1.0},
		{"inside range", 0.5, -1.0, 1.0, 0.5},
		{"at lower bound", -1.0, -1.0, 1.0, -1.0},
		{"at upper bound", 1.0, -1.0, 1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clamp(tt.v, tt.lo, tt.hi))
		})
	}
}

func TestArgMax(t *testing.T) {
	tests := []struct {
		name     string
		vs       []float64
		expected int
	}{
		{"empty", nil, -1},
		{"single", []float64{1.0}, 0},
		{"last is max", []float64{1.0, 2.0, 3.0}, 2},
		{"first is max", []float64{3.0, 2.0, 1.0}, 0},
		{"tie resolves to first", []float64{2.0, 2.0, 1.0}, 0},
		{"negatives", []float64{-3.0, -1.0, -2.0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ArgMax(tt.vs))
		})
	}
}
