package blockenv

import "github.com/mitchelldurbincs/BlockPuzzleRL/internal/common"

// RewardConfig holds configurable reward shaping weights. The weights are
// tunable; the shape of the function is not: reward grows monotonically
// with lines cleared, terminal states are strictly penalized, and the
// total is always clamped to [MinReward, MaxReward].
type RewardConfig struct {
	PlacementPerCell      float64
	LineBase              float64
	PerLine               float64
	ComboWeight           float64
	ComboCap              float64
	ConnectivityWeight    float64
	NearCompleteBonus     float64
	NearCompleteThreshold float64
	FragmentPenalty       float64
	DeadCellPenalty       float64
	SurvivalBonus         float64
	TerminalPenalty       float64
	InvalidPenalty        float64
	MinReward             float64
	MaxReward             float64
}

// DefaultRewardConfig returns the default reward shaping weights.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		PlacementPerCell:      0.5,
		LineBase:              10.0,
		PerLine:               15.0,
		ComboWeight:           5.0,
		ComboCap:              50.0,
		ConnectivityWeight:    2.0,
		NearCompleteBonus:     1.5,
		NearCompleteThreshold: 0.75,
		FragmentPenalty:       1.0,
		DeadCellPenalty:       0.8,
		SurvivalBonus:         0.1,
		TerminalPenalty:       -50.0,
		InvalidPenalty:        -1000.0,
		MinReward:             -1000.0,
		MaxReward:             200.0,
	}
}

// computeReward scores a completed valid step: placement size, line and
// combo bonuses, spatial quality of the resulting grid, and a survival
// bonus or terminal penalty. The sum is clamped to the configured range.
func computeReward(cfg RewardConfig, g *Grid, cellsPlaced, linesCleared int, done bool) float64 {
	reward := float64(cellsPlaced) * cfg.PlacementPerCell

	if linesCleared > 0 {
		lines := float64(linesCleared)
		combo := cfg.ComboWeight * lines * lines
		if combo > cfg.ComboCap {
			combo = cfg.ComboCap
		}
		reward += cfg.LineBase + cfg.PerLine*lines + combo
	}

	reward += cfg.ConnectivityWeight * connectivity(g)
	reward += cfg.NearCompleteBonus * float64(nearCompleteLines(g, cfg.NearCompleteThreshold))
	reward -= cfg.FragmentPenalty * float64(emptyFragments(g)-1)
	reward -= cfg.DeadCellPenalty * float64(deadCells(g))

	if done {
		reward += cfg.TerminalPenalty
	} else {
		reward += cfg.SurvivalBonus
	}

	return common.Clamp(reward, cfg.MinReward, cfg.MaxReward)
}

// connectivity returns the fraction of occupied cells that touch at least
// one other occupied cell orthogonally, in [0, 1]. An empty grid scores 1.
func connectivity(g *Grid) float64 {
	filled, connected := 0, 0
	for idx, occ := range g.Cells {
		if !occ {
			continue
		}
		filled++
		row, col := g.RC(idx)
		if hasFilledNeighbor(g, row, col) {
			connected++
		}
	}
	if filled == 0 {
		return 1.0
	}
	return float64(connected) / float64(filled)
}

func hasFilledNeighbor(g *Grid, row, col int) bool {
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		r, c := row+d[0], col+d[1]
		if g.InBounds(r, c) && g.Cells[g.Idx(r, c)] {
			return true
		}
	}
	return false
}

// nearCompleteLines counts rows and columns whose fill ratio meets the
// threshold but are not yet full.
func nearCompleteLines(g *Grid, threshold float64) int {
	count := 0
	for i := 0; i < g.N; i++ {
		if rf := g.RowFill(i); rf < g.N && float64(rf) >= threshold*float64(g.N) {
			count++
		}
		if cf := g.ColFill(i); cf < g.N && float64(cf) >= threshold*float64(g.N) {
			count++
		}
	}
	return count
}

// emptyFragments counts connected regions of empty cells. A healthy grid
// has a single open region; each extra fragment is dead space forming.
func emptyFragments(g *Grid) int {
	visited := make([]bool, len(g.Cells))
	fragments := 0
	var stack []int
	for start, occ := range g.Cells {
		if occ || visited[start] {
			continue
		}
		fragments++
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			row, col := g.RC(idx)
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				r, c := row+d[0], col+d[1]
				if !g.InBounds(r, c) {
					continue
				}
				n := g.Idx(r, c)
				if !g.Cells[n] && !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return fragments
}

// deadCells counts empty cells whose orthogonal neighbors are all occupied
// or out of bounds. Only a 1x1 block can ever fill them.
func deadCells(g *Grid) int {
	count := 0
	for idx, occ := range g.Cells {
		if occ {
			continue
		}
		row, col := g.RC(idx)
		if !hasEmptyNeighbor(g, row, col) {
			count++
		}
	}
	return count
}

func hasEmptyNeighbor(g *Grid, row, col int) bool {
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		r, c := row+d[0], col+d[1]
		if g.InBounds(r, c) && !g.Cells[g.Idx(r, c)] {
			return true
		}
	}
	return false
}
